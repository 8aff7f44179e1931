package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/wader/goutubedl"
)

// Boundary to the external retrieval engine (yt-dlp). Metadata extraction
// goes through the goutubedl binding; transfers run the binary directly
// because the flags a transfer needs (post-processors, progress templates,
// cookies) are not exposed by the binding's typed options.

// ErrAborted is returned from a progress hook to unwind an in-flight engine
// call. The engine guarantees the call returns promptly once the hook has
// signalled it.
var ErrAborted = errors.New("transfer aborted")

// ProgressUpdate is one event from the engine's progress hook.
type ProgressUpdate struct {
	Stage           string // "downloading" or "postprocessing"
	DownloadedBytes int64
	TotalBytes      int64 // 0 when unknown
	SpeedBPS        float64
	ETASeconds      int // -1 when unknown
}

const (
	StageDownloading    = "downloading"
	StagePostprocessing = "postprocessing"
)

// ProgressHook receives progress updates during a transfer. Returning a
// non-nil error aborts the transfer; the engine call then returns an error
// wrapping ErrAborted.
type ProgressHook func(ProgressUpdate) error

// Engine is the external retrieval service the queue orchestrates.
type Engine interface {
	// ExtractInfo fetches metadata for a single item. Collection expansion
	// is disabled; the call blocks until the engine returns.
	ExtractInfo(ctx context.Context, url string) (*RawInfo, error)

	// Download performs a transfer with the given configuration, invoking
	// hook for every progress event the engine emits.
	Download(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error
}

// RawInfo is the engine's metadata record, trimmed to the fields this
// system consumes.
type RawInfo struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	WebpageURL        string                     `json:"webpage_url"`
	OriginalURL       string                     `json:"original_url"`
	Duration          float64                    `json:"duration"`
	Formats           []RawFormat                `json:"formats"`
	Subtitles         map[string][]SubtitleTrack `json:"subtitles"`
	AutomaticCaptions map[string][]SubtitleTrack `json:"automatic_captions"`
}

type RawFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

type SubtitleTrack struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ytdlpEngine drives the yt-dlp binary.
type ytdlpEngine struct {
	binary string
}

// NewEngine returns the production engine. The yt-dlp binary is resolved
// from PATH at call time.
func NewEngine() Engine {
	return &ytdlpEngine{binary: "yt-dlp"}
}

func (e *ytdlpEngine) ExtractInfo(ctx context.Context, url string) (*RawInfo, error) {
	result, err := goutubedl.New(ctx, url, goutubedl.Options{
		Type: goutubedl.TypeSingle,
	})
	if err != nil {
		return nil, fmt.Errorf("metadata extraction failed: %w", err)
	}

	var info RawInfo
	if err := json.Unmarshal(result.RawJSON, &info); err != nil {
		return nil, fmt.Errorf("metadata record unreadable: %w", err)
	}
	if info.Title == "" {
		info.Title = result.Info.Title
	}
	return &info, nil
}

// Progress templates. Fields the engine cannot fill are rendered as "NA".
const (
	downloadProgressTemplate = "download:mdl-dl %(progress.downloaded_bytes)s %(progress.total_bytes)s %(progress.total_bytes_estimate)s %(progress.speed)s %(progress.eta)s"
	postprocessTemplate      = "postprocess:mdl-pp %(progress.status)s"
)

// transferArgs converts a TransferConfig into the engine's command line.
// Kept pure for testing.
func transferArgs(url string, cfg TransferConfig) []string {
	args := []string{
		"--newline",
		"--no-warnings",
		"--progress-template", downloadProgressTemplate,
		"--progress-template", postprocessTemplate,
		"--retries", "10",
		"--fragment-retries", "10",
		"--socket-timeout", "15",
		"--concurrent-fragments", "4",
		"--file-access-retries", "5",
		"--force-overwrites",
		"-o", cfg.OutputTemplate,
	}

	if cfg.PlaylistMode {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "--no-playlist")
	}

	args = append(args, "-f", cfg.FormatSelector)

	if cfg.MergeFormat != "" {
		args = append(args, "--merge-output-format", cfg.MergeFormat)
	}
	if cfg.RateLimitKBps > 0 {
		args = append(args, "--limit-rate", fmt.Sprintf("%dK", cfg.RateLimitKBps))
	}
	if cfg.FFmpegLocation != "" {
		args = append(args, "--ffmpeg-location", cfg.FFmpegLocation)
	}
	if cfg.CookiesSpec != "" {
		args = append(args, "--cookies-from-browser", cfg.CookiesSpec)
	}

	if cfg.ExtractAudio {
		args = append(args, "-x", "--audio-format", cfg.AudioFormat)
		if cfg.AudioBitrate != "" {
			args = append(args, "--audio-quality", cfg.AudioBitrate)
		}
	}

	if cfg.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	if cfg.EmbedMetadata {
		args = append(args, "--embed-metadata")
	}

	if cfg.Subtitles.Enabled {
		args = append(args,
			"--write-subs",
			"--embed-subs",
			"--sub-format", "srt/best",
			"--convert-subs", "srt",
		)
		if cfg.Subtitles.IncludeAuto {
			args = append(args, "--write-auto-subs")
		}
		if len(cfg.Subtitles.Languages) > 0 {
			args = append(args, "--sub-langs", strings.Join(cfg.Subtitles.Languages, ","))
		}
	}

	return append(args, url)
}

func (e *ytdlpEngine) Download(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary, transferArgs(url, cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout: %w", err)
	}
	stderr := newTailBuffer(2048)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	var hookErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		update, ok := parseProgressLine(scanner.Text())
		if !ok || hookErr != nil {
			continue
		}
		if err := hook(update); err != nil {
			hookErr = err
			// Interrupt the engine; keep draining so Wait can return.
			cancel()
		}
	}

	waitErr := cmd.Wait()

	if hookErr != nil {
		return fmt.Errorf("%w: %s", ErrAborted, hookErr)
	}
	if waitErr != nil {
		if msg := stderr.Tail(); msg != "" {
			return fmt.Errorf("engine transfer failed: %s", msg)
		}
		return fmt.Errorf("engine transfer failed: %w", waitErr)
	}
	return nil
}

// parseProgressLine decodes one emitted progress-template line.
func parseProgressLine(line string) (ProgressUpdate, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return ProgressUpdate{}, false
	}

	switch fields[0] {
	case "mdl-pp":
		return ProgressUpdate{Stage: StagePostprocessing}, true
	case "mdl-dl":
		if len(fields) < 6 {
			return ProgressUpdate{}, false
		}
		update := ProgressUpdate{
			Stage:           StageDownloading,
			DownloadedBytes: parseByteField(fields[1]),
			TotalBytes:      parseByteField(fields[2]),
			SpeedBPS:        parseFloatField(fields[4]),
			ETASeconds:      parseETAField(fields[5]),
		}
		if update.TotalBytes == 0 {
			update.TotalBytes = parseByteField(fields[3])
		}
		return update, true
	}
	return ProgressUpdate{}, false
}

func parseByteField(s string) int64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v)
}

func parseFloatField(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseETAField(s string) int {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return -1
	}
	return int(v)
}

// tailBuffer keeps the last max bytes written to it, for error reporting
// without holding the engine's full output.
type tailBuffer struct {
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
	}
	return len(p), nil
}

// Tail returns the last non-empty line written, which is where the engine
// puts its final error.
func (b *tailBuffer) Tail() string {
	lines := strings.Split(strings.TrimSpace(string(b.data)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// EngineVersion reports the installed engine version, for diagnostics.
func EngineVersion(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "yt-dlp", "--version").Output()
	if err != nil {
		slog.Debug("engine version probe failed", "err", err)
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
