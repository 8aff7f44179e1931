package backend

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Per-item download options and transfer configuration building.

// SubtitleAll selects every available subtitle language for an item.
const SubtitleAll = "all"

// DownloadOptions is the opaque per-item configuration captured when a URL
// is added to the queue. It is applied only when the item starts processing,
// so the queue can hold items with different settings.
type DownloadOptions struct {
	Playlist bool   `json:"playlist,omitempty"`
	Subtitle string `json:"subtitle,omitempty"` // "", SubtitleAll, or a language code

	// Audio mode
	AudioFormat  string `json:"audioFormat,omitempty"`  // mp3, m4a, flac, opus, wav
	AudioBitrate string `json:"audioBitrate,omitempty"` // kbps, e.g. "192"

	// Video mode
	FormatID  string `json:"formatId,omitempty"`  // engine format id, "" = best
	Container string `json:"container,omitempty"` // mp4, webm, mkv
}

// audioFormatCaps records which post-processing steps each audio container
// supports.
var audioFormatCaps = map[string]struct {
	Thumb bool
	Meta  bool
}{
	"mp3":  {Thumb: true, Meta: true},
	"m4a":  {Thumb: true, Meta: true},
	"flac": {Thumb: true, Meta: true},
	"opus": {Thumb: false, Meta: true},
	"wav":  {Thumb: false, Meta: true},
}

// SupportedAudioFormats returns the audio containers the pipeline can
// produce, in stable order.
func SupportedAudioFormats() []string {
	formats := make([]string, 0, len(audioFormatCaps))
	for ext := range audioFormatCaps {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

// SubtitleConfig describes subtitle acquisition and embedding for one
// transfer.
type SubtitleConfig struct {
	Enabled     bool
	Languages   []string
	IncludeAuto bool
}

// TransferConfig is the full, immutable configuration for one transfer
// attempt. It is built from a queue item's captured options plus the fetched
// format list, validated once, and never mutated after the transfer starts.
type TransferConfig struct {
	TargetExt      string
	FormatSelector string
	MergeFormat    string // "" = no merge step
	RateLimitKBps  int
	OutputTemplate string
	ScratchDir     string // "" in playlist mode
	DestDir        string
	FilenameSuffix string
	PlaylistMode   bool
	CookiesSpec    string // --cookies-from-browser value, "" = none
	FFmpegLocation string // "" = engine default lookup

	ExtractAudio   bool
	AudioFormat    string
	AudioBitrate   string
	EmbedThumbnail bool
	EmbedMetadata  bool

	Subtitles SubtitleConfig
}

// Validate rejects configurations that would make the transfer or the
// placement pass ambiguous.
func (c TransferConfig) Validate() error {
	if c.TargetExt == "" {
		return fmt.Errorf("transfer config: target extension is empty")
	}
	if c.FormatSelector == "" {
		return fmt.Errorf("transfer config: format selector is empty")
	}
	if c.DestDir == "" {
		return fmt.Errorf("transfer config: destination directory is empty")
	}
	if !c.PlaylistMode && c.ScratchDir == "" {
		return fmt.Errorf("transfer config: scratch directory is required for single transfers")
	}
	if c.ExtractAudio {
		if _, ok := audioFormatCaps[c.AudioFormat]; !ok {
			return fmt.Errorf("transfer config: unsupported audio format %q", c.AudioFormat)
		}
	}
	return nil
}

// BuildTransferConfig assembles the TransferConfig for one queue item from
// its captured options, the metadata fetched for it, and the application
// configuration. scratchDir may be empty only in playlist mode.
func BuildTransferConfig(item QueueItem, meta *MetadataResult, cfg *Config, scratchDir string) (TransferConfig, error) {
	destDir := cfg.OutputDirectory
	if destDir == "" {
		destDir = GetDefaultOutputDirectory()
	}

	tc := TransferConfig{
		RateLimitKBps: cfg.SpeedLimitKBps,
		ScratchDir:    scratchDir,
		DestDir:       destDir,
		PlaylistMode:  item.Options.Playlist,
	}

	if item.Options.Playlist {
		// Batch transfers write straight into the destination tree.
		tc.OutputTemplate = filepath.Join(destDir, "%(playlist_title)s", "%(playlist_index)03d - %(title)s.%(ext)s")
	} else {
		tc.OutputTemplate = filepath.Join(scratchDir, "%(title)s.%(ext)s")
	}

	if loc, found := FFmpegLocation(); found {
		tc.FFmpegLocation = loc
	}

	if cfg.CookiesBrowser != "" {
		spec, err := ResolveCookiesBrowser(cfg.CookiesBrowser)
		if err != nil {
			return TransferConfig{}, fmt.Errorf("resolve cookies browser: %w", err)
		}
		tc.CookiesSpec = spec
	}

	if item.Mode == ModeAudio {
		applyAudioOptions(&tc, item.Options)
	} else {
		applyVideoOptions(&tc, item.Options, meta)
		applySubtitleOptions(&tc, item.Options, meta, cfg.IncludeAutoSubs)
	}

	if err := tc.Validate(); err != nil {
		return TransferConfig{}, err
	}
	return tc, nil
}

func applyAudioOptions(tc *TransferConfig, opts DownloadOptions) {
	ext := opts.AudioFormat
	if ext == "" {
		ext = "mp3"
	}

	tc.TargetExt = ext
	tc.FormatSelector = "bestaudio/best"
	tc.ExtractAudio = true
	tc.AudioFormat = ext
	tc.AudioBitrate = opts.AudioBitrate

	caps := audioFormatCaps[ext]
	tc.EmbedThumbnail = caps.Thumb
	tc.EmbedMetadata = caps.Meta

	tc.FilenameSuffix = BuildAudioSuffix(ext, opts.AudioBitrate)
}

func applyVideoOptions(tc *TransferConfig, opts DownloadOptions, meta *MetadataResult) {
	tc.TargetExt = "mp4"

	if opts.FormatID == "" {
		tc.FormatSelector = "bestvideo+bestaudio/best"
		tc.MergeFormat = "mp4"
		return
	}

	container := opts.Container
	if container == "" {
		container = "mp4"
	}
	tc.TargetExt = container

	selected := findFormat(meta, opts.FormatID)
	if selected != nil && selected.HasAudio {
		tc.FormatSelector = opts.FormatID
	} else {
		tc.FormatSelector = opts.FormatID + "+" + audioSelectorFor(container)
		tc.MergeFormat = container
	}

	tc.FilenameSuffix = BuildVideoSuffix(selected)
}

// applySubtitleOptions switches the transfer to an mkv merge with embedded
// subtitles when the item asked for any.
func applySubtitleOptions(tc *TransferConfig, opts DownloadOptions, meta *MetadataResult, includeAuto bool) {
	if opts.Subtitle == "" {
		return
	}

	var languages []string
	if opts.Subtitle == SubtitleAll {
		if meta != nil {
			languages = append(languages, meta.SubtitleLanguages...)
			if includeAuto {
				languages = append(languages, meta.AutoSubtitleLanguages...)
			}
		}
		languages = dedupeSorted(languages)
	} else {
		languages = []string{opts.Subtitle}
	}

	tc.MergeFormat = "mkv"
	tc.TargetExt = "mkv"
	tc.EmbedMetadata = true
	tc.EmbedThumbnail = true
	tc.Subtitles = SubtitleConfig{
		Enabled:     true,
		Languages:   languages,
		IncludeAuto: includeAuto,
	}
}

func findFormat(meta *MetadataResult, formatID string) *MediaFormat {
	if meta == nil {
		return nil
	}
	for i := range meta.Formats {
		if meta.Formats[i].FormatID == formatID {
			return &meta.Formats[i]
		}
	}
	return nil
}

// audioSelectorFor prefers an audio stream that muxes into the container
// without a transcode.
func audioSelectorFor(container string) string {
	switch container {
	case "mp4":
		return "bestaudio[ext=m4a]/bestaudio/best"
	case "webm":
		return "bestaudio[ext=webm]/bestaudio/best"
	default:
		return "bestaudio/best"
	}
}

// BuildVideoSuffix derives the descriptive filename suffix for a selected
// video format, e.g. "[1920x1080 av01]".
func BuildVideoSuffix(f *MediaFormat) string {
	if f == nil {
		return ""
	}

	resolution := ""
	if f.Width > 0 && f.Height > 0 {
		resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	}

	codec := f.VCodec
	if codec == "none" {
		codec = ""
	}

	switch {
	case resolution != "" && codec != "":
		return fmt.Sprintf("[%s %s]", resolution, codec)
	case resolution != "":
		return fmt.Sprintf("[%s]", resolution)
	case codec != "":
		return fmt.Sprintf("[%s]", codec)
	}
	return ""
}

// BuildAudioSuffix derives the descriptive filename suffix for an audio
// download, e.g. "[mp3 192kbps]".
func BuildAudioSuffix(ext, bitrate string) string {
	var parts []string
	if ext != "" {
		parts = append(parts, strings.ToLower(ext))
	}
	if bitrate != "" {
		parts = append(parts, bitrate+"kbps")
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
