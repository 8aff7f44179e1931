package backend

import (
	"strings"
	"testing"
)

func argsContain(args []string, want ...string) bool {
	joined := " " + strings.Join(args, " ") + " "
	return strings.Contains(joined, " "+strings.Join(want, " ")+" ")
}

func TestTransferArgsBaseline(t *testing.T) {
	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "bestvideo+bestaudio/best",
		MergeFormat:    "mp4",
		OutputTemplate: "/scratch/%(title)s.%(ext)s",
		ScratchDir:     "/scratch",
		DestDir:        "/out",
	}

	args := transferArgs("https://example.com/v", cfg)

	for _, want := range [][]string{
		{"--newline"},
		{"--retries", "10"},
		{"--fragment-retries", "10"},
		{"--socket-timeout", "15"},
		{"--concurrent-fragments", "4"},
		{"--file-access-retries", "5"},
		{"--force-overwrites"},
		{"--no-playlist"},
		{"-f", "bestvideo+bestaudio/best"},
		{"--merge-output-format", "mp4"},
		{"-o", "/scratch/%(title)s.%(ext)s"},
	} {
		if !argsContain(args, want...) {
			t.Errorf("Missing %v in args: %v", want, args)
		}
	}

	if args[len(args)-1] != "https://example.com/v" {
		t.Errorf("URL must be the final argument, got %s", args[len(args)-1])
	}
}

func TestTransferArgsPlaylistMode(t *testing.T) {
	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: "/out/%(playlist_title)s/%(title)s.%(ext)s",
		DestDir:        "/out",
		PlaylistMode:   true,
	}

	args := transferArgs("https://example.com/list", cfg)

	if !argsContain(args, "--yes-playlist") {
		t.Errorf("Expected --yes-playlist: %v", args)
	}
	if argsContain(args, "--no-playlist") {
		t.Errorf("Unexpected --no-playlist: %v", args)
	}
}

func TestTransferArgsAudioExtraction(t *testing.T) {
	cfg := TransferConfig{
		TargetExt:      "mp3",
		FormatSelector: "bestaudio/best",
		OutputTemplate: "/scratch/%(title)s.%(ext)s",
		ScratchDir:     "/scratch",
		DestDir:        "/out",
		ExtractAudio:   true,
		AudioFormat:    "mp3",
		AudioBitrate:   "192",
		EmbedThumbnail: true,
		EmbedMetadata:  true,
	}

	args := transferArgs("https://example.com/a", cfg)

	for _, want := range [][]string{
		{"-x", "--audio-format", "mp3"},
		{"--audio-quality", "192"},
		{"--embed-thumbnail"},
		{"--embed-metadata"},
	} {
		if !argsContain(args, want...) {
			t.Errorf("Missing %v in args: %v", want, args)
		}
	}
}

func TestTransferArgsSubtitles(t *testing.T) {
	cfg := TransferConfig{
		TargetExt:      "mkv",
		FormatSelector: "best",
		MergeFormat:    "mkv",
		OutputTemplate: "/scratch/%(title)s.%(ext)s",
		ScratchDir:     "/scratch",
		DestDir:        "/out",
		Subtitles: SubtitleConfig{
			Enabled:     true,
			Languages:   []string{"en", "ja"},
			IncludeAuto: true,
		},
	}

	args := transferArgs("https://example.com/v", cfg)

	for _, want := range [][]string{
		{"--write-subs"},
		{"--embed-subs"},
		{"--sub-format", "srt/best"},
		{"--convert-subs", "srt"},
		{"--write-auto-subs"},
		{"--sub-langs", "en,ja"},
	} {
		if !argsContain(args, want...) {
			t.Errorf("Missing %v in args: %v", want, args)
		}
	}
}

func TestTransferArgsOptionalFlags(t *testing.T) {
	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: "/scratch/%(title)s.%(ext)s",
		ScratchDir:     "/scratch",
		DestDir:        "/out",
		RateLimitKBps:  500,
		FFmpegLocation: "/opt/ffmpeg",
		CookiesSpec:    "firefox:/home/u/.librewolf/abc.default",
	}

	args := transferArgs("https://example.com/v", cfg)

	for _, want := range [][]string{
		{"--limit-rate", "500K"},
		{"--ffmpeg-location", "/opt/ffmpeg"},
		{"--cookies-from-browser", "firefox:/home/u/.librewolf/abc.default"},
	} {
		if !argsContain(args, want...) {
			t.Errorf("Missing %v in args: %v", want, args)
		}
	}
}

func TestTransferArgsOmitsUnsetFlags(t *testing.T) {
	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: "/scratch/%(title)s.%(ext)s",
		ScratchDir:     "/scratch",
		DestDir:        "/out",
	}

	args := transferArgs("https://example.com/v", cfg)

	for _, flag := range []string{"--limit-rate", "--cookies-from-browser", "-x", "--write-subs", "--merge-output-format"} {
		if argsContain(args, flag) {
			t.Errorf("Unexpected %s in args: %v", flag, args)
		}
	}
}

func TestParseProgressLineDownload(t *testing.T) {
	update, ok := parseProgressLine("mdl-dl 1048576 10485760 NA 524288.5 17")
	if !ok {
		t.Fatal("Expected line to parse")
	}
	if update.Stage != StageDownloading {
		t.Errorf("Expected downloading stage, got %s", update.Stage)
	}
	if update.DownloadedBytes != 1048576 || update.TotalBytes != 10485760 {
		t.Errorf("Unexpected byte counts: %+v", update)
	}
	if update.SpeedBPS != 524288.5 {
		t.Errorf("Unexpected speed: %f", update.SpeedBPS)
	}
	if update.ETASeconds != 17 {
		t.Errorf("Unexpected ETA: %d", update.ETASeconds)
	}
}

func TestParseProgressLineEstimateFallback(t *testing.T) {
	update, ok := parseProgressLine("mdl-dl 100 NA 2000 NA NA")
	if !ok {
		t.Fatal("Expected line to parse")
	}
	if update.TotalBytes != 2000 {
		t.Errorf("Expected estimate fallback, got %d", update.TotalBytes)
	}
	if update.ETASeconds != -1 {
		t.Errorf("Unknown ETA should be -1, got %d", update.ETASeconds)
	}
}

func TestParseProgressLinePostprocess(t *testing.T) {
	update, ok := parseProgressLine("mdl-pp started")
	if !ok {
		t.Fatal("Expected line to parse")
	}
	if update.Stage != StagePostprocessing {
		t.Errorf("Expected postprocessing stage, got %s", update.Stage)
	}
}

func TestParseProgressLineIgnoresNoise(t *testing.T) {
	for _, line := range []string{
		"",
		"[download] Destination: /tmp/clip.mp4",
		"mdl-dl 100",
		"WARNING: unrelated output",
	} {
		if _, ok := parseProgressLine(line); ok {
			t.Errorf("Expected %q to be ignored", line)
		}
	}
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(16)
	b.Write([]byte("first line\n"))
	b.Write([]byte("ERROR: final\n"))

	if got := b.Tail(); got != "ERROR: final" {
		t.Errorf("Expected last line, got %q", got)
	}
}
