package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ffmpegCache resolves the ffmpeg location once and serves the cached
// answer afterwards. Detection walks: next to our own executable, PATH,
// then a handful of well-known install locations.
type ffmpegCache struct {
	mu       sync.Mutex
	resolved bool
	location string
	found    bool
}

var ffmpeg ffmpegCache

var wellKnownFFmpegDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/opt/homebrew/bin",
	`C:\ffmpeg\bin`,
}

// FFmpegLocation returns the directory to pass to the engine's
// --ffmpeg-location, or "" when ffmpeg is on PATH and needs no hint. The
// second return is false when ffmpeg could not be found at all.
func FFmpegLocation() (string, bool) {
	ffmpeg.mu.Lock()
	defer ffmpeg.mu.Unlock()

	if ffmpeg.resolved {
		return ffmpeg.location, ffmpeg.found
	}
	ffmpeg.resolved = true
	ffmpeg.location, ffmpeg.found = detectFFmpeg()
	return ffmpeg.location, ffmpeg.found
}

// ResetFFmpegLocation clears the cache so the next call re-detects. For
// tests and for config changes that alter PATH.
func ResetFFmpegLocation() {
	ffmpeg.mu.Lock()
	defer ffmpeg.mu.Unlock()
	ffmpeg.resolved = false
	ffmpeg.location = ""
	ffmpeg.found = false
}

func detectFFmpeg() (string, bool) {
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		if ffmpegPresentIn(dir) {
			return dir, true
		}
	}

	if _, err := exec.LookPath("ffmpeg"); err == nil {
		return "", true
	}

	for _, dir := range wellKnownFFmpegDirs {
		if ffmpegPresentIn(dir) {
			return dir, true
		}
	}
	return "", false
}

func ffmpegPresentIn(dir string) bool {
	for _, name := range []string{"ffmpeg", "ffmpeg.exe"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// FormatSize renders a byte count for humans. Non-positive counts render
// as "Unknown", matching how unknown sizes arrive from the engine.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "Unknown"
	}

	value := float64(bytes)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}

// FormatETA renders a seconds count as h:mm:ss or m:ss.
func FormatETA(seconds int) string {
	if seconds < 0 {
		return "?"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
