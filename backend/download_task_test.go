package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func collectEvents(t *testing.T, task *TransferTask) []TaskEvent {
	t.Helper()
	var events []TaskEvent
	for ev := range task.Events() {
		events = append(events, ev)
	}
	return events
}

func lastEvent(t *testing.T, events []TaskEvent) TaskEvent {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("Expected at least one event")
	}
	return events[len(events)-1]
}

func TestTransferTaskSuccess(t *testing.T) {
	scratch, err := os.MkdirTemp("", "task-test-*")
	if err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()

	engine := &fakeEngine{
		download: func(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error {
			hook(ProgressUpdate{Stage: StageDownloading, DownloadedBytes: 500, TotalBytes: 1000})
			hook(ProgressUpdate{Stage: StageDownloading, DownloadedBytes: 1000, TotalBytes: 1000})
			return os.WriteFile(filepath.Join(cfg.ScratchDir, "Clip.mp4"), []byte("data"), 0o644)
		},
	}

	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: filepath.Join(scratch, "%(title)s.%(ext)s"),
		ScratchDir:     scratch,
		DestDir:        dest,
		FilenameSuffix: "[1280x720 avc1]",
	}

	task := NewTransferTask(engine, "https://example.com/v", cfg)
	task.Start(context.Background())

	events := collectEvents(t, task)
	final := lastEvent(t, events)

	if final.Kind != EventFinished {
		t.Fatalf("Expected finished, got kind=%d message=%s", final.Kind, final.Message)
	}
	if final.Percent != 100 {
		t.Errorf("Expected 100%%, got %f", final.Percent)
	}

	if _, err := os.Stat(filepath.Join(dest, "Clip [1280x720 avc1].mp4")); err != nil {
		t.Errorf("Expected placed artifact: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("Scratch directory should be removed")
	}
}

func TestTransferTaskEngineError(t *testing.T) {
	scratch, err := os.MkdirTemp("", "task-test-*")
	if err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{
		download: func(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error {
			return errors.New("HTTP Error 403: Forbidden")
		},
	}

	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: filepath.Join(scratch, "%(title)s.%(ext)s"),
		ScratchDir:     scratch,
		DestDir:        t.TempDir(),
	}

	task := NewTransferTask(engine, "https://example.com/v", cfg)
	task.Start(context.Background())

	final := lastEvent(t, collectEvents(t, task))
	if final.Kind != EventError {
		t.Fatalf("Expected error event, got kind=%d", final.Kind)
	}
	if !strings.HasPrefix(final.Message, "Error: ") {
		t.Errorf("Error message should carry prefix: %s", final.Message)
	}
	if !strings.Contains(final.Message, "403") {
		t.Errorf("Error message should carry engine detail: %s", final.Message)
	}
}

func TestTransferTaskErrorTruncated(t *testing.T) {
	scratch, err := os.MkdirTemp("", "task-test-*")
	if err != nil {
		t.Fatal(err)
	}

	long := strings.Repeat("x", 500)
	engine := &fakeEngine{
		download: func(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error {
			return errors.New(long)
		},
	}

	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: filepath.Join(scratch, "%(title)s.%(ext)s"),
		ScratchDir:     scratch,
		DestDir:        t.TempDir(),
	}

	task := NewTransferTask(engine, "https://example.com/v", cfg)
	task.Start(context.Background())

	final := lastEvent(t, collectEvents(t, task))
	if len(final.Message) > len("Error: ")+errorMessageLimit {
		t.Errorf("Error message not truncated: %d chars", len(final.Message))
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("ユ", 150)

	got := truncate(long, errorMessageLimit)
	if !utf8.ValidString(got) {
		t.Error("Truncated message must stay valid UTF-8")
	}
	if utf8.RuneCountInString(got) != errorMessageLimit {
		t.Errorf("Expected %d runes, got %d", errorMessageLimit, utf8.RuneCountInString(got))
	}

	short := "ちいさい"
	if truncate(short, errorMessageLimit) != short {
		t.Error("Short messages should pass through untouched")
	}
}

func TestTransferTaskCancellation(t *testing.T) {
	scratch, err := os.MkdirTemp("", "task-test-*")
	if err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{
		download: func(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error {
			for i := 0; i < 100; i++ {
				if err := hook(ProgressUpdate{Stage: StageDownloading, DownloadedBytes: int64(i), TotalBytes: 100}); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: filepath.Join(scratch, "%(title)s.%(ext)s"),
		ScratchDir:     scratch,
		DestDir:        t.TempDir(),
	}

	task := NewTransferTask(engine, "https://example.com/v", cfg)
	task.Cancel()
	task.Start(context.Background())

	final := lastEvent(t, collectEvents(t, task))
	if final.Kind != EventError || final.Message != CancelledMessage {
		t.Errorf("Expected cancelled terminal event, got kind=%d message=%s", final.Kind, final.Message)
	}
}

func TestTransferTaskNoArtifact(t *testing.T) {
	scratch, err := os.MkdirTemp("", "task-test-*")
	if err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{}

	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: filepath.Join(scratch, "%(title)s.%(ext)s"),
		ScratchDir:     scratch,
		DestDir:        t.TempDir(),
	}

	task := NewTransferTask(engine, "https://example.com/v", cfg)
	task.Start(context.Background())

	final := lastEvent(t, collectEvents(t, task))
	if final.Kind != EventError {
		t.Fatalf("Expected error for empty scratch, got kind=%d", final.Kind)
	}
	if !strings.Contains(final.Message, "no artifact") {
		t.Errorf("Unexpected message: %s", final.Message)
	}
}

func TestTransferTaskPostprocessEvent(t *testing.T) {
	scratch, err := os.MkdirTemp("", "task-test-*")
	if err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{
		download: func(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error {
			hook(ProgressUpdate{Stage: StagePostprocessing})
			return os.WriteFile(filepath.Join(cfg.ScratchDir, "Clip.mp4"), []byte("data"), 0o644)
		},
	}

	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: filepath.Join(scratch, "%(title)s.%(ext)s"),
		ScratchDir:     scratch,
		DestDir:        t.TempDir(),
	}

	task := NewTransferTask(engine, "https://example.com/v", cfg)
	task.Start(context.Background())

	events := collectEvents(t, task)

	seen := false
	for _, ev := range events {
		if ev.Kind == EventProgress && ev.Message == processingMessage {
			seen = true
			if ev.Percent != 100 {
				t.Errorf("Postprocess progress should be 100, got %f", ev.Percent)
			}
		}
	}
	if !seen {
		t.Error("Expected a postprocessing progress event")
	}
}

func TestTransferTaskPlaylistSuffixPass(t *testing.T) {
	dest := t.TempDir()
	sub := filepath.Join(dest, "List")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{
		download: func(ctx context.Context, url string, cfg TransferConfig, hook ProgressHook) error {
			return os.WriteFile(filepath.Join(sub, "001 - First.mp4"), []byte("data"), 0o644)
		},
	}

	cfg := TransferConfig{
		TargetExt:      "mp4",
		FormatSelector: "best",
		OutputTemplate: filepath.Join(dest, "%(playlist_title)s", "%(title)s.%(ext)s"),
		DestDir:        dest,
		PlaylistMode:   true,
		FilenameSuffix: "[best]",
	}

	task := NewTransferTask(engine, "https://example.com/list", cfg)
	task.Start(context.Background())

	final := lastEvent(t, collectEvents(t, task))
	if final.Kind != EventFinished {
		t.Fatalf("Expected finished, got kind=%d message=%s", final.Kind, final.Message)
	}
	if final.Message != playlistSavedMessage {
		t.Errorf("Unexpected message: %s", final.Message)
	}

	if _, err := os.Stat(filepath.Join(sub, "001 - First [best].mp4")); err != nil {
		t.Error("Playlist file should carry the suffix")
	}
}
