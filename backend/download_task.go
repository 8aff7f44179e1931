package backend

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// EventKind classifies a transfer task event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventFinished
	EventError
)

// TaskEvent is one update from a running transfer task.
type TaskEvent struct {
	Kind    EventKind
	Percent float64
	Message string
}

// CancelledMessage is the terminal message for an aborted transfer. The
// controller matches on it to classify the outcome.
const CancelledMessage = "Cancelled."

// Terminal messages for successful transfers.
const (
	fileSavedMessage     = "DONE! File saved."
	playlistSavedMessage = "DONE! Playlist saved."
	processingMessage    = "Processing / Converting..."
)

const errorMessageLimit = 100

// TransferTask runs one transfer end to end: engine invocation, progress
// throttling, artifact placement. Events are delivered on the channel from
// Events; the channel closes after the terminal event.
type TransferTask struct {
	url    string
	cfg    TransferConfig
	engine Engine

	throttle  *ProgressThrottle
	cancelled atomic.Bool
	events    chan TaskEvent
	startedAt time.Time
}

func NewTransferTask(engine Engine, url string, cfg TransferConfig) *TransferTask {
	return &TransferTask{
		url:      url,
		cfg:      cfg,
		engine:   engine,
		throttle: NewProgressThrottle(),
		events:   make(chan TaskEvent, 16),
	}
}

// Events returns the task's event stream. Closed after the terminal event.
func (t *TransferTask) Events() <-chan TaskEvent {
	return t.events
}

// Cancel requests the transfer stop. Safe from any goroutine; takes effect
// at the next progress event.
func (t *TransferTask) Cancel() {
	t.cancelled.Store(true)
}

// Start launches the transfer on its own goroutine.
func (t *TransferTask) Start(ctx context.Context) {
	t.startedAt = time.Now()
	go t.run(ctx)
}

func (t *TransferTask) run(ctx context.Context) {
	defer close(t.events)
	defer func() {
		if t.cfg.ScratchDir != "" {
			os.RemoveAll(t.cfg.ScratchDir)
		}
	}()

	err := t.engine.Download(ctx, t.url, t.cfg, t.hook)

	if t.cancelled.Load() {
		t.emit(TaskEvent{Kind: EventError, Message: CancelledMessage})
		return
	}
	if err != nil {
		t.emit(TaskEvent{Kind: EventError, Message: "Error: " + truncate(err.Error(), errorMessageLimit)})
		return
	}

	if t.cfg.PlaylistMode {
		cutoff := t.startedAt.Add(-2 * time.Second)
		ApplySuffixToRecentFiles(t.cfg.DestDir, t.cfg.TargetExt, t.cfg.FilenameSuffix, cutoff)
		t.emit(TaskEvent{Kind: EventFinished, Percent: 100, Message: playlistSavedMessage})
		return
	}

	if err := t.place(); err != nil {
		t.emit(TaskEvent{Kind: EventError, Message: "Error: " + truncate(err.Error(), errorMessageLimit)})
		return
	}
	t.emit(TaskEvent{Kind: EventFinished, Percent: 100, Message: fileSavedMessage})
}

func (t *TransferTask) place() error {
	artifact, err := ResolveArtifact(t.cfg.ScratchDir, t.cfg.TargetExt)
	if err != nil {
		return err
	}
	moved, err := MoveOverwrite(artifact, t.cfg.DestDir)
	if err != nil {
		return err
	}
	_, err = ApplySuffix(moved, t.cfg.FilenameSuffix)
	return err
}

// hook is the engine progress callback. It aborts the engine call when a
// cancel has been requested, and forwards throttled progress otherwise.
func (t *TransferTask) hook(update ProgressUpdate) error {
	if t.cancelled.Load() {
		return ErrAborted
	}

	if update.Stage == StagePostprocessing {
		t.emit(TaskEvent{Kind: EventProgress, Percent: 100, Message: processingMessage})
		return nil
	}

	percent := float64(0)
	if update.TotalBytes > 0 {
		percent = float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
	}
	if !t.throttle.ShouldEmit(percent, update.DownloadedBytes, update.TotalBytes) {
		return nil
	}

	t.emit(TaskEvent{
		Kind:    EventProgress,
		Percent: percent,
		Message: formatProgressMessage(update),
	})
	return nil
}

func (t *TransferTask) emit(ev TaskEvent) {
	if ev.Kind != EventProgress {
		t.events <- ev
		return
	}
	select {
	case t.events <- ev:
	default:
		// Drop progress rather than block the engine.
	}
}

func formatProgressMessage(u ProgressUpdate) string {
	total := "?"
	if u.TotalBytes > 0 {
		total = FormatSize(u.TotalBytes)
	}
	msg := fmt.Sprintf("Downloading: %s / %s", FormatSize(u.DownloadedBytes), total)
	if u.SpeedBPS > 0 {
		msg += fmt.Sprintf(" | %s/s", FormatSize(int64(u.SpeedBPS)))
	}
	if u.ETASeconds >= 0 {
		msg += " | ETA: " + FormatETA(u.ETASeconds)
	}
	return msg
}

// truncate limits a message to the given number of runes, never splitting
// a multi-byte character.
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
