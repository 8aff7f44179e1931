package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Summary counts the outcomes of one queue run.
type Summary struct {
	Finished  int `json:"finished"`
	Errors    int `json:"errors"`
	Cancelled int `json:"cancelled"`
}

// ControllerCallbacks receive per-item and end-of-run notifications.
// Nil callbacks are skipped.
type ControllerCallbacks struct {
	OnProgress func(index int, percent float64, text string)
	OnFinished func(index int, message string)
	OnError    func(index int, message string)
	OnSummary  func(summary Summary)
}

// QueueController drains the queue one item at a time: metadata fetch,
// transfer configuration, transfer, placement. A single run is active at
// once.
type QueueController struct {
	queue     *QueueManager
	engine    Engine
	config    *Config
	history   *History
	callbacks ControllerCallbacks

	mu      sync.Mutex
	active  bool
	current *TransferTask

	cancelRequested atomic.Bool
}

func NewQueueController(queue *QueueManager, engine Engine, config *Config, history *History, callbacks ControllerCallbacks) *QueueController {
	return &QueueController{
		queue:     queue,
		engine:    engine,
		config:    config,
		history:   history,
		callbacks: callbacks,
	}
}

// Active reports whether a run is in progress.
func (c *QueueController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start launches a run on its own goroutine. Returns false when a run is
// already active.
func (c *QueueController) Start(ctx context.Context) bool {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return false
	}
	c.active = true
	c.mu.Unlock()

	go c.Run(ctx)
	return true
}

// Cancel aborts the current item wherever it is in its lifecycle: the flag
// covers the metadata phase and the gap between items, the task cancel
// covers an in-flight transfer. With all set, every pending item is marked
// cancelled as well; otherwise the run continues with the next item.
func (c *QueueController) Cancel(all bool) {
	c.cancelRequested.Store(true)
	if all {
		c.queue.CancelPending()
	}
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current != nil {
		current.Cancel()
	}
}

// Run drains the queue synchronously. Start is the usual entry point; Run
// is exported so callers that already own a goroutine can drive it.
func (c *QueueController) Run(ctx context.Context) {
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()

	var summary Summary
	defer func() {
		c.mu.Lock()
		c.active = false
		c.current = nil
		c.mu.Unlock()
		c.cancelRequested.Store(false)

		if c.callbacks.OnSummary != nil {
			c.callbacks.OnSummary(summary)
		}
		slog.Info("queue run finished",
			"finished", summary.Finished,
			"errors", summary.Errors,
			"cancelled", summary.Cancelled)
	}()

	for {
		index, item, ok := c.queue.GetNextPending()
		if !ok {
			return
		}
		if ctx.Err() != nil || c.cancelRequested.Load() {
			c.queue.UpdateStatus(index, StatusCancelled, "")
			summary.Cancelled++
			// A single cancel is consumed by one item; a dead context
			// keeps draining.
			if ctx.Err() == nil {
				c.cancelRequested.Store(false)
			}
			continue
		}

		c.processItem(ctx, index, item, &summary)
	}
}

func (c *QueueController) processItem(ctx context.Context, index int, item QueueItem, summary *Summary) {
	c.queue.UpdateStatus(index, StatusDownloading, "")
	c.queue.updateProgressByID(item.id, 0)

	slog.Info("transfer starting", "url", item.URL, "mode", item.Mode)

	outcome := <-NewMetadataTask(c.engine, item.URL).Start(ctx)
	if outcome.Err != nil {
		msg := "Error: " + truncate(outcome.Err.Error(), errorMessageLimit)
		c.finishItem(item, summary, StatusError, msg)
		return
	}
	meta := outcome.Result
	if meta.Info.Title != "" {
		c.queue.updateTitleByID(item.id, meta.Info.Title)
	}

	if c.cancelRequested.Load() {
		c.finishItem(item, summary, StatusCancelled, CancelledMessage)
		return
	}

	scratch := ""
	if !item.Options.Playlist {
		var err error
		scratch, err = os.MkdirTemp("", "mdl-transfer-*")
		if err != nil {
			c.finishItem(item, summary, StatusError, "Error: "+truncate(err.Error(), errorMessageLimit))
			return
		}
	}

	cfg, err := BuildTransferConfig(item, meta, c.config, scratch)
	if err != nil {
		os.RemoveAll(scratch)
		c.finishItem(item, summary, StatusError, "Error: "+truncate(err.Error(), errorMessageLimit))
		return
	}

	task := NewTransferTask(c.engine, item.URL, cfg)
	c.mu.Lock()
	c.current = task
	c.mu.Unlock()

	task.Start(ctx)
	c.consumeEvents(task, item, summary)

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *QueueController) consumeEvents(task *TransferTask, item QueueItem, summary *Summary) {
	for ev := range task.Events() {
		switch ev.Kind {
		case EventProgress:
			c.queue.updateProgressByID(item.id, ev.Percent)
			if c.callbacks.OnProgress != nil {
				if idx := c.queue.indexOf(item.id); idx >= 0 {
					c.callbacks.OnProgress(idx, ev.Percent, ev.Message)
				}
			}
		case EventFinished:
			c.queue.updateProgressByID(item.id, 100)
			c.finishItem(item, summary, StatusFinished, ev.Message)
		case EventError:
			if strings.Contains(strings.ToLower(ev.Message), "cancel") {
				c.finishItem(item, summary, StatusCancelled, CancelledMessage)
			} else {
				c.finishItem(item, summary, StatusError, ev.Message)
			}
		}
	}
}

// finishItem records a terminal outcome: queue status, callbacks, summary,
// history.
func (c *QueueController) finishItem(item QueueItem, summary *Summary, status Status, message string) {
	errMsg := ""
	if status != StatusFinished {
		errMsg = message
	}
	c.queue.updateStatusByID(item.id, status, errMsg)

	idx := c.queue.indexOf(item.id)
	switch status {
	case StatusFinished:
		summary.Finished++
		if c.callbacks.OnFinished != nil {
			c.callbacks.OnFinished(idx, message)
		}
	case StatusCancelled:
		summary.Cancelled++
		// Item-level cancel is consumed; the run moves on unless the queue
		// itself was drained by CancelPending.
		c.cancelRequested.Store(false)
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(idx, message)
		}
	default:
		summary.Errors++
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(idx, message)
		}
	}

	if c.history != nil && idx >= 0 {
		if current, ok := c.queue.Get(idx); ok {
			if err := c.history.AddFromQueueItem(current, message); err != nil {
				slog.Warn("history append failed", "err", err)
			}
		}
	}

	slog.Info("transfer done", "url", item.URL, "status", status, "message", message)
}

// DownloadSingle runs one URL end to end outside the queue, for direct API
// use. It blocks until the transfer completes.
func (c *QueueController) DownloadSingle(ctx context.Context, url string, mode Mode, options DownloadOptions) (string, error) {
	item := QueueItem{URL: url, Mode: mode, Options: options, Status: StatusPending}

	outcome := <-NewMetadataTask(c.engine, url).Start(ctx)
	if outcome.Err != nil {
		return "", outcome.Err
	}

	scratch := ""
	if !options.Playlist {
		dir, err := os.MkdirTemp("", "mdl-transfer-*")
		if err != nil {
			return "", err
		}
		scratch = dir
	}

	cfg, err := BuildTransferConfig(item, outcome.Result, c.config, scratch)
	if err != nil {
		os.RemoveAll(scratch)
		return "", err
	}

	task := NewTransferTask(c.engine, url, cfg)
	task.Start(ctx)

	for ev := range task.Events() {
		switch ev.Kind {
		case EventFinished:
			return ev.Message, nil
		case EventError:
			return "", fmt.Errorf("%s", ev.Message)
		}
	}
	return "", fmt.Errorf("transfer ended without result")
}
