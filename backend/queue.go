package backend

import (
	"sync"

	"github.com/google/uuid"
)

// Download queue management

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transition is possible for the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusError, StatusCancelled:
		return true
	}
	return false
}

type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// QueueItem represents a single download request in the queue.
// Items are addressed by their position in the queue; the id exists only so
// the controller can keep hold of its in-flight item while rows before it
// are added or removed.
type QueueItem struct {
	URL          string          `json:"url"`
	Status       Status          `json:"status"`
	Title        string          `json:"title"`
	Mode         Mode            `json:"mode"`
	Options      DownloadOptions `json:"options"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Progress     float64         `json:"progress"`

	id string
}

// QueueManager owns the ordered list of download requests and their
// lifecycle state. All operations are safe for concurrent use; none block.
type QueueManager struct {
	mu        sync.RWMutex
	items     []QueueItem
	onChanged func()
}

func NewQueueManager() *QueueManager {
	return &QueueManager{items: make([]QueueItem, 0)}
}

// SetChangedCallback registers a callback invoked after every mutation that
// changes the queue's composition or an item's state.
func (q *QueueManager) SetChangedCallback(cb func()) {
	q.mu.Lock()
	q.onChanged = cb
	q.mu.Unlock()
}

func (q *QueueManager) notifyChanged() {
	q.mu.RLock()
	cb := q.onChanged
	q.mu.RUnlock()
	if cb != nil {
		cb()
	}
}

// Add appends a new pending item and returns its index.
func (q *QueueManager) Add(url string, mode Mode, options DownloadOptions) int {
	q.mu.Lock()
	q.items = append(q.items, QueueItem{
		URL:     url,
		Status:  StatusPending,
		Title:   url,
		Mode:    mode,
		Options: options,
		id:      uuid.New().String(),
	})
	index := len(q.items) - 1
	q.mu.Unlock()

	q.notifyChanged()
	return index
}

// Remove deletes the item at index. Items that are actively downloading or
// were cancelled while active cannot be removed.
func (q *QueueManager) Remove(index int) bool {
	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return false
	}
	switch q.items[index].Status {
	case StatusPending, StatusFinished, StatusError:
	default:
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items[:index], q.items[index+1:]...)
	q.mu.Unlock()

	q.notifyChanged()
	return true
}

// UpdateStatus sets the status and error message of the item at index.
func (q *QueueManager) UpdateStatus(index int, status Status, errorMessage string) bool {
	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return false
	}
	q.items[index].Status = status
	q.items[index].ErrorMessage = errorMessage
	q.mu.Unlock()

	q.notifyChanged()
	return true
}

// UpdateTitle sets the display title of the item at index.
func (q *QueueManager) UpdateTitle(index int, title string) bool {
	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return false
	}
	q.items[index].Title = title
	q.mu.Unlock()

	q.notifyChanged()
	return true
}

// UpdateProgress sets the progress of the item at index, clamped to [0,100].
func (q *QueueManager) UpdateProgress(index int, progress float64) bool {
	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return false
	}
	q.items[index].Progress = clampProgress(progress)
	q.mu.Unlock()

	q.notifyChanged()
	return true
}

func clampProgress(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// GetNextPending returns the lowest-index pending item, or ok=false if none.
func (q *QueueManager) GetNextPending() (int, QueueItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i := range q.items {
		if q.items[i].Status == StatusPending {
			return i, q.items[i], true
		}
	}
	return -1, QueueItem{}, false
}

// GetAll returns a copy of the queue.
func (q *QueueManager) GetAll() []QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]QueueItem, len(q.items))
	copy(result, q.items)
	return result
}

// Get returns a copy of the item at index.
func (q *QueueManager) Get(index int) (QueueItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if index < 0 || index >= len(q.items) {
		return QueueItem{}, false
	}
	return q.items[index], true
}

func (q *QueueManager) CountPending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	count := 0
	for i := range q.items {
		if q.items[i].Status == StatusPending {
			count++
		}
	}
	return count
}

func (q *QueueManager) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items) == 0
}

// ClearFinished removes every item in a terminal state. Returns whether the
// queue changed.
func (q *QueueManager) ClearFinished() bool {
	q.mu.Lock()
	before := len(q.items)
	filtered := q.items[:0]
	for _, item := range q.items {
		if !item.Status.Terminal() {
			filtered = append(filtered, item)
		}
	}
	q.items = filtered
	changed := len(q.items) != before
	q.mu.Unlock()

	if changed {
		q.notifyChanged()
	}
	return changed
}

// ClearAll removes every item unconditionally. Returns whether the queue
// was non-empty.
func (q *QueueManager) ClearAll() bool {
	q.mu.Lock()
	changed := len(q.items) > 0
	q.items = make([]QueueItem, 0)
	q.mu.Unlock()

	if changed {
		q.notifyChanged()
	}
	return changed
}

// CancelPending marks every still-pending item cancelled in one pass and
// returns the number of items affected.
func (q *QueueManager) CancelPending() int {
	q.mu.Lock()
	count := 0
	for i := range q.items {
		if q.items[i].Status == StatusPending {
			q.items[i].Status = StatusCancelled
			count++
		}
	}
	q.mu.Unlock()

	if count > 0 {
		q.notifyChanged()
	}
	return count
}

// indexOf re-resolves the current index of the item with the given id.
// Indexes shift when earlier rows are removed while a download runs, so the
// controller addresses its in-flight item through this.
func (q *QueueManager) indexOf(id string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i := range q.items {
		if q.items[i].id == id {
			return i
		}
	}
	return -1
}

func (q *QueueManager) updateStatusByID(id string, status Status, errorMessage string) bool {
	q.mu.Lock()
	updated := false
	for i := range q.items {
		if q.items[i].id == id {
			q.items[i].Status = status
			q.items[i].ErrorMessage = errorMessage
			updated = true
			break
		}
	}
	q.mu.Unlock()

	if updated {
		q.notifyChanged()
	}
	return updated
}

func (q *QueueManager) updateTitleByID(id string, title string) bool {
	q.mu.Lock()
	updated := false
	for i := range q.items {
		if q.items[i].id == id {
			q.items[i].Title = title
			updated = true
			break
		}
	}
	q.mu.Unlock()

	if updated {
		q.notifyChanged()
	}
	return updated
}

func (q *QueueManager) updateProgressByID(id string, progress float64) bool {
	q.mu.Lock()
	updated := false
	for i := range q.items {
		if q.items[i].id == id {
			q.items[i].Progress = clampProgress(progress)
			updated = true
			break
		}
	}
	q.mu.Unlock()

	if updated {
		q.notifyChanged()
	}
	return updated
}
