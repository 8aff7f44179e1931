package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry records one completed transfer, success or not.
type HistoryEntry struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Mode        Mode      `json:"mode"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Message     string    `json:"message,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// History is a JSON-file-backed log of completed transfers, newest first.
type History struct {
	mu       sync.Mutex
	filePath string
	entries  []HistoryEntry
}

// NewHistory loads (or starts) a history at filePath. The returned history
// is always usable: a corrupt or unreadable file is reported through the
// error but the history starts empty rather than blocking startup.
func NewHistory(filePath string) (*History, error) {
	h := &History{filePath: filePath}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return h, fmt.Errorf("reading history: %w", err)
	}
	if err := json.Unmarshal(data, &h.entries); err != nil {
		return h, fmt.Errorf("parsing history: %w", err)
	}
	return h, nil
}

// Add prepends an entry, assigning its id and timestamp, and persists.
func (h *History) Add(entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.CompletedAt = time.Now()
	h.entries = append([]HistoryEntry{entry}, h.entries...)
	return h.persist()
}

// AddFromQueueItem records the terminal state of a queue item.
func (h *History) AddFromQueueItem(item QueueItem, message string) error {
	return h.Add(HistoryEntry{
		URL:     item.URL,
		Title:   item.Title,
		Mode:    item.Mode,
		Status:  item.Status,
		Error:   item.ErrorMessage,
		Message: message,
	})
}

// Entries returns a copy of the history, newest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Search returns entries whose title or URL contains the query,
// case-insensitive. An empty query matches everything.
func (h *History) Search(query string) []HistoryEntry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return h.Entries()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var out []HistoryEntry
	for _, entry := range h.entries {
		if strings.Contains(strings.ToLower(entry.Title), query) ||
			strings.Contains(strings.ToLower(entry.URL), query) {
			out = append(out, entry)
		}
	}
	return out
}

// Delete removes the entry with the given id. Returns false when no entry
// matches.
func (h *History) Delete(id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, entry := range h.entries {
		if entry.ID == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return true, h.persist()
		}
	}
	return false, nil
}

// Clear removes all entries.
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	return h.persist()
}

func (h *History) persist() error {
	data, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.filePath), 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	if err := os.WriteFile(h.filePath, data, 0o644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}
