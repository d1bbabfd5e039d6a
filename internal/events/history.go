package events

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

// DefaultHistorySize bounds the in-memory event history.
const DefaultHistorySize = 200

// History keeps the most recent dispatch events in memory. It is a watcher.Sink.
type History struct {
	mu      sync.RWMutex
	entries []watcher.Event
	maxSize int
}

// NewHistory creates a history holding at most maxEntries events.
func NewHistory(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = DefaultHistorySize
	}
	return &History{entries: make([]watcher.Event, 0, maxEntries), maxSize: maxEntries}
}

// Publish records ev, evicting the oldest event when full.
func (h *History) Publish(_ context.Context, ev watcher.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, ev)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// Last returns up to n of the newest events, oldest first. n <= 0 means all.
func (h *History) Last(n int) []watcher.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if n > 0 && n < len(h.entries) {
		start = len(h.entries) - n
	}
	return append([]watcher.Event(nil), h.entries[start:]...)
}

// Since returns events dispatched at or after cutoff, oldest first.
func (h *History) Since(cutoff time.Time) []watcher.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []watcher.Event
	for _, ev := range h.entries {
		if !ev.At.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

// Failures counts recorded events whose action failed.
func (h *History) Failures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, ev := range h.entries {
		if ev.Error != "" {
			n++
		}
	}
	return n
}
