package domain

import (
	"sync"
	"time"
)

// ActivityLevel classifies an activity item for rendering.
type ActivityLevel string

const (
	ActivityInfo    ActivityLevel = "info"
	ActivitySuccess ActivityLevel = "success"
	ActivityError   ActivityLevel = "error"
)

// ActivityItem is one timestamped, human-readable event. The UI layer renders
// these; nothing in the core reads them back.
type ActivityItem struct {
	Time    time.Time     `json:"time"`
	Level   ActivityLevel `json:"level"`
	Message string        `json:"message"`
	File    string        `json:"file,omitempty"`
}

// ActivityLog is an append-only, capped-length ring of activity items.
// Safe for concurrent use; the status surface reads it from another
// goroutine.
type ActivityLog struct {
	mu    sync.Mutex
	max   int
	items []ActivityItem
}

// NewActivityLog creates a log that retains at most max items.
func NewActivityLog(max int) *ActivityLog {
	return &ActivityLog{max: max}
}

// Add appends an item, evicting the oldest when the cap is reached.
func (l *ActivityLog) Add(level ActivityLevel, message, file string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, ActivityItem{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		File:    file,
	})
	if len(l.items) > l.max {
		l.items = l.items[len(l.items)-l.max:]
	}
}

// Items returns a copy of the retained items, oldest first.
func (l *ActivityLog) Items() []ActivityItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ActivityItem, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of retained items.
func (l *ActivityLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
