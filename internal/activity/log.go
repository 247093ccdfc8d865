// Package activity keeps a bounded in-memory log of relay diagnostics.
// The log is process-wide mutable state with no persistence: capacity is
// fixed at 50 entries with FIFO eviction, and reads expose the newest 10.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// Capacity is the maximum number of retained entries.
	Capacity = 50
	// TailSize is the number of entries exposed on read.
	TailSize = 10
)

// Entry is one diagnostic record.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Log is a fixed-capacity ring of diagnostic entries, safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{entries: make([]Entry, 0, Capacity)}
}

// Append records a diagnostic entry, evicting the oldest when full.
func (l *Log) Append(message string, data map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == Capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:Capacity-1]
	}
	l.entries = append(l.entries, Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Message:   message,
		Data:      data,
	})
}

// Tail returns the newest TailSize entries, oldest first.
func (l *Log) Tail() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := len(l.entries) - TailSize
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
