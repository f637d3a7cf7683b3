package logbuf

import (
	"log/slog"
	"sync"
	"time"

	"github.com/h1v3-io/pulse/internal/ring"
)

// Entry is a single log line captured from slog.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer keeps the most recent log entries for GET /logs.
type Buffer struct {
	mu   sync.Mutex
	ring *ring.Ring[Entry]
}

// New creates a buffer that holds up to size entries.
func New(size int) *Buffer {
	return &Buffer{ring: ring.New[Entry](size)}
}

// Write appends an entry, dropping the oldest when full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.ring.Push(e)
	b.mu.Unlock()
}

// Query returns entries at or above minLevel, oldest first.
// A zero since disables the time filter; limit <= 0 returns all matches.
func (b *Buffer) Query(since time.Time, minLevel slog.Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Entry
	b.ring.Each(func(e Entry) bool {
		if !since.IsZero() && e.Time.Before(since) {
			return true
		}
		if ParseLevel(e.Level) < minLevel {
			return true
		}
		result = append(result, e)
		return true
	})

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

// ParseLevel converts a level name (any case) back to slog.Level.
// Unknown names map to INFO.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
