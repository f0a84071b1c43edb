// Package logbuf keeps the last N scheduler log lines in memory so the
// operator dashboard can tail worker activity without a log shipper.
package logbuf

import (
	"fmt"
	"sync"
	"time"
)

// Entry is a single captured log line.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Format renders the entry the way the dashboard displays it.
func (e Entry) Format() string {
	return fmt.Sprintf("[%s] [%s] %s", e.Timestamp.Format("15:04:05"), e.Level, e.Message)
}

// Buffer is a fixed-size circular buffer with a monotonic sequence number.
// It is a single-writer structure owned by the scheduler; readers copy
// snapshots. No lock is held across I/O.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	count   int
	seq     uint64
}

// New creates a buffer holding at most maxLines entries. maxLines is
// clamped to [10, 5000].
func New(maxLines int) *Buffer {
	if maxLines < 10 {
		maxLines = 10
	}
	if maxLines > 5000 {
		maxLines = 5000
	}
	return &Buffer{entries: make([]Entry, maxLines)}
}

func (b *Buffer) append(level, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	e := Entry{Seq: b.seq, Timestamp: time.Now().UTC(), Level: level, Message: message}
	idx := (b.start + b.count) % len(b.entries)
	b.entries[idx] = e
	if b.count < len(b.entries) {
		b.count++
	} else {
		b.start = (b.start + 1) % len(b.entries)
	}
}

func (b *Buffer) Infof(format string, args ...any)  { b.append("INFO", fmt.Sprintf(format, args...)) }
func (b *Buffer) Warnf(format string, args ...any)  { b.append("WARN", fmt.Sprintf(format, args...)) }
func (b *Buffer) Errorf(format string, args ...any) { b.append("ERROR", fmt.Sprintf(format, args...)) }
func (b *Buffer) Debugf(format string, args ...any) { b.append("DEBUG", fmt.Sprintf(format, args...)) }

// Snapshot returns up to count entries, oldest first. count <= 0 returns all.
func (b *Buffer) Snapshot(count int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.count
	if count > 0 && count < n {
		n = count
	}
	out := make([]Entry, n)
	// take the most recent n, preserving order
	first := b.start + (b.count - n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(first+i)%len(b.entries)]
	}
	return out
}

// Lines returns formatted lines for up to count entries, oldest first.
func (b *Buffer) Lines(count int) []string {
	entries := b.Snapshot(count)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Format()
	}
	return lines
}

// Len reports the number of retained entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Clear drops all retained entries. The sequence number keeps increasing.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
}
