// Package ringbuffer implements the bounded FIFO history kept by each
// process supervisor.
package ringbuffer

import (
	"errors"

	"github.com/ryym/procfleet/internal/logrecord"
)

// ErrNegativeN is returned by Tail when asked for a negative number of records.
var ErrNegativeN = errors.New("ringbuffer: n must not be negative")

// DefaultCapacity is the capacity used by process supervisors unless
// overridden, matching the spec's fixed default.
const DefaultCapacity = 1000

// Buffer is a fixed-capacity circular buffer of logrecord.Record. It is not
// safe for concurrent use on its own; callers (the supervisor) serialize
// access with their own lock.
type Buffer struct {
	items    []logrecord.Record
	capacity int
	head     int // index of the oldest record
	count    int
}

// New creates a Buffer with the given capacity. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		items:    make([]logrecord.Record, capacity),
		capacity: capacity,
	}
}

// Len returns the number of records currently retained.
func (b *Buffer) Len() int {
	return b.count
}

// Append adds rec as the newest record, evicting the oldest one if the
// buffer is at capacity.
func (b *Buffer) Append(rec logrecord.Record) {
	idx := (b.head + b.count) % b.capacity
	b.items[idx] = rec
	if b.count < b.capacity {
		b.count++
	} else {
		b.head = (b.head + 1) % b.capacity
	}
}

// Newest returns a pointer-free copy of the newest record and whether one
// exists.
func (b *Buffer) Newest() (logrecord.Record, bool) {
	if b.count == 0 {
		return logrecord.Record{}, false
	}
	idx := (b.head + b.count - 1) % b.capacity
	return b.items[idx], true
}

// ReplaceNewest overwrites the newest record in place. Used by the line
// assembler to extend an unterminated trailing line without allocating a
// new slot.
func (b *Buffer) ReplaceNewest(rec logrecord.Record) {
	if b.count == 0 {
		return
	}
	idx := (b.head + b.count - 1) % b.capacity
	b.items[idx] = rec
}

// Clear discards all retained records.
func (b *Buffer) Clear() {
	b.head = 0
	b.count = 0
}

// Tail returns up to n of the most recent records, in chronological order,
// optionally filtering out stderr records. n is clamped to the number of
// records available after filtering. A negative n is an error.
func (b *Buffer) Tail(n int, includeStderr bool) ([]logrecord.Record, error) {
	if n < 0 {
		return nil, ErrNegativeN
	}
	if n == 0 || b.count == 0 {
		return []logrecord.Record{}, nil
	}

	result := make([]logrecord.Record, 0, min(n, b.count))
	for i := 0; i < b.count && len(result) < n; i++ {
		idx := (b.head + b.count - 1 - i) % b.capacity
		rec := b.items[idx]
		if !includeStderr && rec.Kind == logrecord.Stderr {
			continue
		}
		result = append(result, rec)
	}

	// result is newest-first; reverse to chronological order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}
