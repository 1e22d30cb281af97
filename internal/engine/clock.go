package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Sequence is a monotonic logical clock for event ordering.
//
// Every event is stamped with a strictly increasing seq so events with
// identical wall-clock timestamps still have a total order.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at a specific number.
// Used to continue numbering after events already in a journal.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number and increments the sequence.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
