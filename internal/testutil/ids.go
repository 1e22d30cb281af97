package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates "<prefix>-1", "<prefix>-2", ... forever.
//
// Unlike engine.FixedGenerator, which panics when its list runs out,
// SequenceIDs never exhausts. Scenarios with any number of steps get
// reproducible event IDs.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix uses "evt".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "evt"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next ID.
//
// Implements engine.IDGenerator.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
