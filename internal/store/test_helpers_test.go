package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/testutil"
)

// createTestStore opens a fresh journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// matchedEvent creates an event that matched "move {piece} to {square}".
func matchedEvent(id string, seq int64, piece, square string) ir.Event {
	return ir.Event{
		ID:                 id,
		Seq:                seq,
		Command:            "Move " + piece + " to " + square,
		Text:               "move " + piece + " to " + square,
		Matched:            true,
		Template:           "Move {piece} to {square}",
		NormalizedTemplate: "move {piece} to {square}",
		Vars:               ir.NewVars(ir.V("piece", piece), ir.V("square", square)),
		Meta:               ir.Meta{"source": "test"},
		Timestamp:          testutil.DefaultEpoch.Add(time.Duration(seq) * time.Second),
	}
}

// unmatchedEvent creates an event no template matched.
func unmatchedEvent(id string, seq int64, command string) ir.Event {
	return ir.Event{
		ID:        id,
		Seq:       seq,
		Command:   command,
		Text:      command,
		Meta:      ir.Meta{},
		Timestamp: testutil.DefaultEpoch.Add(time.Duration(seq) * time.Second),
	}
}
