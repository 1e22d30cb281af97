package store

import (
	"context"
	"fmt"

	"github.com/roach88/omnilink/internal/ir"
)

// WriteEvent appends ev to the journal.
//
// Writing the same event ID twice is a no-op, so a retried write never
// duplicates a row.
func (s *Store) WriteEvent(ctx context.Context, ev ir.Event) error {
	vars, err := marshalVars(ev.Vars)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	meta, err := marshalMeta(ev.Meta)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (
			id, seq, command, text, matched, template, normalized_template,
			vars, meta, timestamp, engine_version, schema_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Seq,
		ev.Command,
		ev.Text,
		ev.Matched,
		nullString(ev.Template),
		nullString(ev.NormalizedTemplate),
		vars,
		meta,
		formatTimestamp(ev.Timestamp),
		ir.EngineVersion,
		ir.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
