package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/omnilink/internal/compiler"
	"github.com/roach88/omnilink/internal/ir"
)

// ErrEventNotFound is returned by ReadEvent for an unknown ID.
var ErrEventNotFound = errors.New("event not found")

// Filter narrows ReadEvents and CountEvents. The zero value selects all
// events.
type Filter struct {
	// Matched selects matched (true) or unmatched (false) events when set.
	Matched *bool

	// Template selects events that matched this template. It is compared
	// after normalization.
	Template string

	// Since selects events at or after this instant.
	Since time.Time

	// Limit caps the number of rows returned. Zero means no limit.
	Limit int
}

// where builds the WHERE clause and its arguments.
func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Matched != nil {
		conds = append(conds, "matched = ?")
		args = append(args, *f.Matched)
	}
	if f.Template != "" {
		conds = append(conds, "normalized_template = ?")
		args = append(args, compiler.Normalize(f.Template))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, formatTimestamp(f.Since))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const selectEvents = `
	SELECT id, seq, command, text, matched, template, normalized_template,
	       vars, meta, timestamp
	FROM events`

// ReadEvents returns journaled events matching f.
// Events are ordered by timestamp, then seq, then id (binary collation).
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f Filter) ([]ir.Event, error) {
	where, args := f.where()
	query := selectEvents + where + " ORDER BY timestamp ASC, seq ASC, id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadEvent returns the event with the given ID.
// Returns ErrEventNotFound if no such event exists.
func (s *Store) ReadEvent(ctx context.Context, id string) (ir.Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvents+" WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return ev, err
}

// CountEvents returns the number of journaled events matching f.
// f.Limit is ignored.
func (s *Store) CountEvents(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (ir.Event, error) {
	var (
		ev                 ir.Event
		template, normTmpl sql.NullString
		vars, meta, ts     string
	)
	err := row.Scan(
		&ev.ID,
		&ev.Seq,
		&ev.Command,
		&ev.Text,
		&ev.Matched,
		&template,
		&normTmpl,
		&vars,
		&meta,
		&ts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Event{}, err
	}
	if err != nil {
		return ir.Event{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Template = template.String
	ev.NormalizedTemplate = normTmpl.String
	if ev.Vars, err = unmarshalVars(vars); err != nil {
		return ir.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if ev.Meta, err = unmarshalMeta(meta); err != nil {
		return ir.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if ev.Timestamp, err = parseTimestamp(ts); err != nil {
		return ir.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return ev, nil
}
