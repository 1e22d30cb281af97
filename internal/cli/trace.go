package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Matched   bool
	Unmatched bool
	Template  string
	Since     string // RFC 3339 instant or a duration back from now
	Limit     int
}

// TraceEvent is one journaled command in the timeline.
type TraceEvent struct {
	Seq       int64          `json:"seq"`
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	Matched   bool           `json:"matched"`
	Template  string         `json:"template,omitempty"`
	Vars      map[string]any `json:"vars,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats summarizes the whole journal, not only the filtered rows.
type TraceStats struct {
	Shown     int `json:"shown"`
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
}

// now is replaced in tests.
var now = time.Now

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled commands",
		Long: `Show the commands a serving engine journaled, oldest first.

Events are ordered by timestamp, then by sequence number, then by id.
Filters combine: --matched or --unmatched, --template, --since and
--limit.

Examples:
  omnilink trace --db ./journal.db
  omnilink trace --db ./journal.db --unmatched --since 1h
  omnilink trace --db ./journal.db --template "undo" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (default from config)")
	cmd.Flags().BoolVar(&opts.Matched, "matched", false, "only matched commands")
	cmd.Flags().BoolVar(&opts.Unmatched, "unmatched", false, "only unmatched commands")
	cmd.Flags().StringVar(&opts.Template, "template", "", "only commands that matched this template")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only commands at or after an RFC 3339 time or a duration ago (e.g. 30m)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of commands (0 = all)")
	cmd.MarkFlagsMutuallyExclusive("matched", "unmatched")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := opts.formatter(cmd)

	db := opts.Database
	if db == "" {
		cfg, err := opts.loadConfig(f)
		if err != nil {
			return err
		}
		db = cfg.JournalDB
	}
	if db == "" {
		return f.fail(ExitCommandError, ErrCodeDatabase, "no journal database (use --db or OMNILINK_JOURNAL_DB)", nil)
	}
	if _, err := os.Stat(db); err != nil {
		return f.fail(ExitCommandError, ErrCodeNotFound, "journal database not found", err)
	}

	filter, err := opts.filter()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "invalid filter", err)
	}

	st, err := store.Open(db)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, filter)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDatabase, "failed to read events", err)
	}
	stats, err := traceStats(ctx, st)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeDatabase, "failed to count events", err)
	}
	stats.Shown = len(events)

	result := TraceResult{Timeline: buildTimeline(events), Stats: stats}
	if f.JSON() {
		return f.Success(result)
	}
	return outputTraceText(f.Writer, result, opts.Verbose)
}

func (o *TraceOptions) filter() (store.Filter, error) {
	filter := store.Filter{Template: o.Template, Limit: o.Limit}
	switch {
	case o.Matched:
		filter.Matched = boolPtr(true)
	case o.Unmatched:
		filter.Matched = boolPtr(false)
	}
	if o.Limit < 0 {
		return filter, fmt.Errorf("--limit must not be negative")
	}
	if o.Since != "" {
		since, err := parseSince(o.Since)
		if err != nil {
			return filter, err
		}
		filter.Since = since
	}
	return filter, nil
}

// parseSince accepts an RFC 3339 instant or a duration before now.
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q: want an RFC 3339 time or a duration", s)
	}
	return now().Add(-d), nil
}

func traceStats(ctx context.Context, st *store.Store) (TraceStats, error) {
	total, err := st.CountEvents(ctx, store.Filter{})
	if err != nil {
		return TraceStats{}, err
	}
	matched, err := st.CountEvents(ctx, store.Filter{Matched: boolPtr(true)})
	if err != nil {
		return TraceStats{}, err
	}
	return TraceStats{Total: total, Matched: matched, Unmatched: total - matched}, nil
}

// buildTimeline converts journaled events to timeline entries.
func buildTimeline(events []ir.Event) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		te := TraceEvent{
			Seq:       ev.Seq,
			ID:        ev.ID,
			Command:   ev.Command,
			Matched:   ev.Matched,
			Template:  ev.Template,
			Timestamp: ev.Timestamp,
		}
		if ev.Vars.Len() > 0 {
			te.Vars = ev.Vars.Map()
		}
		if len(ev.Meta) > 0 {
			te.Meta = ev.Meta
		}
		timeline = append(timeline, te)
	}
	return timeline
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Shown:     %d\n", result.Stats.Shown)
	fmt.Fprintf(w, "  Total:     %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Matched:   %d\n", result.Stats.Matched)
	fmt.Fprintf(w, "  Unmatched: %d\n", result.Stats.Unmatched)
	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	ts := ev.Timestamp.UTC().Format(time.RFC3339)
	if ev.Matched {
		fmt.Fprintf(w, "  [%d] %s ✓ %q -> %s\n", ev.Seq, ts, ev.Command, ev.Template)
		if len(ev.Vars) > 0 {
			fmt.Fprintf(w, "       Vars: %s\n", formatArgs(ev.Vars))
		}
	} else {
		fmt.Fprintf(w, "  [%d] %s ✗ %q\n", ev.Seq, ts, ev.Command)
	}
	if verbose {
		if len(ev.Meta) > 0 {
			fmt.Fprintf(w, "       Meta: %s\n", formatArgs(ev.Meta))
		}
		fmt.Fprintf(w, "       ID: %s\n", truncateID(ev.ID))
	}
}

// formatArgs formats a map with sorted keys.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

func boolPtr(b bool) *bool {
	return &b
}
