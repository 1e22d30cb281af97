package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/omnilink/internal/bridge"
	"github.com/roach88/omnilink/internal/ir"
)

// DefaultPollInterval is the wait between successful polls.
const DefaultPollInterval = 2 * time.Second

// Store is the part of Client the poller uses.
type Store interface {
	FetchLast(ctx context.Context) (*Record, error)
	UpdateLastResponse(ctx context.Context, response, lastCommand string) error
}

// Poller runs the latest remote command through a handler, once per
// distinct (command, updated_at) signature.
//
// A signature is remembered only after its response was written back,
// so a failed update is retried on the next poll.
type Poller struct {
	store    Store
	handler  bridge.Handler
	interval time.Duration
	logger   *slog.Logger

	// newBackOff yields the wait policy after failed fetches.
	newBackOff func() backoff.BackOff

	mu   sync.Mutex
	last signature
}

type signature struct {
	command   string
	updatedAt string
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the wait between polls.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithLogger sets the poller's logger.
func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithBackOff sets the wait policy used while fetches keep failing.
func WithBackOff(f func() backoff.BackOff) PollerOption {
	return func(p *Poller) {
		p.newBackOff = f
	}
}

// NewPoller creates a poller.
func NewPoller(store Store, h bridge.Handler, opts ...PollerOption) *Poller {
	p := &Poller{
		store:    store,
		handler:  h,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newBackOff == nil {
		interval := p.interval
		p.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = interval
			b.MaxInterval = 30 * interval
			return b
		}
	}
	return p
}

// ProcessOnce fetches the latest record and handles it if it is new.
// It returns the handle result, or nil when nothing was handled.
// Only a failed fetch is returned as an error; a failed write-back is
// logged.
func (p *Poller) ProcessOnce(ctx context.Context) (*ir.Result, error) {
	rec, err := p.store.FetchLast(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	command := strings.TrimSpace(rec.LastCommand)
	if command == "" {
		return nil, nil
	}
	sig := signature{command: command, updatedAt: rec.UpdatedAt}

	p.mu.Lock()
	seen := sig == p.last
	p.mu.Unlock()
	if seen {
		return nil, nil
	}

	meta := ir.Meta{
		"source": "remote",
		"remote": map[string]any{
			"user_key":   rec.UserKey,
			"updated_at": rec.UpdatedAt,
		},
	}
	res := p.handler.Handle(command, meta)

	response := formatResponse(res)
	if err := p.store.UpdateLastResponse(ctx, response, command); err != nil {
		p.logger.Error("remote update failed", "command", command, "error", err)
		return &res, nil
	}

	p.mu.Lock()
	p.last = sig
	p.mu.Unlock()
	p.logger.Info("remote command handled", "command", command, "ok", res.OK, "feedback", bridge.Feedback(res))
	return &res, nil
}

// Run polls until ctx is cancelled and returns ctx.Err(). Fetch failures
// stretch the wait according to the back-off policy; the first success
// restores the regular interval.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("remote polling started", "interval", p.interval)

	bo := p.newBackOff()
	failing := false
	for {
		wait := p.interval
		if _, err := p.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !failing {
				bo.Reset()
				failing = true
			}
			if next := bo.NextBackOff(); next != backoff.Stop {
				wait = next
			}
			p.logger.Warn("remote fetch failed", "error", err, "retry_in", wait)
		} else {
			failing = false
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("remote polling stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// formatResponse renders res as JSON, falling back to Go syntax for
// results that cannot be encoded.
func formatResponse(res ir.Result) string {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf("%+v", res)
	}
	return string(data)
}
