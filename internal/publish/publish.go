// Package publish carries context strings from the application to the
// adapters that relay them upstream.
//
// Publishers are passed explicitly to whatever needs them; there is no
// package-level "current" publisher.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Publisher relays a context string upstream.
type Publisher interface {
	PublishContext(ctx context.Context, text string) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, text string) error

// PublishContext calls f(ctx, text).
func (f PublisherFunc) PublishContext(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Multi publishes to every member in order. All members are tried; the
// returned error joins the individual failures.
type Multi []Publisher

// PublishContext implements Publisher.
func (m Multi) PublishContext(ctx context.Context, text string) error {
	var errs []error
	for i, p := range m {
		if err := p.PublishContext(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Producer builds the context string for one push.
type Producer func(ctx context.Context) (string, error)

// Text returns a Producer yielding s every time.
func Text(s string) Producer {
	return func(context.Context) (string, error) {
		return s, nil
	}
}

// Periodic pushes produced context at a fixed interval.
//
// The first push happens immediately when Run starts. Producer and
// publish failures are logged and the loop keeps going. Empty strings
// are not published.
type Periodic struct {
	publisher Publisher
	produce   Producer
	interval  time.Duration
	logger    *slog.Logger
}

// PeriodicOption configures a Periodic.
type PeriodicOption func(*Periodic)

// WithLogger sets the logger for push failures.
func WithLogger(l *slog.Logger) PeriodicOption {
	return func(p *Periodic) {
		p.logger = l
	}
}

// NewPeriodic creates a pusher. interval must be positive.
func NewPeriodic(pub Publisher, produce Producer, interval time.Duration, opts ...PeriodicOption) (*Periodic, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("periodic context: interval must be positive, got %s", interval)
	}
	p := &Periodic{
		publisher: pub,
		produce:   produce,
		interval:  interval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run pushes until ctx is cancelled and returns ctx.Err().
func (p *Periodic) Run(ctx context.Context) error {
	p.logger.Info("periodic context started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.push(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("periodic context stopped")
			return ctx.Err()
		case <-ticker.C:
			p.push(ctx)
		}
	}
}

func (p *Periodic) push(ctx context.Context) {
	text, err := p.produce(ctx)
	if err != nil {
		p.logger.Error("periodic context: produce failed", "error", err)
		return
	}
	if text == "" {
		return
	}
	if err := p.publisher.PublishContext(ctx, text); err != nil {
		p.logger.Error("periodic context: publish failed", "error", err)
	}
}
