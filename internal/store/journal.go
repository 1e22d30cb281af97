package store

import (
	"context"
	"time"

	"github.com/roach88/omnilink/internal/engine"
	"github.com/roach88/omnilink/internal/ir"
)

// DefaultJournalTimeout bounds a single journal write.
const DefaultJournalTimeout = 5 * time.Second

// JournalMiddleware returns after-middleware that writes every handled
// event to s. A failed write is returned to the engine, which logs and
// counts it without affecting the command's result.
func JournalMiddleware(s *Store, timeout time.Duration) engine.Middleware {
	if timeout <= 0 {
		timeout = DefaultJournalTimeout
	}
	return engine.MiddlewareFunc(func(ev ir.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.WriteEvent(ctx, ev)
	})
}
