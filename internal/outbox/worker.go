package outbox

import (
	"context"
	"log/slog"
)

// SendFunc delivers one item.
type SendFunc[T any] func(ctx context.Context, item T) error

// Worker drains a Queue, delivering items one at a time in FIFO order.
//
// A failed send is logged and dropped; the worker does not retry. The
// caller that enqueued the item has already returned.
type Worker[T any] struct {
	queue  *Queue[T]
	send   SendFunc[T]
	name   string
	logger *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption[T any] func(*Worker[T])

// WithLogger sets the logger for send failures.
func WithLogger[T any](l *slog.Logger) WorkerOption[T] {
	return func(w *Worker[T]) {
		w.logger = l
	}
}

// NewWorker creates a worker named name (used in log lines).
func NewWorker[T any](name string, q *Queue[T], send SendFunc[T], opts ...WorkerOption[T]) *Worker[T] {
	w := &Worker[T]{queue: q, send: send, name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the queue until ctx is cancelled or the queue is closed and
// empty. It returns ctx.Err() on cancellation and nil after Close.
func (w *Worker[T]) Run(ctx context.Context) error {
	w.logger.Debug("outbox worker starting", "worker", w.name)
	for {
		item, ok := w.queue.TryDequeue()
		if ok {
			if err := w.send(ctx, item); err != nil {
				w.logger.Error("outbox send failed", "worker", w.name, "error", err)
			}
			continue
		}

		if w.queue.Closed() {
			w.logger.Debug("outbox worker stopped", "worker", w.name)
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Debug("outbox worker cancelled", "worker", w.name)
			return ctx.Err()
		case <-w.queue.Wait():
		}
	}
}
