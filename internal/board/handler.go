package board

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/outbox"
	"github.com/roach88/omnilink/internal/publish"
)

// ErrQueueClosed is returned by MoveHandler after shutdown began.
var ErrQueueClosed = errors.New("move queue closed")

// MoveHandler turns events carrying color, piece, location1 and
// location2 into queued moves.
//
// It never talks to the board itself: moves are delivered by a worker
// draining the queue (see NewMoveWorker), so Handle returns as soon as
// the move is validated and queued.
type MoveHandler struct {
	queue *outbox.Queue[Move]
}

// NewMoveHandler creates a handler feeding q.
func NewMoveHandler(q *outbox.Queue[Move]) *MoveHandler {
	return &MoveHandler{queue: q}
}

// Handle implements engine.Handler.
//
// Events without the four move vars are declined with Ack false. An
// invalid color or piece is an error.
func (h *MoveHandler) Handle(ev ir.Event) (any, error) {
	m, ok := MoveFromVars(ev.Vars)
	if !ok {
		return ir.Ack{Ack: false}, nil
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if !h.queue.Enqueue(m) {
		return nil, ErrQueueClosed
	}
	return ir.Ack{Ack: true}, nil
}

// NewMoveWorker returns the worker delivering queued moves through mover.
func NewMoveWorker(q *outbox.Queue[Move], mover Mover, logger *slog.Logger) *outbox.Worker[Move] {
	return outbox.NewWorker("board-moves", q, mover.MovePiece, outbox.WithLogger[Move](logger))
}

// ContextProducer yields the full board description for context pushes.
func ContextProducer(c *Client) publish.Producer {
	return func(ctx context.Context) (string, error) {
		return c.Context(ctx, true)
	}
}

// PublishContextOnMove returns a listener that pushes the full board
// description after every move.
func PublishContextOnMove(c *Client, pub publish.Publisher, logger *slog.Logger) MoveListener {
	return func(ctx context.Context, _ Move) {
		text, err := c.Context(ctx, true)
		if err != nil {
			logger.Error("context after move failed", "error", err)
			return
		}
		if err := pub.PublishContext(ctx, text); err != nil {
			logger.Error("context publish after move failed", "error", err)
		}
	}
}
