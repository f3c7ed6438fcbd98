package worker

import (
	"context"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/internal/domain/types"
)

// Engine bundles the in-memory queue with its worker pool behind the
// same surface the durable driver offers: one object to start, feed and
// stop.
type Engine struct {
	queue *queue.InMemoryQueue
	pool  *Pool
}

// NewEngine wires a queue and a pool together.
func NewEngine(q *queue.InMemoryQueue, p *Pool) *Engine {
	return &Engine{queue: q, pool: p}
}

// Start launches the pool's workers.
func (e *Engine) Start(ctx context.Context) error {
	e.pool.Start(ctx)
	return nil
}

// Enqueue submits a recompute request.
func (e *Engine) Enqueue(ctx context.Context, r Request) bool {
	return e.queue.Enqueue(ctx, r)
}

// Status reports queue depth, dead jobs and the last full pass.
func (e *Engine) Status(ctx context.Context) types.RecomputeStatus {
	return e.pool.Status(ctx)
}

// Shutdown closes the queue and drains the workers.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.pool.Shutdown(ctx)
}
