// Package queue buffers rank recompute requests between the submission
// pipeline and the recompute workers.
//
// The in-memory driver is a bounded channel with per-player coalescing:
// while a player already has an incremental recompute pending, further
// requests for the same player are absorbed into it. Full-board requests
// never coalesce.
package queue

import (
	"context"
	"sync"

	"github.com/okian/ladder/internal/domain/dedupe"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Request is the payload type flowing through the queue.
type Request = model.RecomputeRequest

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a recompute request to the queue. Returns false if the
	// queue is full or closed and the request was not accepted. A request
	// coalesced into an already pending one counts as accepted.
	Enqueue(ctx context.Context, r Request) bool

	// Dequeue returns a channel that will receive requests as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Request

	// Len returns the current number of queued requests.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new
	// requests can be enqueued and the dequeue channel is closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	requests   chan Request
	capacity   int
	bufferSize int
	tracker    dedupe.Tracker

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.requests = make(chan Request, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a recompute request to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Request) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	// An incremental request for a player that already has one pending is
	// absorbed: the pending job reads the player's current total when it
	// runs, so it covers this request too.
	coalescing := q.tracker != nil && r.Scope == model.ScopeIncremental
	if coalescing {
		if q.tracker.SeenAndRecord(ctx, r.PlayerID) {
			metrics.RecordJobCoalesced()
			return true
		}
	}

	if len(q.requests) >= q.capacity {
		q.reject(ctx, r, coalescing, "capacity_exceeded")
		return false
	}

	select {
	case q.requests <- r:
		metrics.RecordQueueEnqueue()
		currentSize := len(q.requests)
		metrics.UpdateQueueSize(currentSize)
		metrics.UpdateQueueUtilization(float64(currentSize) / float64(q.capacity))
		return true
	case <-ctx.Done():
		q.reject(ctx, r, coalescing, "context_cancelled")
		return false
	default:
		q.reject(ctx, r, coalescing, "queue_full")
		return false
	}
}

// reject records a failed enqueue and releases the player's pending
// marker so a later submission can try again.
func (q *InMemoryQueue) reject(ctx context.Context, r Request, coalescing bool, reason string) {
	if coalescing {
		q.tracker.Unrecord(ctx, r.PlayerID)
	}
	metrics.RecordQueueRejected()
	metrics.RecordErrorByComponent("queue", reason)
}

// Dequeue returns a channel that will receive requests as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Request {
	dequeueChan := make(chan Request)
	go func() {
		defer close(dequeueChan)
		for r := range q.requests {
			// Clear the pending marker as soon as the job leaves the
			// queue. A submission racing with the handoff enqueues a
			// fresh job; recomputes are idempotent, so the duplicate is
			// harmless.
			if q.tracker != nil && r.Scope == model.ScopeIncremental {
				q.tracker.Unrecord(ctx, r.PlayerID)
			}
			select {
			case dequeueChan <- r:
				metrics.RecordQueueDequeue()
				currentSize := len(q.requests)
				metrics.UpdateQueueSize(currentSize)
				metrics.UpdateQueueUtilization(float64(currentSize) / float64(q.capacity))
			case <-ctx.Done():
				return
			}
		}
	}()
	return dequeueChan
}

// Len returns the current number of queued requests.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.requests)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.requests)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
