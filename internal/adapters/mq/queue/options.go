// Package queue buffers rank recompute requests between the submission
// pipeline and the recompute workers.
package queue

import "github.com/okian/ladder/internal/domain/dedupe"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the requests channel.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}

// WithTracker sets the tracker used to coalesce incremental requests.
// Without a tracker every request is enqueued as-is.
func WithTracker(t dedupe.Tracker) Option {
	return func(q *InMemoryQueue) {
		q.tracker = t
	}
}
