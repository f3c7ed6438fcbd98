// Package dedupe tracks players that already have a rank recompute
// pending so the queue can coalesce repeat requests.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tracker records players with a pending recompute. The queue drops a
// request when its player is already tracked, and clears the player once
// a worker picks the job up.
type Tracker interface {
	// SeenAndRecord atomically checks whether playerID is pending and
	// records it if not. Returns true if the player was already pending,
	// false if it was newly recorded.
	SeenAndRecord(ctx context.Context, playerID int64) bool

	// Unrecord clears a player so the next submission enqueues a fresh
	// recompute. Called when a worker dequeues the player's job, or when
	// an enqueue was rejected after the player had been recorded.
	Unrecord(ctx context.Context, playerID int64)

	Size() int64
}

// node represents a single entry in the linked list
type node struct {
	id   int64
	next *node
}

// reset clears the node state for reuse
func (n *node) reset() {
	n.id = 0
	n.next = nil
}

// inMemoryTracker implements Tracker with an in-memory linked list.
// For bounded mode (maxSize > 0): linked list with oldest-first eviction
// and a sync.Pool for nodes.
// For unbounded mode (maxSize <= 0): simple map, no eviction.
//
// Evicting a marker can at worst let a duplicate request through; the
// recompute jobs behind it are idempotent.
type inMemoryTracker struct {
	mu       sync.RWMutex
	pending  map[int64]*node // playerID -> node pointer for bounded mode, nil for unbounded
	head     *node           // head of linked list (most recently added)
	maxSize  int             // maximum number of players to track (0 or negative = unbounded)
	size     atomic.Int64    // current number of entries (atomic)
	nodePool sync.Pool       // pool for reusing node objects
}

// NewInMemoryTracker creates a new in-memory tracker with configuration options.
func NewInMemoryTracker(opts ...Option) Tracker {
	d := &inMemoryTracker{
		maxSize: 50000, // default max size
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	d.pending = make(map[int64]*node)

	// Pool only matters in bounded mode where nodes churn
	if d.maxSize > 0 {
		d.nodePool = sync.Pool{
			New: func() interface{} {
				return &node{}
			},
		}
	}

	return d
}

// SeenAndRecord atomically checks if playerID is pending and records it if not.
// Returns true if the player was already pending, false if newly recorded.
func (d *inMemoryTracker) SeenAndRecord(ctx context.Context, playerID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.pending[playerID]; exists {
		return true // already pending
	}

	if d.maxSize > 0 {
		// Bounded mode: evict before adding when full
		if len(d.pending) >= d.maxSize {
			d.evictOldest()
		}

		n := d.nodePool.Get().(*node)
		n.id = playerID
		n.next = d.head

		d.head = n
		d.pending[playerID] = n
	} else {
		// Unbounded mode: just use the map
		d.pending[playerID] = nil
	}
	d.size.Add(1)
	return false // newly recorded
}

// Unrecord removes a player from the pending set.
func (d *inMemoryTracker) Unrecord(ctx context.Context, playerID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.maxSize > 0 {
		// Bounded mode: remove from linked list and map
		if node, exists := d.pending[playerID]; exists {
			delete(d.pending, playerID)

			if d.head == node {
				d.head = node.next
			} else {
				current := d.head
				for current != nil && current.next != node {
					current = current.next
				}
				if current != nil {
					current.next = node.next
				}
			}

			node.reset()
			d.nodePool.Put(node)

			d.size.Add(-1)
		}
	} else {
		// Unbounded mode: just remove from the map
		if _, exists := d.pending[playerID]; exists {
			delete(d.pending, playerID)
			d.size.Add(-1)
		}
	}
}

// evictOldest removes the least recently added entry (tail of list).
// Must be called with d.mu.Lock() held.
func (d *inMemoryTracker) evictOldest() {
	if len(d.pending) == 0 || d.head == nil {
		return
	}

	var prev *node
	current := d.head

	// Single node: remove it
	if current.next == nil {
		delete(d.pending, current.id)
		current.reset()
		d.nodePool.Put(current)
		d.head = nil
		d.size.Add(-1)
		return
	}

	// Walk to the tail
	for current.next != nil {
		prev = current
		current = current.next
	}

	if prev != nil {
		prev.next = nil
		delete(d.pending, current.id)
		current.reset()
		d.nodePool.Put(current)
		d.size.Add(-1)
	}
}

// Size returns the current number of pending players.
func (d *inMemoryTracker) Size() int64 {
	return d.size.Load()
}
