// Package dedupe tracks players that already have a rank recompute
// pending so the queue can coalesce repeat requests.
package dedupe

// Option applies a configuration option to the in-memory tracker.
type Option func(*inMemoryTracker)

// WithMaxSize sets the maximum number of players to track.
// If maxSize > 0: bounded mode with oldest-first eviction.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryTracker) {
		d.maxSize = maxSize
	}
}
