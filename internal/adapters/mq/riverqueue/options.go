package riverqueue

import "time"

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithWorkers sets how many jobs may run concurrently.
func WithWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMaxAttempts sets the per-job attempt budget before River discards
// the job.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithJobsPerSecond caps the aggregate recompute throughput.
func WithJobsPerSecond(n float64) Option {
	return func(c *Client) {
		if n > 0 {
			c.jobsPerSecond = n
		}
	}
}

// WithFullPassInterval sets how often a full-board recompute job is
// scheduled. Zero disables the periodic pass.
func WithFullPassInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.fullPassInterval = d
		}
	}
}
