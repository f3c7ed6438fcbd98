// Package repository defines the leaderboard store interface and errors.
package repository

import "time"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *TreapStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithSubmitTimeout bounds the submission transaction. Exceeding it
// surfaces as ErrTransient.
func WithSubmitTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

// WithPostgresMetricsInterval sets the interval for background gauge updates.
func WithPostgresMetricsInterval(interval time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
