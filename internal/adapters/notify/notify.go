// Package notify publishes score-change events to downstream consumers.
//
// Delivery is best effort: by the time a notifier runs, the submission
// that produced the event has already committed, and a failed publish is
// logged and counted but never surfaced to the submitter.
package notify

import (
	"context"

	"github.com/okian/ladder/internal/domain/model"
)

// DefaultSubject is where score events are published unless configured
// otherwise.
const DefaultSubject = "ladder.scores"

// Notifier delivers score events after a submission commits.
type Notifier interface {
	ScoreChanged(ctx context.Context, event model.ScoreEvent) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// NewNop returns a notifier that does nothing.
func NewNop() Nop { return Nop{} }

func (Nop) ScoreChanged(ctx context.Context, event model.ScoreEvent) error { return nil }

func (Nop) Close() error { return nil }
