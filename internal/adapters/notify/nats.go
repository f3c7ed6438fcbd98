package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

const natsConnectTimeout = 10 * time.Second

// NATS publishes score events to a NATS subject so consumers outside the
// process can follow the board.
type NATS struct {
	conn    *nats.Conn
	subject string
	log     logger.Logger
}

// NewNATS connects to the NATS server at url. An empty subject falls
// back to DefaultSubject.
func NewNATS(ctx context.Context, url, subject string) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("ladder-notifier"),
		nats.Timeout(natsConnectTimeout),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATS{
		conn:    conn,
		subject: subject,
		log:     logger.Named("notify"),
	}, nil
}

// ScoreChanged publishes one event as JSON.
func (n *NATS) ScoreChanged(ctx context.Context, event model.ScoreEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.RecordNotificationError()
		return fmt.Errorf("encode score event: %w", err)
	}

	if err := n.conn.Publish(n.subject, payload); err != nil {
		metrics.RecordNotificationError()
		return fmt.Errorf("publish score event: %w", err)
	}

	metrics.RecordNotification()
	return nil
}

// Close drains pending publishes before dropping the connection.
func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
