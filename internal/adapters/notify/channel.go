package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

const channelBuffer = 256

// Channel is the in-process Notifier driver: events fan out over a
// Watermill go-channel pub/sub to every subscriber in the same process.
type Channel struct {
	pubsub *gochannel.GoChannel
	topic  string
	log    logger.Logger
}

// NewChannel builds the pub/sub and attaches an internal subscriber that
// logs every event, so published events are observable even when nothing
// else consumes them.
func NewChannel(ctx context.Context) (*Channel, error) {
	log := logger.Named("notify")

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: channelBuffer},
		watermillAdapter{log: log},
	)

	c := &Channel{
		pubsub: pubsub,
		topic:  DefaultSubject,
		log:    log,
	}

	events, err := c.Subscribe(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("attach logging subscriber: %w", err)
	}
	go func() {
		for event := range events {
			log.Debug(ctx, "score changed",
				logger.Int64("player_id", event.PlayerID),
				logger.Int64("score", event.Score),
			)
		}
	}()

	return c, nil
}

// ScoreChanged publishes one event to the topic.
func (c *Channel) ScoreChanged(ctx context.Context, event model.ScoreEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.RecordNotificationError()
		return fmt.Errorf("encode score event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := c.pubsub.Publish(c.topic, msg); err != nil {
		metrics.RecordNotificationError()
		return fmt.Errorf("publish score event: %w", err)
	}

	metrics.RecordNotification()
	return nil
}

// Subscribe returns a stream of decoded score events. Each subscriber
// receives its own copy of every event published after it attached.
func (c *Channel) Subscribe(ctx context.Context) (<-chan model.ScoreEvent, error) {
	messages, err := c.pubsub.Subscribe(ctx, c.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	out := make(chan model.ScoreEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			var event model.ScoreEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				c.log.Warn(ctx, "dropping undecodable score event", logger.Error(err))
				msg.Ack()
				continue
			}
			select {
			case out <- event:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close shuts down the pub/sub and all subscriber channels.
func (c *Channel) Close() error {
	return c.pubsub.Close()
}

// watermillAdapter bridges the application logger to Watermill's.
type watermillAdapter struct {
	log logger.Logger
}

func (a watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(context.Background(), msg, logger.Error(err), logger.Any("fields", map[string]interface{}(fields)))
}

func (a watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, logger.Any("fields", map[string]interface{}(fields)))
}

func (a watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, logger.Any("fields", map[string]interface{}(fields)))
}

func (a watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, logger.Any("fields", map[string]interface{}(fields)))
}

func (a watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return a
}
