package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "share-events:"

var _ Publisher = (*RedisRelay)(nil)

// RedisRelay publishes events on Redis channels and feeds every event seen
// on those channels into a local hub, so viewers connected to any server
// process receive updates made through any other.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, logger: logger}
}

func channelFor(code string) string {
	return channelPrefix + code
}

// Publish sends the event to the share's channel. Local delivery happens
// when the event comes back through Run.
func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := r.client.Publish(ctx, channelFor(event.Code), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Run relays channel messages into the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to share events: %w", err)
	}
	r.logger.Info("relaying share events", zap.String("pattern", channelPrefix+"*"))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("dropping malformed share event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			if event.Code == "" {
				event.Code = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			r.hub.Publish(ctx, event)
		}
	}
}
