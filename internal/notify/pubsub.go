package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	stopChannel    = "recordings:stop"
	publishTimeout = 5 * time.Second
)

// RedisPubSub bridges stop events across server instances.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for stop events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStop publishes a stop event to the shared channel.
func (r *RedisPubSub) PublishStop(event StopEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, stopChannel, body).Err()
}

// Subscribe delivers remote stop events to the hub until ctx is done.
func (r *RedisPubSub) Subscribe(ctx context.Context, hub *Hub) {
	pubsub := r.client.Subscribe(ctx, stopChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event StopEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.Debug("invalid stop event payload", zap.Error(err))
					continue
				}
				hub.DeliverRemote(event)
			}
		}
	}()
}
