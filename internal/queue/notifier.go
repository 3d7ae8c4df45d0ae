package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reelforge/internal/models"
)

// Notifier wakes idle dispatchers, possibly in other processes, when work is enqueued.
// Polling still runs, so a lost notification only delays delivery.
type Notifier interface {
	Notify(ctx context.Context, topic models.Topic) error
	Subscribe(ctx context.Context) (<-chan models.Topic, error)
}

// RedisNotifier fans enqueue notifications out over a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, logger: logger.Named("RedisNotifier")}
}

func (n *RedisNotifier) Notify(ctx context.Context, topic models.Topic) error {
	if err := n.client.Publish(ctx, n.channel, string(topic)).Err(); err != nil {
		return fmt.Errorf("failed to publish wakeup for %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel of topics that is closed when ctx is done.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan models.Topic, error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	// Wait for the subscription confirmation so early publishes are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	out := make(chan models.Topic, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- models.Topic(msg.Payload):
				default:
					// A wakeup is already pending.
				}
			}
		}
	}()
	n.logger.Info("Subscribed to job wakeups", zap.String("channel", n.channel))
	return out, nil
}
