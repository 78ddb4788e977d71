// internal/app/system/realtime/redis.go
package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes to Redis pub/sub channels. Client apps (and the
// websocket gateway, which is outside this service) subscribe to the same
// topics.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisPublisher connects a publisher to the Redis at the given URL.
// An empty URL returns (nil, nil): real-time push is optional and the
// dispatcher treats a nil publisher as "channel not configured".
func NewRedisPublisher(url string, logger *zap.Logger) (*RedisPublisher, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisPublisher{client: client, log: logger}, nil
}

// Publish pushes one payload to one topic, single attempt.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.client.Publish(ctx, topic, payload).Err()
}

// Health checks the Redis connection.
func (p *RedisPublisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
