package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSender publishes payloads as JSON on a Redis channel for an
// external mailer to consume.
type RedisSender struct {
	client  publisher
	channel string
}

// NewRedisSender constructs a RedisSender.
func NewRedisSender(client publisher, channel string) *RedisSender {
	return &RedisSender{client: client, channel: channel}
}

// Send publishes p on the configured channel.
func (s *RedisSender) Send(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	return nil
}
