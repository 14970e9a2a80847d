package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type redisService struct {
	client  redis.UniversalClient
	channel string
	keep    int64
}

// NewRedis publishes each message on channel and keeps the newest keep
// messages in the list "<channel>:recent" for late subscribers.
func NewRedis(client redis.UniversalClient, channel string, keep int) Service {
	if channel == "" {
		channel = "fieldsync:messages"
	}
	if keep <= 0 {
		keep = 256
	}
	return &redisService{client: client, channel: channel, keep: int64(keep)}
}

// RecentKey is the list holding recent messages for channel.
func RecentKey(channel string) string {
	return channel + ":recent"
}

func (r *redisService) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Publish(ctx, r.channel, body)
	pipe.LPush(ctx, RecentKey(r.channel), body)
	pipe.LTrim(ctx, RecentKey(r.channel), 0, r.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
