package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes instructions on per-unit Redis channels, where
// field terminals subscribe.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier creates the Redis-backed sink. Channels are named
// "<prefix>:unit:<call sign>".
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "dispatch"
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

type notificationMessage struct {
	UnitID   string    `json:"unit_id"`
	CallSign string    `json:"call_sign"`
	Message  string    `json:"message"`
	SentAt   time.Time `json:"sent_at"`
}

// Notify publishes the instruction to the unit channel.
func (n *RedisNotifier) Notify(ctx context.Context, unitID, callSign, message string) error {
	payload, err := json.Marshal(notificationMessage{
		UnitID:   unitID,
		CallSign: callSign,
		Message:  message,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	channel := fmt.Sprintf("%s:unit:%s", n.prefix, callSign)
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
