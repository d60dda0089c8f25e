package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisNotifier pushes messages onto a Redis list for a mail worker to drain.
type RedisNotifier struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func NewRedisNotifier(rdb *redis.Client, key string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, key: key, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := encode(msg, n.now())
	if err != nil {
		return err
	}
	if err := n.rdb.LPush(ctx, n.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}
