package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisDispatcher pushes immediate events onto a list and scheduled events
// onto a sorted set scored by their eta (unix seconds).
type RedisDispatcher struct {
	rdb   goredis.Cmdable
	queue string
	now   func() time.Time
}

func NewRedisDispatcher(rdb goredis.Cmdable, queue string) *RedisDispatcher {
	if strings.TrimSpace(queue) == "" {
		queue = "exam:notifications"
	}
	return &RedisDispatcher{rdb: rdb, queue: queue, now: time.Now}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (d *RedisDispatcher) ScheduledKey() string { return d.queue + ":scheduled" }

func (d *RedisDispatcher) Send(ctx context.Context, event string, payload map[string]any, eta *time.Time) error {
	now := d.now()
	raw, err := encode(event, payload, eta, now)
	if err != nil {
		return err
	}
	if eta == nil || !eta.After(now) {
		return d.rdb.RPush(ctx, d.queue, raw).Err()
	}
	return d.rdb.ZAdd(ctx, d.ScheduledKey(), goredis.Z{Score: float64(eta.Unix()), Member: raw}).Err()
}
