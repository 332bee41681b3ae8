package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/infra"
)

// RedisPublisher публикует UIEvent в канал <ns>:ui:<component>.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev UIEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal ui event: %w", err)
	}
	if err := p.rdb.Publish(ctx, infra.UIChannel(ev.ComponentName), data).Err(); err != nil {
		return fmt.Errorf("publish ui event: %w", err)
	}
	return nil
}
