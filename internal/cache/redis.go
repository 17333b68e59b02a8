package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mentor-schedule-service/internal/models"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SlotCache = (*Redis)(nil)

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Version(ctx context.Context, mentorID string) (int64, error) {
	const op = "cache.Redis.Version"

	v, err := c.client.Get(ctx, versionKey(mentorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

func (c *Redis) Get(ctx context.Context, key Key) (models.AvailableSlots, bool, error) {
	const op = "cache.Redis.Get"

	raw, err := c.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.AvailableSlots{}, false, nil
	}
	if err != nil {
		return models.AvailableSlots{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var slots models.AvailableSlots
	if err := json.Unmarshal(raw, &slots); err != nil {
		return models.AvailableSlots{}, false, fmt.Errorf("%s: decode: %w", op, err)
	}

	return slots, true, nil
}

func (c *Redis) Set(ctx context.Context, key Key, slots models.AvailableSlots) error {
	const op = "cache.Redis.Set"

	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	if err := c.client.Set(ctx, key.String(), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Redis) Invalidate(ctx context.Context, mentorID string) error {
	const op = "cache.Redis.Invalidate"

	if err := c.client.Incr(ctx, versionKey(mentorID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
