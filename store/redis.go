package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis stores the snapshot as JSON under a single key without expiry.
type Redis struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

func NewRedis(addr, key string) *Redis {
	return newRedis(redis.NewClient(&redis.Options{Addr: addr}), key)
}

func newRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = "gotrend:snapshot"
	}
	return &Redis{client: client, key: key, timeout: 2 * time.Second}
}

func (r *Redis) Save(ctx context.Context, s Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context) (Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("store: redis get %s: %w", r.key, err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, false, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return s, true, nil
}

func (r *Redis) Close() error { return r.client.Close() }
