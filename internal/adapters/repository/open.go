package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Open returns a RedisStore for a redis:// or rediss:// URL, or a
// MemoryStore when url is empty. The Redis connection is checked before
// returning and is owned by the store.
func Open(ctx context.Context, url string) (Store, error) {
	if url == "" {
		return NewMemoryStore(ctx), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %w", ErrStore, err)
	}
	s := NewRedisStore(redis.NewClient(opts), WithOwnedClient())
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
