package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithSweepInterval sets how often expired keys are purged in the background.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithClock replaces the time source used for key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithOwnedClient makes Close also close the underlying client.
func WithOwnedClient() RedisOption {
	return func(s *RedisStore) {
		s.owned = true
	}
}
