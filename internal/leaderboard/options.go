package leaderboard

import (
	"time"

	"github.com/okian/ladder/pkg/logger"
)

// config holds the board-level settings shared by Named copies.
type config struct {
	pageSize    int
	reverse     bool
	codec       Codec
	log         logger.Logger
	now         func() time.Time
	concurrency int
}

// Option configures a Leaderboard.
type Option func(*config)

// WithPageSize sets the default page size. Non-positive selects DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *config) {
		c.pageSize = NormalizePageSize(n)
	}
}

// WithReverse makes rank 1 the lowest score.
func WithReverse(reverse bool) Option {
	return func(c *config) {
		c.reverse = reverse
	}
}

// WithCodec sets the member-data serializer.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock sets the time source used by ExpireAt.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHydrationConcurrency bounds parallel member-data lookups.
func WithHydrationConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}
