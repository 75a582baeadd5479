// Package repository defines the ordered-set and member-data store contracts
// the leaderboard engine runs on, together with in-memory and Redis backends.
package repository

import (
	"context"
	"math"
	"strings"
	"time"
)

// MemberDataSuffix is appended to a leaderboard name to form the key of its
// member-data map.
const MemberDataSuffix = ":member_data"

// MemberDataKey returns the member-data map key for a leaderboard.
func MemberDataKey(name string) string {
	return name + MemberDataSuffix
}

// Member is one (member, score) pair as returned by range queries.
type Member struct {
	Member string
	Score  float64
}

// Aggregate selects how scores are combined by Union and Intersect.
type Aggregate int

// Aggregation modes.
const (
	AggregateSum Aggregate = iota
	AggregateMin
	AggregateMax
)

// String returns the store-native aggregation keyword.
func (a Aggregate) String() string {
	switch a {
	case AggregateMin:
		return "MIN"
	case AggregateMax:
		return "MAX"
	default:
		return "SUM"
	}
}

// ParseAggregate maps "sum", "min" or "max" (any case) to an Aggregate.
// Empty input selects AggregateSum.
func ParseAggregate(s string) (Aggregate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sum":
		return AggregateSum, nil
	case "min":
		return AggregateMin, nil
	case "max":
		return AggregateMax, nil
	default:
		return AggregateSum, ErrInvalidAggregate
	}
}

// OrderedSetStore is a key-addressed store of named ordered sets.
//
// Indices are 0-based and inclusive; negative indices count from the end
// (-1 is the last element). Ascending order is score ASC then member ASC;
// desc flips it. Score ranges are inclusive on both ends.
type OrderedSetStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	Add(ctx context.Context, key, member string, score float64) error
	Remove(ctx context.Context, key, member string) error
	RemoveByScore(ctx context.Context, key string, min, max float64) (int64, error)
	RemoveByIndex(ctx context.Context, key string, start, stop int64) (int64, error)

	Count(ctx context.Context, key string) (int64, error)
	CountByScore(ctx context.Context, key string, min, max float64) (int64, error)
	Increment(ctx context.Context, key, member string, delta float64) (float64, error)

	// Rank returns the 0-based position of member; ok is false when absent.
	Rank(ctx context.Context, key, member string, desc bool) (rank int64, ok bool, err error)
	// Score returns the member score; ok is false when absent.
	Score(ctx context.Context, key, member string) (score float64, ok bool, err error)

	RangeByIndex(ctx context.Context, key string, start, stop int64, desc bool) ([]Member, error)
	RangeByScore(ctx context.Context, key string, min, max float64, desc bool) ([]Member, error)

	// Union and Intersect store the combination of keys into dest and
	// return the resulting cardinality.
	Union(ctx context.Context, dest string, keys []string, agg Aggregate) (int64, error)
	Intersect(ctx context.Context, dest string, keys []string, agg Aggregate) (int64, error)

	// Expire sets a time to live on key. A non-positive ttl removes the key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Atomic queues the commands issued on tx by fn and applies them as one
	// all-or-nothing batch. Deferred results are readable once Atomic returns
	// nil. If fn returns an error nothing is applied.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// MemberDataStore is a key-addressed hash store of opaque per-member blobs.
type MemberDataStore interface {
	// GetData returns the blob for member; ok is false when absent.
	GetData(ctx context.Context, key, member string) (blob []byte, ok bool, err error)
	SetData(ctx context.Context, key, member string, blob []byte) error
	RemoveData(ctx context.Context, key, member string) error
}

// Store is a backend hosting both ordered sets and member data, so that a
// single Atomic batch can span the two.
type Store interface {
	OrderedSetStore
	MemberDataStore
	Close() error
}

// Tx collects commands for one atomic batch.
type Tx interface {
	Add(key, member string, score float64)
	Remove(key, member string)
	Delete(keys ...string)
	Expire(key string, ttl time.Duration)
	SetData(key, member string, blob []byte)
	RemoveData(key, member string)

	Count(key string) *Result[int64]
	Rank(key, member string, desc bool) *Result[int64]
	Score(key, member string) *Result[float64]
}

// Result is the deferred reply of a read queued on a Tx.
type Result[T any] struct {
	val  T
	ok   bool
	done bool
}

// Val returns the reply and whether the key or member existed. Before the
// batch has been applied it reports ok == false.
func (r *Result[T]) Val() (T, bool) {
	return r.val, r.done && r.ok
}

func (r *Result[T]) set(v T, ok bool) {
	r.val = v
	r.ok = ok
	r.done = true
}

// checkBounds rejects NaN score-range bounds.
func checkBounds(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) {
		return ErrInvalidScore
	}
	return nil
}
