package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/ladder/pkg/metrics"
)

const backendRedis = "redis"

// RedisStore is a Store over Redis sorted sets and hashes.
type RedisStore struct {
	rdb   redis.UniversalClient
	owned bool
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying client.
func (s *RedisStore) Client() redis.UniversalClient { return s.rdb }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := storeErr("ping", s.rdb.Ping(ctx).Err())
	observe(backendRedis, "ping", start, err)
	return err
}

// Close releases the client when the store owns it.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.rdb.Close()
	}
	return nil
}

// done records a command and wraps its error. redis.Nil is not a failure.
func done(command string, start time.Time, err error) error {
	switch {
	case errors.Is(err, redis.Nil):
		err = nil
	case errors.Is(err, redis.ErrClosed):
		err = fmt.Errorf("%w: %w", ErrClosed, err)
	}
	err = storeErr(command, err)
	observe(backendRedis, command, start, err)
	return err
}

func scoreArg(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

func fromZ(zs []redis.Z) []Member {
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		out = append(out, Member{Member: m, Score: z.Score})
	}
	return out
}

// OrderedSetStore.

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	n, err := s.rdb.Exists(ctx, key).Result()
	if err := done("exists", start, err); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	return done("del", start, s.rdb.Del(ctx, keys...).Err())
}

func (s *RedisStore) Add(ctx context.Context, key, member string, score float64) error {
	start := time.Now()
	if math.IsNaN(score) {
		return done("zadd", start, ErrInvalidScore)
	}
	return done("zadd", start, s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (s *RedisStore) Remove(ctx context.Context, key, member string) error {
	start := time.Now()
	return done("zrem", start, s.rdb.ZRem(ctx, key, member).Err())
}

func (s *RedisStore) RemoveByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	start := time.Now()
	if err := checkBounds(min, max); err != nil {
		return 0, done("zremrangebyscore", start, err)
	}
	n, err := s.rdb.ZRemRangeByScore(ctx, key, scoreArg(min), scoreArg(max)).Result()
	return n, done("zremrangebyscore", start, err)
}

func (s *RedisStore) RemoveByIndex(ctx context.Context, key string, from, to int64) (int64, error) {
	start := time.Now()
	n, err := s.rdb.ZRemRangeByRank(ctx, key, from, to).Result()
	return n, done("zremrangebyrank", start, err)
}

func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.rdb.ZCard(ctx, key).Result()
	return n, done("zcard", start, err)
}

func (s *RedisStore) CountByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	start := time.Now()
	if err := checkBounds(min, max); err != nil {
		return 0, done("zcount", start, err)
	}
	n, err := s.rdb.ZCount(ctx, key, scoreArg(min), scoreArg(max)).Result()
	return n, done("zcount", start, err)
}

func (s *RedisStore) Increment(ctx context.Context, key, member string, delta float64) (float64, error) {
	start := time.Now()
	v, err := s.rdb.ZIncrBy(ctx, key, delta, member).Result()
	return v, done("zincrby", start, err)
}

func (s *RedisStore) Rank(ctx context.Context, key, member string, desc bool) (int64, bool, error) {
	start := time.Now()
	var cmd *redis.IntCmd
	if desc {
		cmd = s.rdb.ZRevRank(ctx, key, member)
	} else {
		cmd = s.rdb.ZRank(ctx, key, member)
	}
	r, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, done("zrank", start, nil)
	}
	if err := done("zrank", start, err); err != nil {
		return 0, false, err
	}
	return r, true, nil
}

func (s *RedisStore) Score(ctx context.Context, key, member string) (float64, bool, error) {
	start := time.Now()
	v, err := s.rdb.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, done("zscore", start, nil)
	}
	if err := done("zscore", start, err); err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (s *RedisStore) RangeByIndex(ctx context.Context, key string, from, to int64, desc bool) ([]Member, error) {
	start := time.Now()
	var cmd *redis.ZSliceCmd
	if desc {
		cmd = s.rdb.ZRevRangeWithScores(ctx, key, from, to)
	} else {
		cmd = s.rdb.ZRangeWithScores(ctx, key, from, to)
	}
	zs, err := cmd.Result()
	if err := done("zrange", start, err); err != nil {
		return nil, err
	}
	return fromZ(zs), nil
}

func (s *RedisStore) RangeByScore(ctx context.Context, key string, min, max float64, desc bool) ([]Member, error) {
	start := time.Now()
	if err := checkBounds(min, max); err != nil {
		return nil, done("zrangebyscore", start, err)
	}
	by := &redis.ZRangeBy{Min: scoreArg(min), Max: scoreArg(max)}
	var cmd *redis.ZSliceCmd
	if desc {
		cmd = s.rdb.ZRevRangeByScoreWithScores(ctx, key, by)
	} else {
		cmd = s.rdb.ZRangeByScoreWithScores(ctx, key, by)
	}
	zs, err := cmd.Result()
	if err := done("zrangebyscore", start, err); err != nil {
		return nil, err
	}
	return fromZ(zs), nil
}

func (s *RedisStore) Union(ctx context.Context, dest string, keys []string, agg Aggregate) (int64, error) {
	start := time.Now()
	if len(keys) == 0 {
		return 0, done("zunionstore", start, ErrNoKeys)
	}
	n, err := s.rdb.ZUnionStore(ctx, dest, &redis.ZStore{Keys: keys, Aggregate: agg.String()}).Result()
	return n, done("zunionstore", start, err)
}

func (s *RedisStore) Intersect(ctx context.Context, dest string, keys []string, agg Aggregate) (int64, error) {
	start := time.Now()
	if len(keys) == 0 {
		return 0, done("zinterstore", start, ErrNoKeys)
	}
	n, err := s.rdb.ZInterStore(ctx, dest, &redis.ZStore{Keys: keys, Aggregate: agg.String()}).Result()
	return n, done("zinterstore", start, err)
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	if ttl <= 0 {
		return done("del", start, s.rdb.Del(ctx, key).Err())
	}
	return done("expire", start, s.rdb.Expire(ctx, key, ttl).Err())
}

// MemberDataStore.

func (s *RedisStore) GetData(ctx context.Context, key, member string) ([]byte, bool, error) {
	start := time.Now()
	b, err := s.rdb.HGet(ctx, key, member).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, done("hget", start, nil)
	}
	if err := done("hget", start, err); err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) SetData(ctx context.Context, key, member string, blob []byte) error {
	start := time.Now()
	return done("hset", start, s.rdb.HSet(ctx, key, member, blob).Err())
}

func (s *RedisStore) RemoveData(ctx context.Context, key, member string) error {
	start := time.Now()
	return done("hdel", start, s.rdb.HDel(ctx, key, member).Err())
}

// Atomic batches.

type redisTx struct {
	ctx      context.Context
	pipe     redis.Pipeliner
	resolves []func() error
	size     int
	err      error
}

func (t *redisTx) Add(key, member string, score float64) {
	t.size++
	if math.IsNaN(score) {
		if t.err == nil {
			t.err = storeErr("zadd", ErrInvalidScore)
		}
		return
	}
	t.pipe.ZAdd(t.ctx, key, redis.Z{Score: score, Member: member})
}

func (t *redisTx) Remove(key, member string) {
	t.size++
	t.pipe.ZRem(t.ctx, key, member)
}

func (t *redisTx) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	t.size++
	t.pipe.Del(t.ctx, keys...)
}

func (t *redisTx) Expire(key string, ttl time.Duration) {
	t.size++
	if ttl <= 0 {
		t.pipe.Del(t.ctx, key)
		return
	}
	t.pipe.Expire(t.ctx, key, ttl)
}

func (t *redisTx) SetData(key, member string, blob []byte) {
	t.size++
	t.pipe.HSet(t.ctx, key, member, blob)
}

func (t *redisTx) RemoveData(key, member string) {
	t.size++
	t.pipe.HDel(t.ctx, key, member)
}

func (t *redisTx) Count(key string) *Result[int64] {
	t.size++
	r := &Result[int64]{}
	cmd := t.pipe.ZCard(t.ctx, key)
	t.resolves = append(t.resolves, func() error {
		v, err := cmd.Result()
		if err != nil {
			return err
		}
		r.set(v, true)
		return nil
	})
	return r
}

func (t *redisTx) Rank(key, member string, desc bool) *Result[int64] {
	t.size++
	r := &Result[int64]{}
	var cmd *redis.IntCmd
	if desc {
		cmd = t.pipe.ZRevRank(t.ctx, key, member)
	} else {
		cmd = t.pipe.ZRank(t.ctx, key, member)
	}
	t.resolves = append(t.resolves, func() error {
		v, err := cmd.Result()
		switch {
		case errors.Is(err, redis.Nil):
			r.set(0, false)
		case err != nil:
			return err
		default:
			r.set(v, true)
		}
		return nil
	})
	return r
}

func (t *redisTx) Score(key, member string) *Result[float64] {
	t.size++
	r := &Result[float64]{}
	cmd := t.pipe.ZScore(t.ctx, key, member)
	t.resolves = append(t.resolves, func() error {
		v, err := cmd.Result()
		switch {
		case errors.Is(err, redis.Nil):
			r.set(0, false)
		case err != nil:
			return err
		default:
			r.set(v, true)
		}
		return nil
	})
	return r
}

// Atomic wraps the queued commands in MULTI/EXEC.
func (s *RedisStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	tx := &redisTx{ctx: ctx}
	cmds, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		tx.pipe = pipe
		if err := fn(tx); err != nil {
			return err
		}
		return tx.err
	})
	if err != nil {
		if cmds == nil {
			// Aborted before EXEC; nothing was sent.
			if tx.err != nil {
				observe(backendRedis, "multi", start, err)
			}
			return err
		}
		if !errors.Is(err, redis.Nil) {
			return done("multi", start, err)
		}
	}
	metrics.RecordStoreBatch(tx.size)
	for _, resolve := range tx.resolves {
		if err := resolve(); err != nil {
			return done("multi", start, err)
		}
	}
	observe(backendRedis, "multi", start, nil)
	return nil
}

var _ Store = (*RedisStore)(nil)
