package repository

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/ladder/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore is an in-process Store. Ordered sets are treaps, member data is
// a map per key and key expiry is tracked against an injectable clock.
//
// All state sits behind one RWMutex, so an Atomic batch is trivially
// isolated. Expired keys are invisible to readers immediately and are purged
// by writers and by a periodic sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	sets    map[string]*sortedSet
	hashes  map[string]map[string][]byte
	expires map[string]time.Time

	now           func() time.Time
	sweepInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	closed   bool
}

// NewMemoryStore constructs an in-memory store and starts its expiry sweeper.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sets:          make(map[string]*sortedSet),
		hashes:        make(map[string]map[string][]byte),
		expires:       make(map[string]time.Time),
		now:           time.Now,
		sweepInterval: time.Second,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startSweeper(ctx)
	return s
}

func (s *MemoryStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.expires {
		s.purge(key)
	}
}

// Close stops the sweeper. The store stays readable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stopChan)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func observe(backend, command string, start time.Time, err error) {
	metrics.RecordStoreCommand(backend, command, float64(time.Since(start).Microseconds())/1000, err)
}

func storeErr(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", command, ErrStore, err)
}

// Lock-held helpers.

func (s *MemoryStore) expired(key string) bool {
	at, ok := s.expires[key]
	return ok && !s.now().Before(at)
}

// purge drops key if its deadline has passed. Callers hold the write lock.
func (s *MemoryStore) purge(key string) {
	if s.expired(key) {
		s.drop(key)
	}
}

func (s *MemoryStore) drop(key string) {
	delete(s.sets, key)
	delete(s.hashes, key)
	delete(s.expires, key)
}

func (s *MemoryStore) readSet(key string) *sortedSet {
	if s.expired(key) {
		return nil
	}
	return s.sets[key]
}

func (s *MemoryStore) writeSet(key string) *sortedSet {
	s.purge(key)
	z, ok := s.sets[key]
	if !ok {
		z = newSortedSet()
		s.sets[key] = z
	}
	return z
}

// settle removes a set that became empty, mirroring sorted-set semantics
// where empty keys do not exist.
func (s *MemoryStore) settle(key string) {
	if z, ok := s.sets[key]; ok && z.len() == 0 {
		delete(s.sets, key)
		if _, ok := s.hashes[key]; !ok {
			delete(s.expires, key)
		}
	}
}

func (s *MemoryStore) readHash(key string) map[string][]byte {
	if s.expired(key) {
		return nil
	}
	return s.hashes[key]
}

func (s *MemoryStore) exists(key string) bool {
	if s.expired(key) {
		return false
	}
	_, set := s.sets[key]
	_, hash := s.hashes[key]
	return set || hash
}

func (s *MemoryStore) add(key, member string, score float64) {
	s.writeSet(key).add(member, score)
}

func (s *MemoryStore) remove(key, member string) {
	s.purge(key)
	if z, ok := s.sets[key]; ok {
		z.remove(member)
		s.settle(key)
	}
}

func (s *MemoryStore) expire(key string, ttl time.Duration) {
	s.purge(key)
	if !s.exists(key) {
		return
	}
	if ttl <= 0 {
		s.drop(key)
		return
	}
	s.expires[key] = s.now().Add(ttl)
}

func (s *MemoryStore) setData(key, member string, blob []byte) {
	s.purge(key)
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		s.hashes[key] = h
	}
	h[member] = append([]byte(nil), blob...)
}

func (s *MemoryStore) removeData(key, member string) {
	s.purge(key)
	if h, ok := s.hashes[key]; ok {
		delete(h, member)
		if len(h) == 0 {
			delete(s.hashes, key)
			if _, ok := s.sets[key]; !ok {
				delete(s.expires, key)
			}
		}
	}
}

func (s *MemoryStore) count(key string) int64 {
	if z := s.readSet(key); z != nil {
		return int64(z.len())
	}
	return 0
}

func (s *MemoryStore) rank(key, member string, desc bool) (int64, bool) {
	z := s.readSet(key)
	if z == nil {
		return 0, false
	}
	r, ok := z.rank(member, desc)
	return int64(r), ok
}

func (s *MemoryStore) score(key, member string) (float64, bool) {
	z := s.readSet(key)
	if z == nil {
		return 0, false
	}
	return z.score(member)
}

// OrderedSetStore.

// Exists reports whether key holds a live set or member-data map.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	start := time.Now()
	s.mu.RLock()
	ok := s.exists(key)
	s.mu.RUnlock()
	observe(backendMemory, "exists", start, nil)
	return ok, nil
}

// Delete removes keys; missing keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	start := time.Now()
	s.mu.Lock()
	for _, k := range keys {
		s.drop(k)
	}
	s.mu.Unlock()
	observe(backendMemory, "del", start, nil)
	return nil
}

// Add sets member's score, inserting it when absent.
func (s *MemoryStore) Add(_ context.Context, key, member string, score float64) error {
	start := time.Now()
	if math.IsNaN(score) {
		err := storeErr("zadd", ErrInvalidScore)
		observe(backendMemory, "zadd", start, err)
		return err
	}
	s.mu.Lock()
	s.add(key, member, score)
	s.mu.Unlock()
	observe(backendMemory, "zadd", start, nil)
	return nil
}

// Remove deletes member from key.
func (s *MemoryStore) Remove(_ context.Context, key, member string) error {
	start := time.Now()
	s.mu.Lock()
	s.remove(key, member)
	s.mu.Unlock()
	observe(backendMemory, "zrem", start, nil)
	return nil
}

// RemoveByScore deletes members with min <= score <= max.
func (s *MemoryStore) RemoveByScore(_ context.Context, key string, min, max float64) (int64, error) {
	start := time.Now()
	if err := storeErr("zremrangebyscore", checkBounds(min, max)); err != nil {
		observe(backendMemory, "zremrangebyscore", start, err)
		return 0, err
	}
	s.mu.Lock()
	var n int
	s.purge(key)
	if z, ok := s.sets[key]; ok {
		n = z.removeAll(z.rangeByScore(min, max, false))
		s.settle(key)
	}
	s.mu.Unlock()
	observe(backendMemory, "zremrangebyscore", start, nil)
	return int64(n), nil
}

// RemoveByIndex deletes members at ascending positions [start, stop].
func (s *MemoryStore) RemoveByIndex(_ context.Context, key string, from, to int64) (int64, error) {
	start := time.Now()
	s.mu.Lock()
	var n int
	s.purge(key)
	if z, ok := s.sets[key]; ok {
		n = z.removeAll(z.rangeByIndex(from, to, false))
		s.settle(key)
	}
	s.mu.Unlock()
	observe(backendMemory, "zremrangebyrank", start, nil)
	return int64(n), nil
}

// Count returns the cardinality of key.
func (s *MemoryStore) Count(_ context.Context, key string) (int64, error) {
	start := time.Now()
	s.mu.RLock()
	n := s.count(key)
	s.mu.RUnlock()
	observe(backendMemory, "zcard", start, nil)
	return n, nil
}

// CountByScore counts members with min <= score <= max.
func (s *MemoryStore) CountByScore(_ context.Context, key string, min, max float64) (int64, error) {
	start := time.Now()
	if err := storeErr("zcount", checkBounds(min, max)); err != nil {
		observe(backendMemory, "zcount", start, err)
		return 0, err
	}
	s.mu.RLock()
	var n int
	if z := s.readSet(key); z != nil {
		n = z.countByScore(min, max)
	}
	s.mu.RUnlock()
	observe(backendMemory, "zcount", start, nil)
	return int64(n), nil
}

// Increment adds delta to member's score, treating an absent member as 0.
func (s *MemoryStore) Increment(_ context.Context, key, member string, delta float64) (float64, error) {
	start := time.Now()
	s.mu.Lock()
	cur, _ := s.score(key, member)
	next := cur + delta
	if math.IsNaN(next) {
		s.mu.Unlock()
		err := storeErr("zincrby", ErrInvalidScore)
		observe(backendMemory, "zincrby", start, err)
		return 0, err
	}
	s.add(key, member, next)
	s.mu.Unlock()
	observe(backendMemory, "zincrby", start, nil)
	return next, nil
}

// Rank returns the 0-based position of member.
func (s *MemoryStore) Rank(_ context.Context, key, member string, desc bool) (int64, bool, error) {
	start := time.Now()
	s.mu.RLock()
	r, ok := s.rank(key, member, desc)
	s.mu.RUnlock()
	observe(backendMemory, "zrank", start, nil)
	return r, ok, nil
}

// Score returns member's score.
func (s *MemoryStore) Score(_ context.Context, key, member string) (float64, bool, error) {
	start := time.Now()
	s.mu.RLock()
	sc, ok := s.score(key, member)
	s.mu.RUnlock()
	observe(backendMemory, "zscore", start, nil)
	return sc, ok, nil
}

// RangeByIndex returns members at positions [start, stop] in the given order.
func (s *MemoryStore) RangeByIndex(_ context.Context, key string, from, to int64, desc bool) ([]Member, error) {
	start := time.Now()
	s.mu.RLock()
	out := []Member{}
	if z := s.readSet(key); z != nil {
		out = z.rangeByIndex(from, to, desc)
	}
	s.mu.RUnlock()
	observe(backendMemory, "zrange", start, nil)
	return out, nil
}

// RangeByScore returns members with min <= score <= max in the given order.
func (s *MemoryStore) RangeByScore(_ context.Context, key string, min, max float64, desc bool) ([]Member, error) {
	start := time.Now()
	if err := storeErr("zrangebyscore", checkBounds(min, max)); err != nil {
		observe(backendMemory, "zrangebyscore", start, err)
		return nil, err
	}
	s.mu.RLock()
	out := []Member{}
	if z := s.readSet(key); z != nil {
		out = z.rangeByScore(min, max, desc)
	}
	s.mu.RUnlock()
	observe(backendMemory, "zrangebyscore", start, nil)
	return out, nil
}

// Union stores the union of keys into dest.
func (s *MemoryStore) Union(_ context.Context, dest string, keys []string, agg Aggregate) (int64, error) {
	return s.combine("zunionstore", dest, keys, agg, false)
}

// Intersect stores the intersection of keys into dest.
func (s *MemoryStore) Intersect(_ context.Context, dest string, keys []string, agg Aggregate) (int64, error) {
	return s.combine("zinterstore", dest, keys, agg, true)
}

func (s *MemoryStore) combine(command, dest string, keys []string, agg Aggregate, intersect bool) (int64, error) {
	start := time.Now()
	if len(keys) == 0 {
		err := storeErr(command, ErrNoKeys)
		observe(backendMemory, command, start, err)
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := make(map[string]float64)
	seen := make(map[string]int)
	for i, key := range keys {
		z := s.readSet(key)
		if z == nil {
			if intersect {
				acc = map[string]float64{}
				break
			}
			continue
		}
		for member, score := range z.scores {
			if intersect && seen[member] != i {
				continue
			}
			seen[member]++
			if prev, ok := acc[member]; ok {
				acc[member] = aggregate(agg, prev, score)
			} else {
				acc[member] = score
			}
		}
	}

	out := newSortedSet()
	for member, score := range acc {
		if intersect && seen[member] != len(keys) {
			continue
		}
		out.add(member, score)
	}

	s.drop(dest)
	if out.len() > 0 {
		s.sets[dest] = out
	}
	observe(backendMemory, command, start, nil)
	return int64(out.len()), nil
}

func aggregate(agg Aggregate, a, b float64) float64 {
	switch agg {
	case AggregateMin:
		return math.Min(a, b)
	case AggregateMax:
		return math.Max(a, b)
	default:
		sum := a + b
		if math.IsNaN(sum) {
			return 0
		}
		return sum
	}
}

// Expire sets a time to live on key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	s.mu.Lock()
	s.expire(key, ttl)
	s.mu.Unlock()
	observe(backendMemory, "expire", start, nil)
	return nil
}

// MemberDataStore.

// GetData returns the blob stored for member under key.
func (s *MemoryStore) GetData(_ context.Context, key, member string) ([]byte, bool, error) {
	start := time.Now()
	s.mu.RLock()
	var (
		blob []byte
		ok   bool
	)
	if h := s.readHash(key); h != nil {
		var b []byte
		if b, ok = h[member]; ok {
			blob = append([]byte(nil), b...)
		}
	}
	s.mu.RUnlock()
	observe(backendMemory, "hget", start, nil)
	return blob, ok, nil
}

// SetData stores blob for member under key.
func (s *MemoryStore) SetData(_ context.Context, key, member string, blob []byte) error {
	start := time.Now()
	s.mu.Lock()
	s.setData(key, member, blob)
	s.mu.Unlock()
	observe(backendMemory, "hset", start, nil)
	return nil
}

// RemoveData deletes member's blob under key.
func (s *MemoryStore) RemoveData(_ context.Context, key, member string) error {
	start := time.Now()
	s.mu.Lock()
	s.removeData(key, member)
	s.mu.Unlock()
	observe(backendMemory, "hdel", start, nil)
	return nil
}

// Atomic batches.

type memTx struct {
	ops []func(*MemoryStore)
	err error
}

func (t *memTx) queue(op func(*MemoryStore)) { t.ops = append(t.ops, op) }

func (t *memTx) Add(key, member string, score float64) {
	if math.IsNaN(score) && t.err == nil {
		t.err = storeErr("zadd", ErrInvalidScore)
	}
	t.queue(func(s *MemoryStore) { s.add(key, member, score) })
}

func (t *memTx) Remove(key, member string) {
	t.queue(func(s *MemoryStore) { s.remove(key, member) })
}

func (t *memTx) Delete(keys ...string) {
	t.queue(func(s *MemoryStore) {
		for _, k := range keys {
			s.drop(k)
		}
	})
}

func (t *memTx) Expire(key string, ttl time.Duration) {
	t.queue(func(s *MemoryStore) { s.expire(key, ttl) })
}

func (t *memTx) SetData(key, member string, blob []byte) {
	blob = append([]byte(nil), blob...)
	t.queue(func(s *MemoryStore) { s.setData(key, member, blob) })
}

func (t *memTx) RemoveData(key, member string) {
	t.queue(func(s *MemoryStore) { s.removeData(key, member) })
}

func (t *memTx) Count(key string) *Result[int64] {
	r := &Result[int64]{}
	t.queue(func(s *MemoryStore) { r.set(s.count(key), true) })
	return r
}

func (t *memTx) Rank(key, member string, desc bool) *Result[int64] {
	r := &Result[int64]{}
	t.queue(func(s *MemoryStore) { r.set(s.rank(key, member, desc)) })
	return r
}

func (t *memTx) Score(key, member string) *Result[float64] {
	r := &Result[float64]{}
	t.queue(func(s *MemoryStore) { r.set(s.score(key, member)) })
	return r
}

// Atomic applies the commands queued by fn under the write lock.
func (s *MemoryStore) Atomic(_ context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	tx := &memTx{}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.err != nil {
		observe(backendMemory, "multi", start, tx.err)
		return tx.err
	}
	metrics.RecordStoreBatch(len(tx.ops))

	s.mu.Lock()
	for _, op := range tx.ops {
		op(s)
	}
	s.mu.Unlock()
	observe(backendMemory, "multi", start, nil)
	return nil
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
