// Package leaderboard ranks members by score on top of an ordered-set store.
//
// A Leaderboard is bound to one board name. The board lives in the store as
// an ordered set under that name, and optional per-member payloads live in a
// companion map under repository.MemberDataKey(name). The engine keeps no
// state of its own: every call reads the store, and reads that must agree
// with each other (rank and score, count and rank) are issued as one atomic
// batch.
//
// By default rank 1 is the highest score. WithReverse(true) makes rank 1 the
// lowest.
package leaderboard

import (
	"context"
	"time"

	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Board is the full capability set of a leaderboard.
type Board[M ~string, S Number, T any] interface {
	Name() string
	PageSize() int
	Reverse() bool

	Exists(ctx context.Context) (bool, error)
	Delete(ctx context.Context) error
	Expire(ctx context.Context, ttl time.Duration) error
	ExpireAt(ctx context.Context, at time.Time) error

	RankMember(ctx context.Context, member M, score S) error
	RankMemberWithData(ctx context.Context, member M, score S, data T) error
	RankMemberIf(ctx context.Context, cond Condition[M, S, T], member M, score S, data *T) (bool, error)
	RankMembers(ctx context.Context, pairs ...MemberScorePair[M, S]) error
	RankMemberAcross(ctx context.Context, boards []string, member M, score S, data *T) error
	ChangeScore(ctx context.Context, member M, delta S) (S, error)
	RemoveMember(ctx context.Context, member M) error

	MemberData(ctx context.Context, member M) (*T, error)
	UpdateMemberData(ctx context.Context, member M, data T) error
	RemoveMemberData(ctx context.Context, member M) error

	TotalMembers(ctx context.Context) (int64, error)
	TotalPages(ctx context.Context, opts ...QueryOption) (int64, error)
	TotalMembersInScoreRange(ctx context.Context, min, max S) (int64, error)
	Rank(ctx context.Context, member M) (int64, bool, error)
	Score(ctx context.Context, member M) (S, bool, error)
	HasMember(ctx context.Context, member M) (bool, error)
	Record(ctx context.Context, member M, opts ...QueryOption) (Record[M, S, T], bool, error)
	Percentile(ctx context.Context, member M) (int, bool, error)
	Page(ctx context.Context, member M, opts ...QueryOption) (int64, error)

	RemoveMembersInScoreRange(ctx context.Context, min, max S) (int64, error)
	RemoveMembersOutsideRank(ctx context.Context, rank int64) (int64, error)

	Members(ctx context.Context, page int64, opts ...QueryOption) ([]Record[M, S, T], error)
	MembersPage(ctx context.Context, page int64, opts ...QueryOption) (Page[M, S, T], error)
	AllMembers(ctx context.Context, opts ...QueryOption) ([]Record[M, S, T], error)
	MembersInScoreRange(ctx context.Context, min, max S, opts ...QueryOption) ([]Record[M, S, T], error)
	MembersInRankRange(ctx context.Context, startRank, endRank int64, opts ...QueryOption) ([]Record[M, S, T], error)
	MemberAt(ctx context.Context, position int64, opts ...QueryOption) (Record[M, S, T], bool, error)
	AroundMe(ctx context.Context, member M, opts ...QueryOption) ([]Record[M, S, T], error)
	RankedList(ctx context.Context, members []M, opts ...QueryOption) ([]Record[M, S, T], error)

	Merge(ctx context.Context, dest string, boards []string, agg Aggregate) (int64, error)
	Intersect(ctx context.Context, dest string, boards []string, agg Aggregate) (int64, error)
}

// Leaderboard is the store-backed Board.
type Leaderboard[M ~string, S Number, T any] struct {
	name  string
	store repository.Store
	cfg   config
}

var _ Board[string, float64, any] = (*Leaderboard[string, float64, any])(nil)

// New binds a leaderboard to name on store.
func New[M ~string, S Number, T any](name string, store repository.Store, opts ...Option) *Leaderboard[M, S, T] {
	cfg := config{
		pageSize:    DefaultPageSize,
		codec:       JSONCodec{},
		now:         time.Now,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Get().Named("leaderboard")
	}
	return &Leaderboard[M, S, T]{name: name, store: store, cfg: cfg}
}

// Named returns a copy of l bound to another board name.
func (l *Leaderboard[M, S, T]) Named(name string) *Leaderboard[M, S, T] {
	c := *l
	c.name = name
	return &c
}

func (l *Leaderboard[M, S, T]) Name() string  { return l.name }
func (l *Leaderboard[M, S, T]) PageSize() int { return l.cfg.pageSize }
func (l *Leaderboard[M, S, T]) Reverse() bool { return l.cfg.reverse }

// desc reports whether store ranks run from the highest score, which is
// what rank 1 means unless the board is reversed.
func (l *Leaderboard[M, S, T]) desc() bool { return !l.cfg.reverse }

func (l *Leaderboard[M, S, T]) dataKey() string { return repository.MemberDataKey(l.name) }

func (l *Leaderboard[M, S, T]) options(opts []QueryOption) Options {
	o := Options{PageSize: l.cfg.pageSize}
	for _, opt := range opts {
		opt(&o)
	}
	o.PageSize = NormalizePageSize(o.PageSize)
	return o
}

// track records the outcome of op and attaches op context to *err.
func (l *Leaderboard[M, S, T]) track(op string, start time.Time, err *error) {
	if *err != nil {
		*err = &OpError{Op: op, Board: l.name, Err: *err}
		l.cfg.log.Debug(context.Background(), "operation failed",
			logger.String("board", l.name),
			logger.String("op", op),
			logger.Error(*err))
	}
	metrics.RecordOperation(op, float64(time.Since(start).Microseconds())/1000, *err)
}

// Board lifecycle.

// Exists reports whether the board holds any member.
func (l *Leaderboard[M, S, T]) Exists(ctx context.Context) (ok bool, err error) {
	defer l.track("exists", time.Now(), &err)
	return l.store.Exists(ctx, l.name)
}

// Delete removes the board and its member data together.
func (l *Leaderboard[M, S, T]) Delete(ctx context.Context) (err error) {
	defer l.track("delete", time.Now(), &err)
	return l.store.Atomic(ctx, func(tx repository.Tx) error {
		tx.Delete(l.name, l.dataKey())
		return nil
	})
}

// Expire sets a time to live on the board and its member data.
func (l *Leaderboard[M, S, T]) Expire(ctx context.Context, ttl time.Duration) (err error) {
	defer l.track("expire", time.Now(), &err)
	return l.expire(ctx, ttl)
}

// ExpireAt expires the board at an absolute time. The ttl is computed in
// whole seconds against the board clock; a deadline in the past is passed
// through and the store drops the board.
func (l *Leaderboard[M, S, T]) ExpireAt(ctx context.Context, at time.Time) (err error) {
	defer l.track("expire_at", time.Now(), &err)
	ttl := time.Duration(at.UTC().Unix()-l.cfg.now().UTC().Unix()) * time.Second
	return l.expire(ctx, ttl)
}

func (l *Leaderboard[M, S, T]) expire(ctx context.Context, ttl time.Duration) error {
	return l.store.Atomic(ctx, func(tx repository.Tx) error {
		tx.Expire(l.name, ttl)
		tx.Expire(l.dataKey(), ttl)
		return nil
	})
}

// Writes.

// RankMember upserts member's score.
func (l *Leaderboard[M, S, T]) RankMember(ctx context.Context, member M, score S) (err error) {
	defer l.track("rank_member", time.Now(), &err)
	return l.rank(ctx, member, score, nil)
}

// RankMemberWithData upserts member's score and payload in one batch.
func (l *Leaderboard[M, S, T]) RankMemberWithData(ctx context.Context, member M, score S, data T) (err error) {
	defer l.track("rank_member", time.Now(), &err)
	return l.rank(ctx, member, score, &data)
}

func (l *Leaderboard[M, S, T]) rank(ctx context.Context, member M, score S, data *T) error {
	var blob []byte
	if data != nil {
		var err error
		if blob, err = l.encode(*data); err != nil {
			return err
		}
	}
	return l.store.Atomic(ctx, func(tx repository.Tx) error {
		tx.Add(l.name, string(member), float64(score))
		if data != nil {
			tx.SetData(l.dataKey(), string(member), blob)
		}
		return nil
	})
}

// RankMemberIf reads the current score, asks cond, and writes only when cond
// agrees. The read and the write are separate round trips: a concurrent
// writer can land in between and the later write wins.
func (l *Leaderboard[M, S, T]) RankMemberIf(ctx context.Context, cond Condition[M, S, T], member M, score S, data *T) (written bool, err error) {
	defer l.track("rank_member_if", time.Now(), &err)

	cur, exists, err := l.store.Score(ctx, l.name, string(member))
	if err != nil {
		return false, err
	}
	c := Candidate[M, S, T]{
		Member:  member,
		Current: S(cur),
		Exists:  exists,
		Score:   score,
		Data:    data,
		Reverse: l.cfg.reverse,
	}
	if !cond(c) {
		return false, nil
	}
	if err := l.rank(ctx, member, score, data); err != nil {
		return false, err
	}
	return true, nil
}

// RankMembers upserts many scores in one batch.
func (l *Leaderboard[M, S, T]) RankMembers(ctx context.Context, pairs ...MemberScorePair[M, S]) (err error) {
	defer l.track("rank_members", time.Now(), &err)
	if len(pairs) == 0 {
		return nil
	}
	return l.store.Atomic(ctx, func(tx repository.Tx) error {
		for _, p := range pairs {
			tx.Add(l.name, string(p.Member), float64(p.Score))
		}
		return nil
	})
}

// RankMemberAcross upserts one member into several boards in one batch.
func (l *Leaderboard[M, S, T]) RankMemberAcross(ctx context.Context, boards []string, member M, score S, data *T) (err error) {
	defer l.track("rank_member_across", time.Now(), &err)
	if len(boards) == 0 {
		return nil
	}
	var blob []byte
	if data != nil {
		if blob, err = l.encode(*data); err != nil {
			return err
		}
	}
	return l.store.Atomic(ctx, func(tx repository.Tx) error {
		for _, b := range boards {
			tx.Add(b, string(member), float64(score))
			if data != nil {
				tx.SetData(repository.MemberDataKey(b), string(member), blob)
			}
		}
		return nil
	})
}

// ChangeScore adds delta to member's score and returns the result. An absent
// member starts from zero.
func (l *Leaderboard[M, S, T]) ChangeScore(ctx context.Context, member M, delta S) (score S, err error) {
	defer l.track("change_score", time.Now(), &err)
	v, err := l.store.Increment(ctx, l.name, string(member), float64(delta))
	if err != nil {
		return 0, err
	}
	return S(v), nil
}

// RemoveMember deletes member and its payload in one batch.
func (l *Leaderboard[M, S, T]) RemoveMember(ctx context.Context, member M) (err error) {
	defer l.track("remove_member", time.Now(), &err)
	return l.store.Atomic(ctx, func(tx repository.Tx) error {
		tx.Remove(l.name, string(member))
		tx.RemoveData(l.dataKey(), string(member))
		return nil
	})
}

// Member data.

// MemberData returns member's payload, or nil when none is stored.
func (l *Leaderboard[M, S, T]) MemberData(ctx context.Context, member M) (data *T, err error) {
	defer l.track("member_data", time.Now(), &err)
	return l.loadData(ctx, l.dataKey(), member)
}

// UpdateMemberData replaces member's payload without touching its score.
func (l *Leaderboard[M, S, T]) UpdateMemberData(ctx context.Context, member M, data T) (err error) {
	defer l.track("update_member_data", time.Now(), &err)
	blob, err := l.encode(data)
	if err != nil {
		return err
	}
	return l.store.SetData(ctx, l.dataKey(), string(member), blob)
}

// RemoveMemberData drops member's payload.
func (l *Leaderboard[M, S, T]) RemoveMemberData(ctx context.Context, member M) (err error) {
	defer l.track("remove_member_data", time.Now(), &err)
	return l.store.RemoveData(ctx, l.dataKey(), string(member))
}

// Bulk removal.

// RemoveMembersInScoreRange deletes members with min <= score <= max.
// Their payloads stay until the board is deleted.
func (l *Leaderboard[M, S, T]) RemoveMembersInScoreRange(ctx context.Context, min, max S) (n int64, err error) {
	defer l.track("remove_members_in_score_range", time.Now(), &err)
	return l.store.RemoveByScore(ctx, l.name, float64(min), float64(max))
}

// RemoveMembersOutsideRank keeps the best rank members and deletes the rest.
func (l *Leaderboard[M, S, T]) RemoveMembersOutsideRank(ctx context.Context, rank int64) (n int64, err error) {
	defer l.track("remove_members_outside_rank", time.Now(), &err)
	if rank < 0 {
		rank = 0
	}
	if l.cfg.reverse {
		return l.store.RemoveByIndex(ctx, l.name, rank, -1)
	}
	return l.store.RemoveByIndex(ctx, l.name, 0, -rank-1)
}

// Aggregation.

// Merge stores the union of this board and boards into dest.
func (l *Leaderboard[M, S, T]) Merge(ctx context.Context, dest string, boards []string, agg Aggregate) (n int64, err error) {
	defer l.track("merge", time.Now(), &err)
	return l.store.Union(ctx, dest, l.sources(boards), agg)
}

// Intersect stores the intersection of this board and boards into dest.
func (l *Leaderboard[M, S, T]) Intersect(ctx context.Context, dest string, boards []string, agg Aggregate) (n int64, err error) {
	defer l.track("intersect", time.Now(), &err)
	return l.store.Intersect(ctx, dest, l.sources(boards), agg)
}

func (l *Leaderboard[M, S, T]) sources(boards []string) []string {
	keys := make([]string, 0, len(boards)+1)
	keys = append(keys, l.name)
	for _, b := range boards {
		if b != l.name {
			keys = append(keys, b)
		}
	}
	return keys
}
