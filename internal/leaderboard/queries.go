package leaderboard

import (
	"context"
	"time"

	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/pkg/metrics"
)

// Counts.

// TotalMembers returns the board cardinality.
func (l *Leaderboard[M, S, T]) TotalMembers(ctx context.Context) (n int64, err error) {
	defer l.track("total_members", time.Now(), &err)
	return l.store.Count(ctx, l.name)
}

// TotalPages returns ceil(TotalMembers / page size).
func (l *Leaderboard[M, S, T]) TotalPages(ctx context.Context, opts ...QueryOption) (pages int64, err error) {
	defer l.track("total_pages", time.Now(), &err)
	n, err := l.store.Count(ctx, l.name)
	if err != nil {
		return 0, err
	}
	return TotalPages(n, l.options(opts).PageSize), nil
}

// TotalMembersInScoreRange counts members with min <= score <= max.
func (l *Leaderboard[M, S, T]) TotalMembersInScoreRange(ctx context.Context, min, max S) (n int64, err error) {
	defer l.track("total_members_in_score_range", time.Now(), &err)
	return l.store.CountByScore(ctx, l.name, float64(min), float64(max))
}

// Point lookups.

// Rank returns member's 1-based rank.
func (l *Leaderboard[M, S, T]) Rank(ctx context.Context, member M) (rank int64, ok bool, err error) {
	defer l.track("rank", time.Now(), &err)
	return l.rankOf(ctx, member)
}

func (l *Leaderboard[M, S, T]) rankOf(ctx context.Context, member M) (int64, bool, error) {
	r, ok, err := l.store.Rank(ctx, l.name, string(member), l.desc())
	if err != nil || !ok {
		return 0, false, err
	}
	return r + 1, true, nil
}

// Score returns member's score.
func (l *Leaderboard[M, S, T]) Score(ctx context.Context, member M) (score S, ok bool, err error) {
	defer l.track("score", time.Now(), &err)
	v, ok, err := l.store.Score(ctx, l.name, string(member))
	if err != nil || !ok {
		return 0, false, err
	}
	return S(v), true, nil
}

// HasMember reports whether member is on the board.
func (l *Leaderboard[M, S, T]) HasMember(ctx context.Context, member M) (ok bool, err error) {
	defer l.track("has_member", time.Now(), &err)
	_, ok, err = l.store.Score(ctx, l.name, string(member))
	return ok, err
}

// Record returns rank and score of member read in one batch.
func (l *Leaderboard[M, S, T]) Record(ctx context.Context, member M, opts ...QueryOption) (rec Record[M, S, T], ok bool, err error) {
	defer l.track("record", time.Now(), &err)
	recs, err := l.resolveRecords(ctx, []M{member})
	if err != nil || len(recs) == 0 {
		return Record[M, S, T]{}, false, err
	}
	if recs, err = l.finish(ctx, recs, l.options(opts)); err != nil {
		return Record[M, S, T]{}, false, err
	}
	return recs[0], true, nil
}

// Percentile is floor(x / count * 100) where x is the number of members
// ranked below member in the board direction. The best of three scores 66
// and the worst scores 0.
func (l *Leaderboard[M, S, T]) Percentile(ctx context.Context, member M) (pct int, ok bool, err error) {
	defer l.track("percentile", time.Now(), &err)

	var (
		count *repository.Result[int64]
		rank  *repository.Result[int64]
	)
	err = l.store.Atomic(ctx, func(tx repository.Tx) error {
		count = tx.Count(l.name)
		rank = tx.Rank(l.name, string(member), false)
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	n, _ := count.Val()
	r, ok := rank.Val()
	if !ok || n == 0 {
		return 0, false, nil
	}
	below := r
	if l.cfg.reverse {
		below = n - r - 1
	}
	return int(below * 100 / n), true, nil
}

// Page returns the page holding member, or 0 when member is absent.
func (l *Leaderboard[M, S, T]) Page(ctx context.Context, member M, opts ...QueryOption) (page int64, err error) {
	defer l.track("page", time.Now(), &err)
	r, ok, err := l.rankOf(ctx, member)
	if err != nil || !ok {
		return 0, err
	}
	return PageOf(r, l.options(opts).PageSize), nil
}

// Range queries.

// Members returns one page. page is clamped into [1, TotalPages].
func (l *Leaderboard[M, S, T]) Members(ctx context.Context, page int64, opts ...QueryOption) (recs []Record[M, S, T], err error) {
	defer l.track("members", time.Now(), &err)
	p, err := l.page(ctx, page, l.options(opts))
	metrics.RecordRecordsReturned("members", len(p.Records))
	return p.Records, err
}

// MembersPage is Members together with the clamped page number and the
// board totals the page was cut from.
func (l *Leaderboard[M, S, T]) MembersPage(ctx context.Context, page int64, opts ...QueryOption) (p Page[M, S, T], err error) {
	defer l.track("members_page", time.Now(), &err)
	p, err = l.page(ctx, page, l.options(opts))
	metrics.RecordRecordsReturned("members", len(p.Records))
	return p, err
}

func (l *Leaderboard[M, S, T]) page(ctx context.Context, page int64, o Options) (Page[M, S, T], error) {
	total, err := l.store.Count(ctx, l.name)
	if err != nil {
		return Page[M, S, T]{}, err
	}
	p := Page[M, S, T]{
		Number:       1,
		Size:         o.PageSize,
		TotalMembers: total,
		TotalPages:   TotalPages(total, o.PageSize),
		Records:      []Record[M, S, T]{},
	}
	if total == 0 {
		return p, nil
	}
	number, start, end := PageBounds(page, o.PageSize, total)
	p.Number = number
	ms, err := l.store.RangeByIndex(ctx, l.name, start, end, l.desc())
	if err != nil {
		return Page[M, S, T]{}, err
	}
	if p.Records, err = l.finish(ctx, l.recordsFromRange(ms, start+1), o); err != nil {
		return Page[M, S, T]{}, err
	}
	return p, nil
}

// AllMembers returns the whole board in rank order.
func (l *Leaderboard[M, S, T]) AllMembers(ctx context.Context, opts ...QueryOption) (recs []Record[M, S, T], err error) {
	defer l.track("all_members", time.Now(), &err)
	ms, err := l.store.RangeByIndex(ctx, l.name, 0, -1, l.desc())
	if err != nil {
		return nil, err
	}
	recs, err = l.finish(ctx, l.recordsFromRange(ms, 1), l.options(opts))
	metrics.RecordRecordsReturned("all_members", len(recs))
	return recs, err
}

// MembersInScoreRange returns members with min <= score <= max in rank
// order, their ranks resolved in one batch.
func (l *Leaderboard[M, S, T]) MembersInScoreRange(ctx context.Context, min, max S, opts ...QueryOption) (recs []Record[M, S, T], err error) {
	defer l.track("members_in_score_range", time.Now(), &err)
	ms, err := l.store.RangeByScore(ctx, l.name, float64(min), float64(max), l.desc())
	if err != nil {
		return nil, err
	}
	candidates := make([]M, len(ms))
	for i, m := range ms {
		candidates[i] = M(m.Member)
	}
	return l.rankedList(ctx, candidates, l.options(opts))
}

// MembersInRankRange returns ranks [startRank, endRank], both 1-based and
// inclusive. endRank past the last member is clamped.
func (l *Leaderboard[M, S, T]) MembersInRankRange(ctx context.Context, startRank, endRank int64, opts ...QueryOption) (recs []Record[M, S, T], err error) {
	defer l.track("members_in_rank_range", time.Now(), &err)
	return l.rankRange(ctx, startRank, endRank, l.options(opts))
}

func (l *Leaderboard[M, S, T]) rankRange(ctx context.Context, startRank, endRank int64, o Options) ([]Record[M, S, T], error) {
	total, err := l.store.Count(ctx, l.name)
	if err != nil {
		return nil, err
	}
	start := max(startRank-1, 0)
	end := min(endRank-1, total-1)
	if end < 0 || end < start {
		return []Record[M, S, T]{}, nil
	}
	ms, err := l.store.RangeByIndex(ctx, l.name, start, end, l.desc())
	if err != nil {
		return nil, err
	}
	return l.finish(ctx, l.recordsFromRange(ms, start+1), o)
}

// MemberAt returns the member at a 1-based absolute position.
func (l *Leaderboard[M, S, T]) MemberAt(ctx context.Context, position int64, opts ...QueryOption) (rec Record[M, S, T], ok bool, err error) {
	defer l.track("member_at", time.Now(), &err)

	total, err := l.store.Count(ctx, l.name)
	if err != nil {
		return Record[M, S, T]{}, false, err
	}
	if position < 1 || position > total {
		return Record[M, S, T]{}, false, nil
	}
	o := l.options(opts)
	o.SortBy = SortNone
	page, offset := PositionToPage(position, o.PageSize)
	p, err := l.page(ctx, page, o)
	if err != nil || offset >= int64(len(p.Records)) {
		return Record[M, S, T]{}, false, err
	}
	return p.Records[offset], true, nil
}

// AroundMe returns a page-sized window of ranks around member. Near the top
// the window is shifted down rather than re-centred. An absent member yields
// an empty result.
func (l *Leaderboard[M, S, T]) AroundMe(ctx context.Context, member M, opts ...QueryOption) (recs []Record[M, S, T], err error) {
	defer l.track("around_me", time.Now(), &err)
	r, ok, err := l.rankOf(ctx, member)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Record[M, S, T]{}, nil
	}
	o := l.options(opts)
	startRank := max(1, r-int64(o.PageSize/2))
	return l.rankRange(ctx, startRank, startRank+int64(o.PageSize)-1, o)
}

// RankedList resolves rank and score for an arbitrary member list. Members
// not on the board are dropped.
func (l *Leaderboard[M, S, T]) RankedList(ctx context.Context, members []M, opts ...QueryOption) (recs []Record[M, S, T], err error) {
	defer l.track("ranked_list", time.Now(), &err)
	return l.rankedList(ctx, members, l.options(opts))
}

func (l *Leaderboard[M, S, T]) rankedList(ctx context.Context, members []M, o Options) ([]Record[M, S, T], error) {
	recs, err := l.resolveRecords(ctx, members)
	if err != nil {
		return nil, err
	}
	return l.finish(ctx, recs, o)
}
