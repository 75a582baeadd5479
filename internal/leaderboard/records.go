package leaderboard

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/pkg/logger"
)

// recordsFromRange turns an index-range reply into records whose ranks count
// up from firstRank.
func (l *Leaderboard[M, S, T]) recordsFromRange(ms []repository.Member, firstRank int64) []Record[M, S, T] {
	out := make([]Record[M, S, T], 0, len(ms))
	for i, m := range ms {
		out = append(out, Record[M, S, T]{
			Member: M(m.Member),
			Score:  S(m.Score),
			Rank:   firstRank + int64(i),
		})
	}
	return out
}

// resolveRecords looks up rank and score of every candidate in one atomic
// batch. Candidates that are not on the board are dropped.
func (l *Leaderboard[M, S, T]) resolveRecords(ctx context.Context, members []M) ([]Record[M, S, T], error) {
	if len(members) == 0 {
		return []Record[M, S, T]{}, nil
	}

	type pending struct {
		rank  *repository.Result[int64]
		score *repository.Result[float64]
	}
	reads := make([]pending, len(members))
	err := l.store.Atomic(ctx, func(tx repository.Tx) error {
		for i, m := range members {
			reads[i] = pending{
				rank:  tx.Rank(l.name, string(m), l.desc()),
				score: tx.Score(l.name, string(m)),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Record[M, S, T], 0, len(members))
	for i, m := range members {
		rank, rok := reads[i].rank.Val()
		score, sok := reads[i].score.Val()
		if !rok || !sok {
			continue
		}
		out = append(out, Record[M, S, T]{Member: m, Score: S(score), Rank: rank + 1})
	}
	return out, nil
}

// hydrate fills Data for each record with a bounded number of parallel
// lookups. The first failure cancels the rest and is returned.
func (l *Leaderboard[M, S, T]) hydrate(ctx context.Context, recs []Record[M, S, T]) error {
	if len(recs) == 0 {
		return nil
	}
	key := repository.MemberDataKey(l.name)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.concurrency)
	for i := range recs {
		g.Go(func() error {
			data, err := l.loadData(gctx, key, recs[i].Member)
			if err != nil {
				return err
			}
			recs[i].Data = data
			return nil
		})
	}
	return g.Wait()
}

func (l *Leaderboard[M, S, T]) loadData(ctx context.Context, key string, member M) (*T, error) {
	blob, ok, err := l.store.GetData(ctx, key, string(member))
	if err != nil || !ok {
		return nil, err
	}
	v := new(T)
	if err := l.cfg.codec.Unmarshal(blob, v); err != nil {
		l.cfg.log.Warn(ctx, "undecodable member data",
			logger.String("board", l.name),
			logger.String("member", string(member)),
			logger.Error(err))
		return nil, fmt.Errorf("%w: member %q: %w", ErrDecodeData, string(member), err)
	}
	return v, nil
}

func (l *Leaderboard[M, S, T]) encode(data T) ([]byte, error) {
	blob, err := l.cfg.codec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeData, err)
	}
	return blob, nil
}

// sortRecords orders recs in place. The sort is stable so ties keep their
// candidate order.
func sortRecords[M ~string, S Number, T any](recs []Record[M, S, T], by SortBy) {
	switch by {
	case SortByRank:
		slices.SortStableFunc(recs, func(a, b Record[M, S, T]) int {
			return cmp.Compare(a.Rank, b.Rank)
		})
	case SortByScore:
		slices.SortStableFunc(recs, func(a, b Record[M, S, T]) int {
			return cmp.Compare(a.Score, b.Score)
		})
	}
}

// finish applies hydration and ordering to a candidate set.
func (l *Leaderboard[M, S, T]) finish(ctx context.Context, recs []Record[M, S, T], o Options) ([]Record[M, S, T], error) {
	if o.WithMemberData {
		if err := l.hydrate(ctx, recs); err != nil {
			return nil, err
		}
	}
	sortRecords(recs, o.SortBy)
	return recs, nil
}
