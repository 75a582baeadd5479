package leaderboard

import (
	"strings"

	"github.com/okian/ladder/internal/adapters/repository"
)

// Number is the set of score types a leaderboard can rank by.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Record is one ranked entry. Rank is 1-based and honours the board
// direction. Data is nil unless member data was requested and exists.
type Record[M ~string, S Number, T any] struct {
	Member M     `json:"member"`
	Score  S     `json:"score"`
	Rank   int64 `json:"rank"`
	Data   *T    `json:"data,omitempty"`
}

// Page is one page of a board. Number is the clamped page and the totals
// come from the same count that placed the page window.
type Page[M ~string, S Number, T any] struct {
	Number       int64
	Size         int
	TotalMembers int64
	TotalPages   int64
	Records      []Record[M, S, T]
}

// MemberScorePair is an input tuple for bulk writes.
type MemberScorePair[M ~string, S Number] struct {
	Member M `json:"member"`
	Score  S `json:"score"`
}

// SortBy selects the post-processing order of a result set.
type SortBy int

const (
	// SortNone keeps the order in which candidates were produced.
	SortNone SortBy = iota
	SortByRank
	SortByScore
)

func (s SortBy) String() string {
	switch s {
	case SortByRank:
		return "rank"
	case SortByScore:
		return "score"
	default:
		return "none"
	}
}

// ParseSortBy maps "rank", "score" or "none"/"" to a SortBy.
func ParseSortBy(s string) (SortBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SortNone, nil
	case "rank":
		return SortByRank, nil
	case "score":
		return SortByScore, nil
	default:
		return SortNone, ErrInvalidSortBy
	}
}

// Aggregate is the per-member combining function of Merge and Intersect.
type Aggregate = repository.Aggregate

// Aggregation modes.
const (
	AggregateSum = repository.AggregateSum
	AggregateMin = repository.AggregateMin
	AggregateMax = repository.AggregateMax
)

// ParseAggregate maps "sum", "min" or "max" to an Aggregate.
var ParseAggregate = repository.ParseAggregate

// Options are the resolved per-query settings.
type Options struct {
	PageSize       int
	WithMemberData bool
	SortBy         SortBy
}

// QueryOption adjusts Options for a single call.
type QueryOption func(*Options)

// PageSize overrides the board page size. A non-positive value selects
// DefaultPageSize.
func PageSize(n int) QueryOption {
	return func(o *Options) {
		o.PageSize = NormalizePageSize(n)
	}
}

// WithMemberData hydrates Record.Data.
func WithMemberData() QueryOption {
	return func(o *Options) {
		o.WithMemberData = true
	}
}

// Sort sets the result order.
func Sort(by SortBy) QueryOption {
	return func(o *Options) {
		o.SortBy = by
	}
}

// Candidate is what a Condition sees before a conditional write.
type Candidate[M ~string, S Number, T any] struct {
	Member  M
	Current S
	Exists  bool
	Score   S
	Data    *T
	Reverse bool
}

// Condition decides whether RankMemberIf writes.
type Condition[M ~string, S Number, T any] func(Candidate[M, S, T]) bool

// ImprovesScore admits the write when the member is new or the new score
// ranks strictly better than the current one in the board direction.
func ImprovesScore[M ~string, S Number, T any](c Candidate[M, S, T]) bool {
	if !c.Exists {
		return true
	}
	if c.Reverse {
		return c.Score < c.Current
	}
	return c.Score > c.Current
}
