package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/leaderboard"
)

// Board is the leaderboard surface the ingestion pipeline writes through.
type Board = leaderboard.Board[string, float64, json.RawMessage]

// BoardResolver returns the board an event addresses.
type BoardResolver func(name string) Board

// LeaderboardApplier applies score events to leaderboards.
type LeaderboardApplier struct {
	boards BoardResolver
}

// NewLeaderboardApplier creates an Applier over the given resolver.
func NewLeaderboardApplier(boards BoardResolver) *LeaderboardApplier {
	return &LeaderboardApplier{boards: boards}
}

// Apply writes e according to its mode and reports whether the board changed.
func (a *LeaderboardApplier) Apply(ctx context.Context, e Event) (bool, error) { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	b := a.boards(e.Leaderboard)
	var data *json.RawMessage
	if len(e.Data) > 0 {
		raw := e.Data
		data = &raw
	}

	switch e.Mode {
	case model.ModeSet, "":
		if data != nil {
			return true, b.RankMemberWithData(ctx, e.Member, e.Score, *data)
		}
		return true, b.RankMember(ctx, e.Member, e.Score)
	case model.ModeIncrement:
		if _, err := b.ChangeScore(ctx, e.Member, e.Score); err != nil {
			return false, err
		}
		if data != nil {
			return true, b.UpdateMemberData(ctx, e.Member, *data)
		}
		return true, nil
	case model.ModeBest:
		return b.RankMemberIf(ctx, leaderboard.ImprovesScore[string, float64, json.RawMessage], e.Member, e.Score, data)
	default:
		return false, fmt.Errorf("%w: %q", model.ErrInvalidMode, e.Mode)
	}
}
