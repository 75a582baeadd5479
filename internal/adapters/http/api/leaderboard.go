// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/ladder/internal/leaderboard"
)

// LeaderboardHandler serves board-level reads and maintenance.
type LeaderboardHandler struct {
	boards BoardProvider
	query  queryParser
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(boards BoardProvider, query queryParser) *LeaderboardHandler {
	return &LeaderboardHandler{boards: boards, query: query}
}

type pageResponse struct {
	Leaderboard  string   `json:"leaderboard"`
	Page         int64    `json:"page"`
	PageSize     int      `json:"page_size"`
	TotalMembers int64    `json:"total_members"`
	TotalPages   int64    `json:"total_pages"`
	Members      []Record `json:"members"`
}

type listResponse struct {
	Leaderboard string   `json:"leaderboard"`
	Members     []Record `json:"members"`
}

type countResponse struct {
	Leaderboard string `json:"leaderboard"`
	Count       int64  `json:"count"`
}

type aggregateRequest struct {
	Dest      string   `json:"dest"`
	Boards    []string `json:"boards"`
	Aggregate string   `json:"aggregate"`
}

type expireRequest struct {
	TTLSeconds *int64     `json:"ttl_seconds"`
	At         *time.Time `json:"at"`
}

type rankedListRequest struct {
	Members []string `json:"members"`
}

func resolve(boards BoardProvider, op string, r *http.Request) (Board, error) {
	name := boardName(r)
	if name == "" {
		return nil, WrapKind(op, ErrBadRequest, errors.New("missing leaderboard name"))
	}
	b, err := boards.Board(name)
	if err != nil {
		return nil, WrapKind(op, ErrUnavailable, err)
	}
	return b, nil
}

// HandleMembers handles GET /leaderboards/{name}?page=&page_size=.
func (h *LeaderboardHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	opts, _, err := h.query.options(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	p, err := b.MembersPage(r.Context(), page, opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Leaderboard:  b.Name(),
		Page:         p.Number,
		PageSize:     p.Size,
		TotalMembers: p.TotalMembers,
		TotalPages:   p.TotalPages,
		Members:      p.Records,
	})
}

// HandleDelete handles DELETE /leaderboards/{name}.
func (h *LeaderboardHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_leaderboard"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := b.Delete(r.Context()); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRankRange handles GET /leaderboards/{name}/ranks?start=&end=.
func (h *LeaderboardHandler) HandleRankRange(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank_range"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	start, err := requiredInt(r, "start")
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	end, err := requiredInt(r, "end")
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	opts, _, err := h.query.options(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	recs, err := b.MembersInRankRange(r.Context(), start, end, opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Leaderboard: b.Name(), Members: recs})
}

// HandleScoreRange handles GET /leaderboards/{name}/scores?min=&max=.
func (h *LeaderboardHandler) HandleScoreRange(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_range"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	lo, hi, err := scoreBounds(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	opts, _, err := h.query.options(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	recs, err := b.MembersInScoreRange(r.Context(), lo, hi, opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Leaderboard: b.Name(), Members: recs})
}

// HandleRemoveScoreRange handles DELETE /leaderboards/{name}/scores?min=&max=.
func (h *LeaderboardHandler) HandleRemoveScoreRange(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_score_range"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	lo, hi, err := scoreBounds(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	n, err := b.RemoveMembersInScoreRange(r.Context(), lo, hi)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Leaderboard: b.Name(), Count: n})
}

// HandleTrim handles POST /leaderboards/{name}/trim?rank=, keeping ranks
// 1..rank.
func (h *LeaderboardHandler) HandleTrim(w http.ResponseWriter, r *http.Request) {
	const op = "api.trim"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	rank, err := requiredInt(r, "rank")
	if err != nil || rank < 0 {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	n, err := b.RemoveMembersOutsideRank(r.Context(), rank)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Leaderboard: b.Name(), Count: n})
}

// HandlePosition handles GET /leaderboards/{name}/positions/{position}.
func (h *LeaderboardHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	const op = "api.member_at"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	position, err := strconv.ParseInt(chi.URLParam(r, "position"), 10, 64)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	opts, _, err := h.query.options(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	rec, ok, err := b.MemberAt(r.Context(), position, opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if !ok {
		writeFailure(w, NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleRankedList handles POST /leaderboards/{name}/ranked-list.
func (h *LeaderboardHandler) HandleRankedList(w http.ResponseWriter, r *http.Request) {
	const op = "api.ranked_list"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req rankedListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	opts, _, err := h.query.options(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	recs, err := b.RankedList(r.Context(), req.Members, opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Leaderboard: b.Name(), Members: recs})
}

// HandleMerge handles POST /leaderboards/{name}/merge.
func (h *LeaderboardHandler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	h.aggregate(w, r, "api.merge", Board.Merge)
}

// HandleIntersect handles POST /leaderboards/{name}/intersect.
func (h *LeaderboardHandler) HandleIntersect(w http.ResponseWriter, r *http.Request) {
	h.aggregate(w, r, "api.intersect", Board.Intersect)
}

type aggregateFunc = func(Board, context.Context, string, []string, leaderboard.Aggregate) (int64, error)

func (h *LeaderboardHandler) aggregate(w http.ResponseWriter, r *http.Request, op string, fn aggregateFunc) {
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Dest == "" {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("dest is required")))
		return
	}
	agg, err := leaderboard.ParseAggregate(req.Aggregate)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	n, err := fn(b, r.Context(), req.Dest, req.Boards, agg)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Leaderboard: req.Dest, Count: n})
}

// HandleExpire handles POST /leaderboards/{name}/expire with either
// ttl_seconds or an RFC3339 at.
func (h *LeaderboardHandler) HandleExpire(w http.ResponseWriter, r *http.Request) {
	const op = "api.expire"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req expireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	switch {
	case req.At != nil:
		err = b.ExpireAt(r.Context(), *req.At)
	case req.TTLSeconds != nil:
		err = b.Expire(r.Context(), time.Duration(*req.TTLSeconds)*time.Second)
	default:
		err = WrapKind(op, ErrBadRequest, errors.New("ttl_seconds or at is required"))
	}
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
