// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/ladder/internal/leaderboard"
)

// MemberHandler serves reads and writes of a single member.
type MemberHandler struct {
	boards BoardProvider
	query  queryParser
}

// NewMemberHandler creates a new member handler.
func NewMemberHandler(boards BoardProvider, query queryParser) *MemberHandler {
	return &MemberHandler{boards: boards, query: query}
}

type memberResponse struct {
	Member     string           `json:"member"`
	Score      float64          `json:"score"`
	Rank       int64            `json:"rank"`
	Percentile int              `json:"percentile"`
	Page       int64            `json:"page"`
	Data       *json.RawMessage `json:"data,omitempty"`
}

type putMemberRequest struct {
	Score        *float64        `json:"score"`
	Data         json.RawMessage `json:"data,omitempty"`
	OnlyIfBetter bool            `json:"only_if_better"`
}

type putMemberResponse struct {
	Member  string `json:"member"`
	Written bool   `json:"written"`
}

type changeScoreRequest struct {
	Delta *float64 `json:"delta"`
}

type scoreResponse struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// HandleGet handles GET /leaderboards/{name}/members/{member}.
func (h *MemberHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_member"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	opts, _, err := h.query.options(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	ctx := r.Context()
	member := memberName(r)
	rec, ok, err := b.Record(ctx, member, opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if !ok {
		writeFailure(w, NewKind(op, ErrNotFound))
		return
	}
	pct, _, err := b.Percentile(ctx, member)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	page, err := b.Page(ctx, member, opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, memberResponse{
		Member:     rec.Member,
		Score:      rec.Score,
		Rank:       rec.Rank,
		Percentile: pct,
		Page:       page,
		Data:       rec.Data,
	})
}

// HandlePut handles PUT /leaderboards/{name}/members/{member}. With
// only_if_better the write happens only when the score ranks better.
func (h *MemberHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_member"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req putMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Score == nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("score is required")))
		return
	}

	ctx := r.Context()
	member := memberName(r)
	written := true
	switch {
	case req.OnlyIfBetter:
		var data *json.RawMessage
		if len(req.Data) > 0 {
			data = &req.Data
		}
		written, err = b.RankMemberIf(ctx, leaderboard.ImprovesScore[string, float64, json.RawMessage], member, *req.Score, data)
	case len(req.Data) > 0:
		err = b.RankMemberWithData(ctx, member, *req.Score, req.Data)
	default:
		err = b.RankMember(ctx, member, *req.Score)
	}
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, putMemberResponse{Member: member, Written: written})
}

// HandleDelete handles DELETE /leaderboards/{name}/members/{member}.
func (h *MemberHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_member"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := b.RemoveMember(r.Context(), memberName(r)); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangeScore handles POST /leaderboards/{name}/members/{member}/score.
func (h *MemberHandler) HandleChangeScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.change_score"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req changeScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Delta == nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("delta is required")))
		return
	}
	member := memberName(r)
	score, err := b.ChangeScore(r.Context(), member, *req.Delta)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Member: member, Score: score})
}

// HandleAround handles GET /leaderboards/{name}/members/{member}/around.
func (h *MemberHandler) HandleAround(w http.ResponseWriter, r *http.Request) {
	const op = "api.around_me"
	b, err := resolve(h.boards, op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	opts, _, err := h.query.options(r)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	recs, err := b.AroundMe(r.Context(), memberName(r), opts...)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Leaderboard: b.Name(), Members: recs})
}
