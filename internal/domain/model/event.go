// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Mode selects how a score event is applied to its leaderboard.
type Mode string

const (
	// ModeSet overwrites the member's score.
	ModeSet Mode = "set"
	// ModeIncrement adds the event score to the member's score.
	ModeIncrement Mode = "increment"
	// ModeBest keeps the better of the current and the event score.
	ModeBest Mode = "best"
)

// Validation errors.
var (
	ErrMissingLeaderboard = errors.New("leaderboard is required")
	ErrMissingMember      = errors.New("member is required")
	ErrInvalidScore       = errors.New("score must be a finite number")
	ErrInvalidMode        = errors.New("mode must be one of set, increment, best")
)

// ScoreEvent is a score submission accepted by the ingestion pipeline.
type ScoreEvent struct {
	EventID     string          `json:"event_id"`    // idempotency key
	Leaderboard string          `json:"leaderboard"` // board name
	Member      string          `json:"member"`
	Score       float64         `json:"score"`
	Mode        Mode            `json:"mode,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"` // optional member payload
}

// Normalize fills defaults: a missing mode becomes ModeSet and a missing
// event id is generated.
func (e *ScoreEvent) Normalize() {
	e.Leaderboard = strings.TrimSpace(e.Leaderboard)
	e.Member = strings.TrimSpace(e.Member)
	e.Mode = Mode(strings.ToLower(strings.TrimSpace(string(e.Mode))))
	if e.Mode == "" {
		e.Mode = ModeSet
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
}

// Validate reports the first problem with e.
func (e ScoreEvent) Validate() error {
	switch {
	case e.Leaderboard == "":
		return ErrMissingLeaderboard
	case e.Member == "":
		return ErrMissingMember
	case math.IsNaN(e.Score) || math.IsInf(e.Score, 0):
		return ErrInvalidScore
	}
	switch e.Mode {
	case ModeSet, ModeIncrement, ModeBest:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, e.Mode)
	}
}

// Ack reports what happened to a submitted event.
type Ack struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}
