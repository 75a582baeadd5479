// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/leaderboard"
	"github.com/okian/ladder/pkg/metrics"
)

const defaultMaxPageSize = 1000

// Board is the leaderboard shape served over HTTP.
type Board = leaderboard.Board[string, float64, json.RawMessage]

// Record is one ranked entry as rendered in responses.
type Record = leaderboard.Record[string, float64, json.RawMessage]

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	BoardProvider
	StatsProvider

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// BoardProvider resolves a leaderboard by name.
type BoardProvider interface {
	Board(name string) (Board, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
	memberHandler      *MemberHandler
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxPageSize int
}

// WithMaxPageSize caps the page_size query parameter.
func WithMaxPageSize(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxPageSize = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	cfg := serverConfig{maxPageSize: defaultMaxPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := queryParser{maxPageSize: cfg.maxPageSize}
	return &Server{
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		eventsHandler:      NewEventsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, q),
		memberHandler:      NewMemberHandler(deps, q),
	}
}

// Routes returns the router serving every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/events", s.eventsHandler.HandlePostEvent)

	r.Route("/leaderboards/{name}", func(r chi.Router) {
		lh := s.leaderboardHandler
		r.Get("/", lh.HandleMembers)
		r.Delete("/", lh.HandleDelete)
		r.Get("/ranks", lh.HandleRankRange)
		r.Get("/scores", lh.HandleScoreRange)
		r.Delete("/scores", lh.HandleRemoveScoreRange)
		r.Get("/positions/{position}", lh.HandlePosition)
		r.Post("/ranked-list", lh.HandleRankedList)
		r.Post("/merge", lh.HandleMerge)
		r.Post("/intersect", lh.HandleIntersect)
		r.Post("/expire", lh.HandleExpire)
		r.Post("/trim", lh.HandleTrim)

		r.Route("/members/{member}", func(r chi.Router) {
			mh := s.memberHandler
			r.Get("/", mh.HandleGet)
			r.Put("/", mh.HandlePut)
			r.Delete("/", mh.HandleDelete)
			r.Post("/score", mh.HandleChangeScore)
			r.Get("/around", mh.HandleAround)
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status and code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrMissingLeaderboard),
		errors.Is(err, model.ErrMissingMember),
		errors.Is(err, model.ErrInvalidScore),
		errors.Is(err, model.ErrInvalidMode),
		errors.Is(err, repository.ErrInvalidScore),
		errors.Is(err, repository.ErrInvalidAggregate),
		errors.Is(err, repository.ErrNoKeys),
		errors.Is(err, leaderboard.ErrInvalidSortBy),
		errors.Is(err, leaderboard.ErrEncodeData):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, queue.ErrClosed),
		errors.Is(err, repository.ErrStore),
		errors.Is(err, repository.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
