// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/ladder/internal/domain/model"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	// Submit validates, deduplicates and queues an event.
	Submit(ctx context.Context, e model.ScoreEvent) (model.Ack, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req model.ScoreEvent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ack, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if ack.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: ack.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ack.EventID})
}
