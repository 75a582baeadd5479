package api

import (
	"net/http"
)

// StatsProvider reports pipeline counters for GET /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves the ingestion pipeline snapshot.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests. The snapshot is live, so it is
// never cached.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}
