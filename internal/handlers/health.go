package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/metrics"
	"github.com/mini-rodalies-3d/tracker/internal/models"
	"github.com/mini-rodalies-3d/tracker/internal/tracking"
)

// StatsSource exposes the running session counters
type StatsSource interface {
	Stats() tracking.Stats
	Selection() []tracking.RouteSelector
}

// StatsStore reads persisted ingest samples and checks the database
type StatsStore interface {
	Ping(ctx context.Context) error
	LatestIngestStats(ctx context.Context) (*db.IngestStats, error)
}

// HealthHandler reports on the tracking session and its storage
type HealthHandler struct {
	engine StatsSource
	store  StatsStore
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(engine StatsSource, store StatsStore) *HealthHandler {
	return &HealthHandler{engine: engine, store: store}
}

// IngestSample converts session counters to their persisted form
func IngestSample(s tracking.Stats, at time.Time) db.IngestStats {
	return db.IngestStats{
		SessionID:      s.SessionID.String(),
		RecordedAt:     at,
		Messages:       s.Messages,
		DecodeErrors:   s.DecodeErrors,
		Unresolved:     s.Unresolved,
		Created:        s.Created,
		Updated:        s.Updated,
		Deactivated:    s.Deactivated,
		Ignored:        s.Ignored,
		Vehicles:       s.Vehicles,
		Active:         s.Active,
		Frames:         s.Frames,
		IntervalMean:   s.IntervalMean,
		IntervalStdDev: s.IntervalStdDev,
		IntervalCount:  s.IntervalCount,
	}
}

// GetHealth handles GET /health
// Returns 503 when the database is unreachable, 200 otherwise
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	stats := h.engine.Stats()
	score, status := metrics.Health(IngestSample(stats, now))

	response := models.Health{
		Status:             status,
		HealthScore:        score,
		Database:           "ok",
		SessionID:          stats.SessionID.String(),
		StartedAt:          stats.StartedAt.UTC(),
		UptimeSeconds:      int64(now.Sub(stats.StartedAt).Seconds()),
		Routes:             len(h.engine.Selection()),
		Vehicles:           stats.Vehicles,
		Active:             stats.Active,
		Messages:           stats.Messages,
		DecodeErrors:       stats.DecodeErrors,
		Unresolved:         stats.Unresolved,
		Frames:             stats.Frames,
		PingIntervalMean:   stats.IntervalMean,
		PingIntervalStdDev: stats.IntervalStdDev,
	}

	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		response.Database = err.Error()
		response.Status = "unhealthy"
		response.HealthScore = 0
		code = http.StatusServiceUnavailable
	} else if latest, err := h.store.LatestIngestStats(ctx); err == nil && latest != nil {
		at := latest.RecordedAt.UTC()
		response.LastRecordedAt = &at
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// Liveness handles GET /healthz
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
