package metrics

import (
	"context"
	"time"

	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/log"
)

const cleanupEvery = time.Hour

// StatsStore persists ingest samples
type StatsStore interface {
	RecordIngestStats(ctx context.Context, s db.IngestStats) (string, error)
	Cleanup(ctx context.Context, retention time.Duration) error
}

// Recorder samples the tracking session at a fixed interval and stores the
// counters, pruning samples older than the retention window.
type Recorder struct {
	store     StatsStore
	sample    func() db.IngestStats
	interval  time.Duration
	retention time.Duration
	lg        *log.Logger

	lastCleanup time.Time
}

// NewRecorder creates a recorder sampling every interval. A non-positive
// interval falls back to one minute.
func NewRecorder(store StatsStore, sample func() db.IngestStats, interval, retention time.Duration, lg *log.Logger) *Recorder {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Recorder{
		store:     store,
		sample:    sample,
		interval:  interval,
		retention: retention,
		lg:        lg,
	}
}

// Run records until ctx is done. A final sample is written on the way out
// so short sessions leave a trace.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is gone; give the last write a moment of its own
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.Record(final)
			cancel()
			return nil
		case <-ticker.C:
			r.Record(ctx)
		}
	}
}

// Record writes one sample and runs cleanup when it is due. Failures are
// logged; the next tick tries again.
func (r *Recorder) Record(ctx context.Context) {
	s := r.sample()
	if _, err := r.store.RecordIngestStats(ctx, s); err != nil {
		r.lg.Warn("Failed to record ingest stats", "error", err)
		return
	}
	r.lg.Debug("Ingest stats recorded", "messages", s.Messages, "vehicles", s.Vehicles, "active", s.Active)

	if time.Since(r.lastCleanup) < cleanupEvery {
		return
	}
	if err := r.store.Cleanup(ctx, r.retention); err != nil {
		r.lg.Warn("Ingest stats cleanup failed", "error", err)
		return
	}
	r.lastCleanup = time.Now()
}

// Health grades a session from its counters: unhealthy when no vehicle is
// active, degraded when more than a tenth of messages fail to decode.
func Health(s db.IngestStats) (score int, status string) {
	switch {
	case s.Messages == 0 && s.Vehicles == 0:
		return 0, "unknown"
	case s.Active == 0:
		return 0, "unhealthy"
	case s.Messages > 0 && s.DecodeErrors*10 > s.Messages:
		return 50, "degraded"
	default:
		return 100, "healthy"
	}
}
