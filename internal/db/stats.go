package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IngestStats is one persisted sample of a session's ingest counters
type IngestStats struct {
	StatsID        string
	SessionID      string
	RecordedAt     time.Time
	Messages       int64
	DecodeErrors   int64
	Unresolved     int64
	Created        int64
	Updated        int64
	Deactivated    int64
	Ignored        int64
	Vehicles       int
	Active         int
	Frames         uint64
	IntervalMean   float64
	IntervalStdDev float64
	IntervalCount  int
}

// RecordIngestStats stores a sample and returns its generated id
func (db *DB) RecordIngestStats(ctx context.Context, s IngestStats) (string, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	id := uuid.New().String()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO rt_ingest_stats (
			stats_id, session_id, recorded_at_utc, messages, decode_errors, unresolved,
			created, updated, deactivated, ignored, vehicles, active, frames,
			interval_mean, interval_stddev, interval_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, s.SessionID, s.RecordedAt.UTC().Format(time.RFC3339), s.Messages, s.DecodeErrors, s.Unresolved,
		s.Created, s.Updated, s.Deactivated, s.Ignored, s.Vehicles, s.Active, int64(s.Frames),
		s.IntervalMean, s.IntervalStdDev, s.IntervalCount,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record ingest stats: %w", err)
	}
	return id, nil
}

// LatestIngestStats returns the most recent sample, or nil when none exist
func (db *DB) LatestIngestStats(ctx context.Context) (*IngestStats, error) {
	var (
		s          IngestStats
		recordedAt string
		frames     int64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT stats_id, session_id, recorded_at_utc, messages, decode_errors, unresolved,
			created, updated, deactivated, ignored, vehicles, active, frames,
			interval_mean, interval_stddev, interval_count
		FROM rt_ingest_stats
		ORDER BY recorded_at_utc DESC, rowid DESC
		LIMIT 1
	`).Scan(
		&s.StatsID, &s.SessionID, &recordedAt, &s.Messages, &s.DecodeErrors, &s.Unresolved,
		&s.Created, &s.Updated, &s.Deactivated, &s.Ignored, &s.Vehicles, &s.Active, &frames,
		&s.IntervalMean, &s.IntervalStdDev, &s.IntervalCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest stats: %w", err)
	}

	s.Frames = uint64(frames)
	if s.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at_utc: %w", err)
	}
	return &s, nil
}
