package db

import (
	"context"
	"fmt"
	"time"
)

// Cleanup deletes ingest statistics older than retention
func (db *DB) Cleanup(ctx context.Context, retention time.Duration) error {
	hours := int(retention.Hours())
	if hours < 1 {
		hours = 1
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.conn.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM rt_ingest_stats WHERE datetime(recorded_at_utc) < datetime('now', '-%d hours')", hours))
	if err != nil {
		return fmt.Errorf("failed to cleanup ingest stats: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		db.lg.Info("Cleanup: deleted old ingest stats", "rows", rows, "older_than_hours", hours)
	}
	return nil
}
