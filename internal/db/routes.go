package db

import (
	"context"
	"fmt"
	"time"
)

// Route is one row of the route catalog
type Route struct {
	RouteID   string
	AgencyID  string
	ShortName string
	LongName  string
	Type      int
	Color     string
	TextColor string
}

// SelectedRoute is one entry of the persisted route selection
type SelectedRoute struct {
	RouteID   string
	ShortName string
}

// UpsertRoutes inserts or updates catalog rows and returns how many were written
func (db *DB) UpsertRoutes(ctx context.Context, routes []Route) (int, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO routes (route_id, agency_id, short_name, long_name, route_type, color, text_color, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (route_id) DO UPDATE SET
			agency_id = excluded.agency_id,
			short_name = excluded.short_name,
			long_name = excluded.long_name,
			route_type = excluded.route_type,
			color = excluded.color,
			text_color = excluded.text_color,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare route upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx,
			r.RouteID, nullIfEmpty(r.AgencyID), r.ShortName, r.LongName, r.Type,
			nullIfEmpty(r.Color), nullIfEmpty(r.TextColor),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert route %s: %w", r.RouteID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit routes: %w", err)
	}
	return len(routes), nil
}

// LoadSelection returns the persisted route selection in display order
func (db *DB) LoadSelection(ctx context.Context) ([]SelectedRoute, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT route_id, short_name FROM route_selection ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query route selection: %w", err)
	}
	defer rows.Close()

	var sel []SelectedRoute
	for rows.Next() {
		var s SelectedRoute
		if err := rows.Scan(&s.RouteID, &s.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan route selection: %w", err)
		}
		sel = append(sel, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route selection: %w", err)
	}
	return sel, nil
}

// SaveSelection replaces the persisted route selection. A selected route
// without a short name takes the catalog's, when the catalog has it.
func (db *DB) SaveSelection(ctx context.Context, sel []SelectedRoute) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM route_selection"); err != nil {
		return fmt.Errorf("failed to clear route selection: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, s := range sel {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO route_selection (route_id, short_name, position, selected_at_utc)
			VALUES (?, COALESCE(NULLIF(?, ''), (SELECT short_name FROM routes WHERE route_id = ?), ''), ?, ?)
			ON CONFLICT (route_id) DO NOTHING
		`, s.RouteID, s.ShortName, s.RouteID, i, now); err != nil {
			return fmt.Errorf("failed to insert selected route %s: %w", s.RouteID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit route selection: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
