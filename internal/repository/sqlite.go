package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mini-rodalies-3d/tracker/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// SQLiteRouteRepository reads the route catalog from SQLite
type SQLiteRouteRepository struct {
	db *sql.DB
}

// NewSQLiteRouteRepository creates a new SQLite-backed route repository
func NewSQLiteRouteRepository(db *sql.DB) *SQLiteRouteRepository {
	return &SQLiteRouteRepository{db: db}
}

// parseTimeString converts a SQLite datetime or RFC3339 string to *time.Time.
// Returns nil if the input is nil, empty or unparseable.
func parseTimeString(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

const routeColumns = `route_id, agency_id, short_name, long_name, route_type, color, text_color, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRoute(row scanner) (models.Route, error) {
	var (
		r         models.Route
		updatedAt *string
	)
	if err := row.Scan(&r.RouteID, &r.AgencyID, &r.ShortName, &r.LongName, &r.Type, &r.Color, &r.TextColor, &updatedAt); err != nil {
		return r, err
	}
	r.UpdatedAt = parseTimeString(updatedAt)
	return r, nil
}

// ListRoutes returns the catalog ordered by route type and short name.
// A non-empty routeType filters by GTFS route_type.
func (r *SQLiteRouteRepository) ListRoutes(ctx context.Context, routeType *int) ([]models.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes`
	var args []any
	if routeType != nil {
		query += ` WHERE route_type = ?`
		args = append(args, *routeType)
	}
	query += ` ORDER BY route_type, length(short_name), short_name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []models.Route{}
	for rows.Next() {
		route, err := scanSQLiteRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route rows: %w", err)
	}
	return routes, nil
}

// GetRoute returns one catalog entry or ErrNotFound
func (r *SQLiteRouteRepository) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	if routeID == "" {
		return nil, errors.New("route_id cannot be empty")
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE route_id = ?`, routeID)
	route, err := scanSQLiteRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %s: %w", routeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route: %w", err)
	}
	return &route, nil
}
