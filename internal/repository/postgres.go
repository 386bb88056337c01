package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mini-rodalies-3d/tracker/internal/models"
)

// PostgresRouteRepository reads a shared route catalog from Postgres. The
// table mirrors the SQLite one, with updated_at as timestamptz.
type PostgresRouteRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRouteRepository creates a new Postgres route repository with a connection pool
func NewPostgresRouteRepository(ctx context.Context, databaseURL string) (*PostgresRouteRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRouteRepository{pool: pool}, nil
}

// Close closes the connection pool
func (r *PostgresRouteRepository) Close() {
	r.pool.Close()
}

// Ping checks the connection, used by health checks
func (r *PostgresRouteRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListRoutes returns the route catalog, optionally filtered by route type
func (r *PostgresRouteRepository) ListRoutes(ctx context.Context, routeType *int) ([]models.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes`
	var args []any
	if routeType != nil {
		query += ` WHERE route_type = $1`
		args = append(args, *routeType)
	}
	query += ` ORDER BY route_type, length(short_name), short_name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []models.Route{}
	for rows.Next() {
		var route models.Route
		if err := rows.Scan(
			&route.RouteID, &route.AgencyID, &route.ShortName, &route.LongName, &route.Type,
			&route.Color, &route.TextColor, &route.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route rows: %w", err)
	}
	return routes, nil
}

// GetRoute returns one route or ErrNotFound
func (r *PostgresRouteRepository) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	if routeID == "" {
		return nil, errors.New("route_id cannot be empty")
	}

	var route models.Route
	err := r.pool.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE route_id = $1`, routeID).Scan(
		&route.RouteID, &route.AgencyID, &route.ShortName, &route.LongName, &route.Type,
		&route.Color, &route.TextColor, &route.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("route %s: %w", routeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route: %w", err)
	}
	return &route, nil
}
