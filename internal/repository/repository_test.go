package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/log"
)

func seededSQLite(t *testing.T) *SQLiteRouteRepository {
	t.Helper()
	ctx := context.Background()

	database, err := db.Connect(filepath.Join(t.TempDir(), "tracker.db"), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureSchema(ctx))

	_, err = database.UpsertRoutes(ctx, []db.Route{
		{RouteID: "HSL:2550", AgencyID: "HSL", ShortName: "550", LongName: "Itäkeskus - Westendinasema", Type: 3, Color: "007AC9"},
		{RouteID: "HSL:1010", AgencyID: "HSL", ShortName: "10", LongName: "Kirurgi - Pikku Huopalahti", Type: 0},
		{RouteID: "HSL:1004", AgencyID: "HSL", ShortName: "4", LongName: "Katajanokka - Munkkiniemi", Type: 0},
	})
	require.NoError(t, err)

	return NewSQLiteRouteRepository(database.Conn())
}

func TestSQLiteRouteRepository_ListRoutes(t *testing.T) {
	repo := seededSQLite(t)

	routes, err := repo.ListRoutes(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, routes, 3)

	assert.Equal(t, "HSL:1004", routes[0].RouteID)
	assert.Equal(t, "HSL:1010", routes[1].RouteID)
	assert.Equal(t, "HSL:2550", routes[2].RouteID)
	require.NotNil(t, routes[2].Color)
	assert.Equal(t, "007AC9", *routes[2].Color)
	assert.Nil(t, routes[0].Color)
	assert.NotNil(t, routes[0].UpdatedAt)

	bus := 3
	routes, err = repo.ListRoutes(context.Background(), &bus)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "550", routes[0].ShortName)
}

func TestSQLiteRouteRepository_GetRoute(t *testing.T) {
	repo := seededSQLite(t)

	route, err := repo.GetRoute(context.Background(), "HSL:1010")
	require.NoError(t, err)
	assert.Equal(t, "10", route.ShortName)
	require.NotNil(t, route.AgencyID)
	assert.Equal(t, "HSL", *route.AgencyID)

	_, err = repo.GetRoute(context.Background(), "HSL:9999")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.GetRoute(context.Background(), "")
	assert.Error(t, err)
}

func TestPostgresRouteRepository(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	repo, err := NewPostgresRouteRepository(ctx, url)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Ping(ctx))
	routes, err := repo.ListRoutes(ctx, nil)
	require.NoError(t, err)

	if len(routes) > 0 {
		route, err := repo.GetRoute(ctx, routes[0].RouteID)
		require.NoError(t, err)
		assert.Equal(t, routes[0].RouteID, route.RouteID)
	}
	_, err = repo.GetRoute(ctx, "no-such-route")
	assert.ErrorIs(t, err, ErrNotFound)
}
