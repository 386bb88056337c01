package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/handlers"
	"github.com/mini-rodalies-3d/tracker/internal/log"
	"github.com/mini-rodalies-3d/tracker/internal/models"
	"github.com/mini-rodalies-3d/tracker/internal/repository"
	"github.com/mini-rodalies-3d/tracker/internal/stream"
	"github.com/mini-rodalies-3d/tracker/internal/tracking"
)

// loopback records subscriptions and lets the test inject messages
type loopback struct {
	mu     sync.Mutex
	handle func(topic string, payload []byte)
	topics map[string]bool
}

func (l *loopback) Connect(_ context.Context, handle func(string, []byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handle = handle
	l.topics = map[string]bool{}
	return nil
}

func (l *loopback) Subscribe(topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.topics[topic] = true
	return nil
}

func (l *loopback) Unsubscribe(topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.topics, topic)
	return nil
}

func (l *loopback) Close() error { return nil }

func (l *loopback) send(topic string, payload []byte) {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()
	h(topic, payload)
}

type fixture struct {
	srv       *httptest.Server
	engine    *tracking.Engine
	transport *loopback
	hub       *stream.Hub
	now       time.Time
}

func newFixture(t *testing.T, staticDir string) *fixture {
	t.Helper()
	ctx := context.Background()
	lg := log.Discard()

	database, err := db.Connect(filepath.Join(t.TempDir(), "tracker.db"), lg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureSchema(ctx))
	_, err = database.UpsertRoutes(ctx, []db.Route{
		{RouteID: "HSL:1010", AgencyID: "HSL", ShortName: "10", LongName: "Kirurgi - Pikku Huopalahti", Type: 0},
		{RouteID: "HSL:2550", AgencyID: "HSL", ShortName: "550", LongName: "Itäkeskus - Westendinasema", Type: 3},
	})
	require.NoError(t, err)

	f := &fixture{transport: &loopback{}, now: time.Date(2024, 5, 14, 8, 0, 0, 0, time.UTC)}
	f.engine = tracking.New(f.transport, tracking.Options{
		PingDebounce: tracking.DefaultPingDebounce,
		Logger:       lg,
		Now:          func() time.Time { return f.now },
	})
	require.NoError(t, f.engine.Start(ctx))
	t.Cleanup(func() { f.engine.Stop() })

	f.hub = stream.NewHub(0, lg)
	t.Cleanup(f.hub.Close)

	router := NewRouter(Deps{
		Routes:    handlers.NewRouteHandler(repository.NewSQLiteRouteRepository(database.Conn()), database, f.engine),
		Positions: handlers.NewPositionHandler(f.hub, f.engine),
		Health:    handlers.NewHealthHandler(f.engine, database),
		Stream:    f.hub,
		StaticDir: staticDir,
		Logger:    lg,
	})
	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_Liveness(t *testing.T) {
	f := newFixture(t, "")

	resp := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_SelectionIsNotARouteID(t *testing.T) {
	f := newFixture(t, "")

	resp := f.do(t, http.MethodGet, "/api/routes/selection", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sel models.RouteSelection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sel))
	assert.Empty(t, sel.Routes)

	resp = f.do(t, http.MethodGet, "/api/routes/HSL:2550", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var route models.Route
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&route))
	assert.Equal(t, "550", route.ShortName)

	resp = f.do(t, http.MethodGet, "/api/routes/HSL:9999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_SelectTrackAndServe(t *testing.T) {
	f := newFixture(t, "")

	resp := f.do(t, http.MethodGet, "/api/vehicles/positions", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "no frame yet")

	resp = f.do(t, http.MethodPut, "/api/routes/selection", `{"routes":[{"routeId":"HSL:1010"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sel models.RouteSelection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sel))
	require.Len(t, sel.Routes, 1)
	assert.Equal(t, "10", sel.Routes[0].ShortName, "short name comes from the catalog")
	assert.Equal(t, []tracking.RouteSelector{{RouteID: "HSL:1010", ShortName: "10"}}, f.engine.Selection())

	f.transport.send("/hfp/v1/journey/ongoing/vp/tram/0040/00042/1010/1/Pikku Huopalahti/10:00/1301105/4/60;24/19/58/67",
		[]byte(`{"VP":{"desi":"10","dir":"1","oper":40,"veh":42,"tst":"2024-05-14T08:00:00.000Z","tsi":1715673600,"spd":10,"hdg":90,"lat":60.1699,"long":24.9384,"acc":0,"dl":0,"odo":0,"drst":0,"oday":"2024-05-14","jrn":1,"line":1,"start":"10:00"}}`))

	f.hub.Publish(f.engine.Tick(f.now.Add(2 * time.Second)))

	resp = f.do(t, http.MethodGet, "/api/vehicles/positions?active=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var positions models.PositionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&positions))
	require.Equal(t, 1, positions.Count)
	p := positions.Positions[0]
	assert.Equal(t, "HSL:1010/42", p.VehicleID)
	assert.Greater(t, p.Longitude, 24.9384, "heading east moves the vehicle east")
	assert.InDelta(t, 60.1699, p.Latitude, 1e-9)
	assert.InDelta(t, 2.0, p.Freshness, 1e-9)

	resp = f.do(t, http.MethodGet, "/api/vehicles/HSL:1010/42", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/vehicles/HSL:1010/43", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_RejectsBadSelection(t *testing.T) {
	f := newFixture(t, "")

	resp := f.do(t, http.MethodPut, "/api/routes/selection", `{"routes":[{"shortName":"10"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/routes/selection", `{"routes":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, f.engine.Selection())
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newFixture(t, "")

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/routes/selection", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouter_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>map</html>"), 0644))
	f := newFixture(t, dir)

	resp := f.do(t, http.MethodGet, "/index.html", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// API routes still win over the file server
	resp = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
