package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env
	for _, k := range []string{"PING_DEBOUNCE_MS", "FRAME_RATE", "REFERENCE_LATITUDE", "MQTT_BROKER_URL", "CACHE_DIR", "STATIC_REFRESH_DAYS", "GTFS_STATIC_URL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, 1700*time.Millisecond, cfg.PingDebounce)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.InDelta(t, 60.17, cfg.ReferenceLatitude, 1e-9)
	assert.Equal(t, "wss://mqtt.hsl.fi:443/", cfg.BrokerURL)
	assert.Equal(t, time.Second/30, cfg.FrameInterval())
	assert.Equal(t, "data/cache", cfg.CacheDir)
	assert.Equal(t, 7, cfg.StaticRefreshDays)
	assert.Empty(t, cfg.GTFSStaticURL, "catalog refresh is opt-in")
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PING_DEBOUNCE_MS", "500")
	t.Setenv("FRAME_RATE", "-3")
	t.Setenv("STATS_INTERVAL", "15s")
	t.Setenv("CORS_ORIGINS", "http://a, http://b ,")

	cfg := Load()
	assert.Equal(t, 500*time.Millisecond, cfg.PingDebounce)
	assert.Equal(t, 30, cfg.FrameRate, "non-positive frame rate falls back")
	assert.Equal(t, 15*time.Second, cfg.StatsInterval)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CORSOrigins)
}

func TestLoad_ClampsIntervals(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STATS_INTERVAL", "0s")
	t.Setenv("POLL_INTERVAL", "0")
	t.Setenv("RETENTION_HOURS", "-1")
	t.Setenv("FRAME_RATE", "2000000000")

	cfg := Load()
	assert.Equal(t, time.Minute, cfg.StatsInterval)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.RetentionDuration)
	assert.Equal(t, time.Millisecond, cfg.FrameInterval(), "frame interval is floored")

	assert.Equal(t, time.Second/30, (&Config{}).FrameInterval())
	assert.Equal(t, 100*time.Millisecond, (&Config{FrameRate: 10}).FrameInterval())
}

func TestParseRoutes(t *testing.T) {
	tests := []struct {
		in      string
		want    []Route
		wantErr bool
	}{
		{"", nil, false},
		{"HSL:1010=10", []Route{{RouteID: "HSL:1010", ShortName: "10"}}, false},
		{"HSL:1010=10, HSL:2550", []Route{{RouteID: "HSL:1010", ShortName: "10"}, {RouteID: "HSL:2550"}}, false},
		{"1010", []Route{{RouteID: "1010"}}, false},
		{"=10", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRoutes(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadRoutesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
routes:
  - routeId: "HSL:1010"
    shortName: "10"
  - routeId: "HSL:4560"
`), 0o644))

	routes, err := LoadRoutesFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Route{{RouteID: "HSL:1010", ShortName: "10"}, {RouteID: "HSL:4560"}}, routes)

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("routes:\n  - shortName: x\n"), 0o644))
	_, err = LoadRoutesFile(bad)
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
