package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minFrameInterval = time.Millisecond

// Config holds all configuration for the tracker service
type Config struct {
	// Database
	DatabasePath string
	DatabaseURL  string // optional Postgres route catalog

	// MQTT feed
	BrokerURL string
	ClientID  string

	// Route selection
	Routes     string // "HSL:1010=10,HSL:2550=550"
	RoutesFile string

	// Tracking
	PingDebounce      time.Duration
	FrameRate         int
	ReferenceLatitude float64
	RegistryWarnSize  int

	// Ingest statistics
	StatsInterval     time.Duration
	RetentionDuration time.Duration

	// Optional GTFS-RT source
	GTFSVehiclePositionsURL string
	PollInterval            time.Duration

	// Route catalog
	GTFSStaticURL     string
	CacheDir          string
	StaticRefreshDays int

	// HTTP
	HTTPPort    string
	CORSOrigins []string
	StreamRate  int
	StaticDir   string

	// Logging
	LogLevel string
	LogDir   string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		// Database
		DatabasePath: getEnv("SQLITE_DATABASE", "data/tracker.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		// MQTT feed
		BrokerURL: getEnv("MQTT_BROKER_URL", "wss://mqtt.hsl.fi:443/"),
		ClientID:  getEnv("MQTT_CLIENT_ID", ""),

		// Route selection
		Routes:     getEnv("ROUTES", ""),
		RoutesFile: getEnv("ROUTES_FILE", ""),

		// Tracking
		PingDebounce:      time.Duration(getEnvInt("PING_DEBOUNCE_MS", 1700)) * time.Millisecond,
		FrameRate:         getEnvInt("FRAME_RATE", 30),
		ReferenceLatitude: getEnvFloat("REFERENCE_LATITUDE", 60.17),
		RegistryWarnSize:  getEnvInt("REGISTRY_WARN_SIZE", 5000),

		// Ingest statistics
		StatsInterval:     getEnvDuration("STATS_INTERVAL", time.Minute),
		RetentionDuration: time.Duration(getEnvInt("RETENTION_HOURS", 24)) * time.Hour,

		// Optional GTFS-RT source
		GTFSVehiclePositionsURL: getEnv("GTFS_VEHICLE_POSITIONS_URL", ""),
		PollInterval:            time.Duration(getEnvInt("POLL_INTERVAL", 10)) * time.Second,

		// Route catalog
		GTFSStaticURL:     getEnv("GTFS_STATIC_URL", ""),
		CacheDir:          getEnv("CACHE_DIR", "data/cache"),
		StaticRefreshDays: getEnvInt("STATIC_REFRESH_DAYS", 7),

		// HTTP
		HTTPPort:    getEnv("HTTP_PORT", "8081"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		StreamRate:  getEnvInt("STREAM_RATE", 10),
		StaticDir:   getEnv("STATIC_DIR", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   getEnv("LOG_DIR", ""),
	}

	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.StreamRate <= 0 {
		cfg.StreamRate = 1
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.RetentionDuration <= 0 {
		cfg.RetentionDuration = 24 * time.Hour
	}

	return cfg
}

// FrameInterval is the render tick period derived from FrameRate, never
// shorter than minFrameInterval
func (c *Config) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return time.Second / 30
	}
	return max(time.Second/time.Duration(c.FrameRate), minFrameInterval)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
