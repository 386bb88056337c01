package models

import "time"

// Health is the JSON body of GET /health
type Health struct {
	Status      string `json:"status"` // "healthy", "degraded", "unhealthy", "unknown"
	HealthScore int    `json:"healthScore"`
	Database    string `json:"database"` // "ok" or the ping error

	SessionID     string    `json:"sessionId"`
	StartedAt     time.Time `json:"startedAt"`
	UptimeSeconds int64     `json:"uptimeSeconds"`

	Routes       int    `json:"routes"`
	Vehicles     int    `json:"vehicles"`
	Active       int    `json:"active"`
	Messages     int64  `json:"messages"`
	DecodeErrors int64  `json:"decodeErrors"`
	Unresolved   int64  `json:"unresolved"`
	Frames       uint64 `json:"frames"`

	PingIntervalMean   float64 `json:"pingIntervalMean"`
	PingIntervalStdDev float64 `json:"pingIntervalStdDev"`

	LastRecordedAt *time.Time `json:"lastRecordedAt,omitempty"`
}
