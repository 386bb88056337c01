package tracking

import (
	"math"
	"time"

	"github.com/mini-rodalies-3d/tracker/internal/realtime/hfp"
)

const (
	// DefaultReferenceLatitude is central Helsinki
	DefaultReferenceLatitude = 60.17

	metersPerDegreeLat = 111320.0
)

// FallbackCoord is where inactive vehicles are drawn
var FallbackCoord = hfp.Coord{0, 0}

// Projection converts local east/north meters to degree deltas. It is a
// flat-earth approximation around one reference latitude.
type Projection struct {
	DegLonPerMeter float64
	DegLatPerMeter float64
}

// LocalProjection returns the projection around refLatDeg. cos(lat) is
// clamped so the longitude scale stays finite near the poles.
func LocalProjection(refLatDeg float64) Projection {
	cos := math.Cos(refLatDeg * math.Pi / 180)
	if cos < 1e-6 {
		cos = 1e-6
	}
	return Projection{
		DegLonPerMeter: 1 / (metersPerDegreeLat * cos),
		DegLatPerMeter: 1 / metersPerDegreeLat,
	}
}

// DisplayPosition is where a vehicle should be drawn at one instant
type DisplayPosition struct {
	VehicleID  VehicleID `json:"vehicleId" msgpack:"id"`
	RouteID    string    `json:"routeId" msgpack:"r"`
	Designator string    `json:"designator" msgpack:"d"`
	Coord      hfp.Coord `json:"coordinates" msgpack:"c"`
	Heading    float64   `json:"heading" msgpack:"h"`   // radians
	Freshness  float64   `json:"freshness" msgpack:"f"` // seconds since last ping
	Active     bool      `json:"active" msgpack:"a"`
}

// Estimator dead-reckons vehicles from their last confirmed state
type Estimator struct {
	proj Projection
}

// NewEstimator creates an estimator using proj
func NewEstimator(proj Projection) Estimator {
	return Estimator{proj: proj}
}

// Projection returns the projection used by Estimate
func (e Estimator) Projection() Projection { return e.proj }

// Estimate returns the display position of s at now. It is pure: the same
// inputs always give the same output and s is not modified.
func (e Estimator) Estimate(s VehicleState, now time.Time) DisplayPosition {
	pos := DisplayPosition{
		VehicleID:  s.ID,
		RouteID:    s.RouteID,
		Designator: s.Designator,
		Heading:    s.Heading,
		Freshness:  now.Sub(s.LastPing).Seconds(),
		Active:     s.Active,
	}
	if !s.Active {
		pos.Coord = FallbackCoord
		return pos
	}

	elapsed := max(0, now.Sub(s.LastUpdate).Seconds())
	speed := max(0, s.Speed)
	east := speed * math.Sin(s.Heading) * elapsed
	north := speed * math.Cos(s.Heading) * elapsed

	pos.Coord = hfp.Coord{
		s.Coord.Lon() + east*e.proj.DegLonPerMeter,
		s.Coord.Lat() + north*e.proj.DegLatPerMeter,
	}
	return pos
}
