package tracking

import (
	"math"
	"strconv"
	"time"

	"github.com/mini-rodalies-3d/tracker/internal/realtime/hfp"
)

// DefaultPingDebounce is the minimum spacing between two LastPing updates
// of the same vehicle.
const DefaultPingDebounce = 1700 * time.Millisecond

// VehicleID identifies a vehicle within a route: "<routeID>/<vehicle>"
type VehicleID string

// NewVehicleID builds the id of a vehicle within a route
func NewVehicleID(routeID string, vehicleNumber int) VehicleID {
	return VehicleID(routeID + "/" + strconv.Itoa(vehicleNumber))
}

// VehicleState is the last confirmed state of a vehicle. Coord is the
// position from the last located ping; extrapolated positions are never
// written back.
type VehicleState struct {
	ID            VehicleID
	RouteID       string
	Designator    string
	VehicleNumber int

	Coord        hfp.Coord
	Speed        float64 // m/s
	Acceleration float64 // m/s²
	Heading      float64 // radians, clockwise from north

	LastUpdate time.Time // last located ping
	LastPing   time.Time // debounced, drives freshness
	Active     bool
}

// Outcome reports what Apply did with a ping
type Outcome int

const (
	Ignored     Outcome = iota // offline ping for an unknown vehicle
	Created                    // first located ping of a vehicle
	Updated                    // located ping for a known vehicle
	Deactivated                // offline ping for a known vehicle
)

// String returns the outcome name used in logs
func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deactivated:
		return "deactivated"
	default:
		return "ignored"
	}
}

// Registry is the set of tracked vehicles. Vehicles are never removed; the
// iteration order is first-seen and only grows. A Registry is not safe for
// concurrent use.
type Registry struct {
	debounce time.Duration
	states   map[VehicleID]*VehicleState
	order    []VehicleID
}

// NewRegistry creates an empty registry. A non-positive debounce uses DefaultPingDebounce.
func NewRegistry(debounce time.Duration) *Registry {
	if debounce <= 0 {
		debounce = DefaultPingDebounce
	}
	return &Registry{
		debounce: debounce,
		states:   make(map[VehicleID]*VehicleState),
	}
}

// Apply folds a ping for the resolved routeID into the registry at time now
func (r *Registry) Apply(p hfp.Ping, routeID string, now time.Time) Outcome {
	id := NewVehicleID(routeID, p.VehicleNumber)
	s, known := r.states[id]

	if p.Offline() {
		if !known {
			return Ignored
		}
		s.Active = false
		return Deactivated
	}

	outcome := Updated
	if !known {
		r.order = append(r.order, id)
		s = &VehicleState{ID: id, RouteID: routeID, VehicleNumber: p.VehicleNumber}
		r.states[id] = s
		outcome = Created
	}

	s.Designator = p.Designator
	s.Coord = p.Location.Coord
	s.Speed = p.SpeedKmh / 3.6
	s.Acceleration = p.Acceleration
	s.Heading = p.HeadingDeg / 360 * 2 * math.Pi
	s.LastUpdate = now
	s.Active = true
	if outcome == Created || now.Sub(s.LastPing) >= r.debounce {
		s.LastPing = now
	}

	return outcome
}

// Get returns a copy of the state for id
func (r *Registry) Get(id VehicleID) (VehicleState, bool) {
	s, ok := r.states[id]
	if !ok {
		return VehicleState{}, false
	}
	return *s, true
}

// Len is the number of distinct vehicles seen
func (r *Registry) Len() int { return len(r.order) }

// Order returns a copy of the iteration order
func (r *Registry) Order() []VehicleID {
	return append([]VehicleID(nil), r.order...)
}

// Each calls fn for every vehicle in iteration order
func (r *Registry) Each(fn func(VehicleState)) {
	for _, id := range r.order {
		fn(*r.states[id])
	}
}

// DeactivateExcept marks inactive every active vehicle whose route is not
// in keep and returns how many were changed. Positions are left as they are.
func (r *Registry) DeactivateExcept(keep map[string]struct{}) int {
	n := 0
	for _, id := range r.order {
		s := r.states[id]
		if _, ok := keep[s.RouteID]; ok || !s.Active {
			continue
		}
		s.Active = false
		n++
	}
	return n
}

// ActiveCount counts vehicles whose last ping was located
func (r *Registry) ActiveCount() int {
	n := 0
	for _, s := range r.states {
		if s.Active {
			n++
		}
	}
	return n
}
