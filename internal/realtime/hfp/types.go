package hfp

import "time"

// Coord is a [lon, lat] pair in degrees
type Coord [2]float64

// Lon is the longitude in degrees
func (c Coord) Lon() float64 { return c[0] }

// Lat is the latitude in degrees
func (c Coord) Lat() float64 { return c[1] }

// LocationKind tags whether a ping carried a position
type LocationKind int

const (
	Offline LocationKind = iota
	Located
)

// String returns "offline" or "located"
func (k LocationKind) String() string {
	if k == Located {
		return "located"
	}
	return "offline"
}

// Location is the position part of a ping. Coord is meaningful only when
// Kind is Located; an Offline location is an explicit "no fix" signal.
type Location struct {
	Kind  LocationKind
	Coord Coord
}

// At returns a located Location
func At(lon, lat float64) Location {
	return Location{Kind: Located, Coord: Coord{lon, lat}}
}

// Ping is one decoded vehicle position report
type Ping struct {
	VehicleNumber int
	Designator    string // route designator as shown to riders, e.g. "550"
	Direction     string
	Operator      int
	Journey       int
	Line          int
	OperatingDay  string
	Start         string

	HeadingDeg   float64
	SpeedKmh     float64
	Acceleration float64

	Location Location

	ReportedAt time.Time // tst
	ReportUnix int64     // tsi

	Delay      *int
	DoorStatus *int
	Odometer   *float64
}

// Offline reports whether the ping carries no position
func (p Ping) Offline() bool { return p.Location.Kind == Offline }
