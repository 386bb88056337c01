package models

import "time"

// VehiclePosition is a dead-reckoned vehicle position in API form
type VehiclePosition struct {
	VehicleID  string  `json:"vehicleId"`
	RouteID    string  `json:"routeId"`
	Designator string  `json:"designator"`
	Longitude  float64 `json:"longitude"`
	Latitude   float64 `json:"latitude"`
	Bearing    float64 `json:"bearing"`          // degrees, clockwise from north
	Freshness  float64 `json:"freshnessSeconds"` // since the last confirmed ping
	Active     bool    `json:"active"`
}

// PositionsResponse is the JSON body of GET /api/vehicles/positions
type PositionsResponse struct {
	Positions []VehiclePosition `json:"positions"`
	Count     int               `json:"count"`
	Seq       uint64            `json:"seq"`
	At        time.Time         `json:"at"`
}
