package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mini-rodalies-3d/tracker/internal/models"
	"github.com/mini-rodalies-3d/tracker/internal/tracking"
)

// SnapshotSource exposes the most recent render frame
type SnapshotSource interface {
	Latest() (tracking.Snapshot, bool)
}

// VehicleSource looks up the last confirmed state of a vehicle
type VehicleSource interface {
	Vehicle(id tracking.VehicleID) (tracking.VehicleState, bool)
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PositionHandler serves dead-reckoned vehicle positions
type PositionHandler struct {
	snapshots SnapshotSource
	vehicles  VehicleSource
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(snapshots SnapshotSource, vehicles VehicleSource) *PositionHandler {
	return &PositionHandler{snapshots: snapshots, vehicles: vehicles}
}

// VehicleResponse is the JSON body of GET /api/vehicles/{routeId}/{vehicle}
type VehicleResponse struct {
	VehicleID     string    `json:"vehicleId"`
	RouteID       string    `json:"routeId"`
	Designator    string    `json:"designator"`
	Longitude     float64   `json:"longitude"`
	Latitude      float64   `json:"latitude"`
	SpeedMps      float64   `json:"speedMps"`
	Bearing       float64   `json:"bearing"`
	Acceleration  float64   `json:"acceleration"`
	Active        bool      `json:"active"`
	LastUpdateUTC time.Time `json:"lastUpdateUtc"`
	LastPingUTC   time.Time `json:"lastPingUtc"`
}

func toDegrees(rad float64) float64 {
	return math.Mod(rad*180/math.Pi+360, 360)
}

// ToPositions converts a snapshot to its API form
func ToPositions(snap tracking.Snapshot) models.PositionsResponse {
	positions := make([]models.VehiclePosition, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		positions = append(positions, models.VehiclePosition{
			VehicleID:  string(p.VehicleID),
			RouteID:    p.RouteID,
			Designator: p.Designator,
			Longitude:  p.Coord.Lon(),
			Latitude:   p.Coord.Lat(),
			Bearing:    toDegrees(p.Heading),
			Freshness:  p.Freshness,
			Active:     p.Active,
		})
	}
	return models.PositionsResponse{
		Positions: positions,
		Count:     len(positions),
		Seq:       snap.Seq,
		At:        snap.At.UTC(),
	}
}

// GetPositions handles GET /api/vehicles/positions
// Returns the latest frame; inactive vehicles are included unless
// active=true is passed.
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshots.Latest()
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "No frame rendered yet",
		})
		return
	}

	response := ToPositions(snap)
	if activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active")); activeOnly {
		filtered := response.Positions[:0]
		for _, p := range response.Positions {
			if p.Active {
				filtered = append(filtered, p)
			}
		}
		response.Positions = filtered
		response.Count = len(filtered)
	}

	// frames change many times a second
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// GetVehicle handles GET /api/vehicles/{routeId}/{vehicle}
// Returns the last confirmed (not extrapolated) state of one vehicle
func (h *PositionHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	number, err := strconv.Atoi(chi.URLParam(r, "vehicle"))
	if routeID == "" || err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "routeId and numeric vehicle are required",
		})
		return
	}

	id := tracking.NewVehicleID(routeID, number)
	s, ok := h.vehicles.Vehicle(id)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Vehicle not found",
			Details: map[string]interface{}{
				"vehicleId": string(id),
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(VehicleResponse{
		VehicleID:     string(s.ID),
		RouteID:       s.RouteID,
		Designator:    s.Designator,
		Longitude:     s.Coord.Lon(),
		Latitude:      s.Coord.Lat(),
		SpeedMps:      s.Speed,
		Bearing:       toDegrees(s.Heading),
		Acceleration:  s.Acceleration,
		Active:        s.Active,
		LastUpdateUTC: s.LastUpdate.UTC(),
		LastPingUTC:   s.LastPing.UTC(),
	})
}
