package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/models"
	"github.com/mini-rodalies-3d/tracker/internal/repository"
	"github.com/mini-rodalies-3d/tracker/internal/tracking"
)

const maxSelectionBody = 64 << 10

// RouteRepository defines the read operations on the route catalog
type RouteRepository interface {
	ListRoutes(ctx context.Context, routeType *int) ([]models.Route, error)
	GetRoute(ctx context.Context, routeID string) (*models.Route, error)
}

// SelectionStore persists the route selection across restarts
type SelectionStore interface {
	LoadSelection(ctx context.Context) ([]db.SelectedRoute, error)
	SaveSelection(ctx context.Context, sel []db.SelectedRoute) error
}

// RouteSelector applies a route selection to the running session
type RouteSelector interface {
	SetRoutes(routes []tracking.RouteSelector) error
	Selection() []tracking.RouteSelector
}

// RouteHandler serves the route catalog and the tracked selection
type RouteHandler struct {
	repo     RouteRepository
	store    SelectionStore
	engine   RouteSelector
	validate *validator.Validate

	// selMu keeps the stored and the running selection in step
	selMu sync.Mutex
}

// NewRouteHandler creates a new route handler
func NewRouteHandler(repo RouteRepository, store SelectionStore, engine RouteSelector) *RouteHandler {
	return &RouteHandler{
		repo:     repo,
		store:    store,
		engine:   engine,
		validate: validator.New(),
	}
}

// GetRoutesResponse is the JSON response structure for GET /api/routes
type GetRoutesResponse struct {
	Routes []models.Route `json:"routes"`
	Count  int            `json:"count"`
}

// GetRoutes handles GET /api/routes
// Returns the catalog, optionally filtered by the type query parameter
func (h *RouteHandler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var routeType *int
	if s := r.URL.Query().Get("type"); s != "" {
		t, err := strconv.Atoi(s)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error: "type must be a GTFS route_type number",
			})
			return
		}
		routeType = &t
	}

	routes, err := h.repo.ListRoutes(ctx, routeType)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Failed to retrieve routes",
			Details: map[string]interface{}{
				"internal": err.Error(),
			},
		})
		return
	}

	// catalog only changes on import
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, stale-while-revalidate=60")
	w.Header().Set("Vary", "Accept-Encoding")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(GetRoutesResponse{Routes: routes, Count: len(routes)})
}

// GetRoute handles GET /api/routes/{routeId}
func (h *RouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")

	route, err := h.repo.GetRoute(r.Context(), routeID)
	if errors.Is(err, repository.ErrNotFound) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Route not found",
			Details: map[string]interface{}{
				"routeId": routeID,
			},
		})
		return
	}
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Failed to retrieve route",
			Details: map[string]interface{}{
				"internal": err.Error(),
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, stale-while-revalidate=60")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(route)
}

// GetSelection handles GET /api/routes/selection
// Returns the selection the running session follows
func (h *RouteHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	current := h.engine.Selection()
	response := models.RouteSelection{Routes: make([]models.SelectedRoute, 0, len(current))}
	for _, s := range current {
		response.Routes = append(response.Routes, models.SelectedRoute{RouteID: s.RouteID, ShortName: s.ShortName})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// PutSelection handles PUT /api/routes/selection
// Validates the body, persists it and hands it to the running session.
// Short names missing from the body are filled from the catalog.
func (h *RouteHandler) PutSelection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var body models.RouteSelection
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSelectionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Invalid JSON body",
			Details: map[string]interface{}{
				"parse": err.Error(),
			},
		})
		return
	}
	if err := h.validate.Struct(body); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Invalid route selection",
			Details: map[string]interface{}{
				"validation": err.Error(),
			},
		})
		return
	}

	sel := make([]db.SelectedRoute, 0, len(body.Routes))
	for _, route := range body.Routes {
		sel = append(sel, db.SelectedRoute{RouteID: route.RouteID, ShortName: route.ShortName})
	}

	h.selMu.Lock()
	defer h.selMu.Unlock()
	if err := h.store.SaveSelection(ctx, sel); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Failed to save route selection",
			Details: map[string]interface{}{
				"internal": err.Error(),
			},
		})
		return
	}

	// re-read so catalog short names are applied
	saved, err := h.store.LoadSelection(ctx)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Failed to load route selection",
		})
		return
	}

	if err := h.engine.SetRoutes(SelectorsFromDB(saved)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tracking.ErrEngineStopped) {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "Failed to apply route selection",
		})
		return
	}

	h.GetSelection(w, r)
}

// SelectorsFromDB converts persisted selection rows to engine selectors
func SelectorsFromDB(sel []db.SelectedRoute) []tracking.RouteSelector {
	out := make([]tracking.RouteSelector, 0, len(sel))
	for _, s := range sel {
		out = append(out, tracking.RouteSelector{RouteID: s.RouteID, ShortName: s.ShortName})
	}
	return out
}
