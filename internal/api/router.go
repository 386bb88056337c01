// Package api assembles the tracker's HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mini-rodalies-3d/tracker/internal/handlers"
	"github.com/mini-rodalies-3d/tracker/internal/log"
)

// Deps are the handlers mounted by NewRouter
type Deps struct {
	Routes    *handlers.RouteHandler
	Positions *handlers.PositionHandler
	Health    *handlers.HealthHandler
	Stream    http.Handler // websocket snapshot stream

	CORSOrigins []string
	StaticDir   string
	Logger      *log.Logger
}

// NewRouter returns the HTTP handler for the tracker API
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", d.Health.GetHealth)
	r.Get("/healthz", handlers.Liveness)
	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	// Route catalog and selection. The selection paths are registered
	// before {routeId} so "selection" is never read as a route id.
	r.Get("/api/routes", d.Routes.GetRoutes)
	r.Get("/api/routes/selection", d.Routes.GetSelection)
	r.Put("/api/routes/selection", d.Routes.PutSelection)
	r.Get("/api/routes/{routeId}", d.Routes.GetRoute)

	// Vehicles
	r.Get("/api/vehicles/positions", d.Positions.GetPositions)
	if d.Stream != nil {
		r.Get("/api/vehicles/stream", d.Stream.ServeHTTP)
	}
	r.Get("/api/vehicles/{routeId}/{vehicle}", d.Positions.GetVehicle)

	if d.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
	}

	return r
}

// requestLogger logs each request at debug level, failures at warn
func requestLogger(lg *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			}
			if status >= http.StatusInternalServerError {
				lg.Warn("Request failed", args...)
				return
			}
			lg.Debug("Request", args...)
		})
	}
}
