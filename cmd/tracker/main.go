package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mini-rodalies-3d/tracker/internal/api"
	"github.com/mini-rodalies-3d/tracker/internal/config"
	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/handlers"
	"github.com/mini-rodalies-3d/tracker/internal/log"
	"github.com/mini-rodalies-3d/tracker/internal/metrics"
	"github.com/mini-rodalies-3d/tracker/internal/realtime/gtfsrt"
	"github.com/mini-rodalies-3d/tracker/internal/realtime/hfp"
	"github.com/mini-rodalies-3d/tracker/internal/repository"
	"github.com/mini-rodalies-3d/tracker/internal/static"
	"github.com/mini-rodalies-3d/tracker/internal/stream"
	"github.com/mini-rodalies-3d/tracker/internal/tracking"
)

func main() {
	cfg := config.Load()
	lg := log.New(cfg.LogLevel, cfg.LogDir)
	lg.Info("Starting tracker",
		"broker", cfg.BrokerURL, "frame_rate", cfg.FrameRate, "debounce", cfg.PingDebounce)

	if err := run(cfg, lg); err != nil {
		lg.Error("Tracker failed", "error", err)
		os.Exit(1)
	}
	lg.Info("Goodbye!")
}

func run(cfg *config.Config, lg *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Initialize Database
	// ═══════════════════════════════════════════════════════
	database, err := db.Connect(cfg.DatabasePath, lg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}

	var routeRepo handlers.RouteRepository = repository.NewSQLiteRouteRepository(database.Conn())
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPostgresRouteRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		routeRepo = pg
		lg.Info("Serving route catalog from Postgres")
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Route Catalog Refresh (startup)
	// ═══════════════════════════════════════════════════════
	if err := static.RefreshIfStale(ctx, cfg, database, lg); err != nil {
		// existing catalog rows are still usable
		lg.Warn("Route catalog refresh failed", "error", err)
	}

	selection, err := initialSelection(ctx, cfg, database)
	if err != nil {
		return err
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Start Tracking Session
	// ═══════════════════════════════════════════════════════
	engine := tracking.New(hfp.NewClient(cfg.BrokerURL, cfg.ClientID, lg), tracking.Options{
		PingDebounce:      cfg.PingDebounce,
		ReferenceLatitude: cfg.ReferenceLatitude,
		WarnSize:          cfg.RegistryWarnSize,
		Logger:            lg,
	})
	if err := engine.SetRoutes(selection); err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	hub := stream.NewHub(cfg.StreamRate, lg)
	defer hub.Close()

	recorder := metrics.NewRecorder(database, func() db.IngestStats {
		return handlers.IngestSample(engine.Stats(), time.Now().UTC())
	}, cfg.StatsInterval, cfg.RetentionDuration, lg)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.Deps{
			Routes:      handlers.NewRouteHandler(routeRepo, database, engine),
			Positions:   handlers.NewPositionHandler(hub, engine),
			Health:      handlers.NewHealthHandler(engine, database),
			Stream:      hub,
			CORSOrigins: cfg.CORSOrigins,
			StaticDir:   cfg.StaticDir,
			Logger:      lg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Run Loops
	// ═══════════════════════════════════════════════════════
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx, tracking.NewTickerClock(cfg.FrameInterval()), hub)
	})
	g.Go(func() error {
		return recorder.Run(gctx)
	})
	if cfg.GTFSVehiclePositionsURL != "" {
		poller := gtfsrt.NewPoller(cfg.GTFSVehiclePositionsURL, engine, lg)
		g.Go(func() error {
			return poller.Run(gctx, cfg.PollInterval)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := static.RefreshIfStale(gctx, cfg, database, lg); err != nil {
					lg.Warn("Daily route catalog refresh failed", "error", err)
				}
			}
		}
	})
	g.Go(func() error {
		lg.Info("API server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// initialSelection returns the persisted selection, seeding it from
// ROUTES / ROUTES_FILE on first start
func initialSelection(ctx context.Context, cfg *config.Config, database *db.DB) ([]tracking.RouteSelector, error) {
	saved, err := database.LoadSelection(ctx)
	if err != nil {
		return nil, err
	}
	if len(saved) > 0 {
		return handlers.SelectorsFromDB(saved), nil
	}

	routes, err := cfg.InitialRoutes()
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, nil
	}

	seed := make([]db.SelectedRoute, 0, len(routes))
	for _, r := range routes {
		seed = append(seed, db.SelectedRoute{RouteID: r.RouteID, ShortName: r.ShortName})
	}
	if err := database.SaveSelection(ctx, seed); err != nil {
		return nil, err
	}
	if saved, err = database.LoadSelection(ctx); err != nil {
		return nil, err
	}
	return handlers.SelectorsFromDB(saved), nil
}
