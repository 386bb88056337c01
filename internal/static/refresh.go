// Package static keeps the route catalog in sync with the static GTFS feed.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mini-rodalies-3d/tracker/internal/config"
	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/log"
	"github.com/mini-rodalies-3d/tracker/internal/static/gtfs"
)

// CatalogVersion is bumped whenever the import mapping changes, forcing a
// refresh on the next start regardless of manifest age.
const CatalogVersion = "1"

// Manifest records when the catalog was last imported
type Manifest struct {
	UpdatedAt        string `json:"updated_at"`
	GeneratedAt      string `json:"generated_at,omitempty"` // legacy
	GeneratorVersion string `json:"generator_version,omitempty"`
	Source           string `json:"source,omitempty"`
	Routes           int    `json:"routes"`
}

// RouteStore receives imported catalog rows
type RouteStore interface {
	UpsertRoutes(ctx context.Context, routes []db.Route) (int, error)
}

// RefreshIfStale downloads and imports the static feed when the cached
// manifest is missing, older than StaticRefreshDays or written by another
// catalog version. It is a no-op without GTFS_STATIC_URL.
func RefreshIfStale(ctx context.Context, cfg *config.Config, store RouteStore, lg *log.Logger) error {
	if cfg.GTFSStaticURL == "" {
		lg.Debug("GTFS_STATIC_URL not set, skipping route catalog refresh")
		return nil
	}

	manifestPath := filepath.Join(cfg.CacheDir, "manifest.json")
	if !isStaleOrMissing(manifestPath, cfg.StaticRefreshDays) && getStoredGeneratorVersion(manifestPath) == CatalogVersion {
		lg.Info("Route catalog is fresh, skipping refresh")
		return nil
	}

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return err
	}

	lg.Info("Refreshing route catalog", "url", cfg.GTFSStaticURL)
	zipPath := filepath.Join(cfg.CacheDir, "gtfs.zip")
	if err := gtfs.Download(ctx, cfg.GTFSStaticURL, zipPath); err != nil {
		return err
	}

	n, err := Import(ctx, zipPath, store, lg)
	if err != nil {
		return err
	}

	return writeManifest(manifestPath, Manifest{
		UpdatedAt:        time.Now().UTC().Format(time.RFC3339),
		GeneratorVersion: CatalogVersion,
		Source:           cfg.GTFSStaticURL,
		Routes:           n,
	})
}

// Import parses a GTFS zip and upserts its routes into the catalog
func Import(ctx context.Context, zipPath string, store RouteStore, lg *log.Logger) (int, error) {
	data, err := gtfs.Parse(zipPath, lg)
	if err != nil {
		return 0, err
	}

	n, err := store.UpsertRoutes(ctx, ToCatalog(data))
	if err != nil {
		return 0, err
	}
	lg.Info("Route catalog imported", "path", zipPath, "routes", n)
	return n, nil
}

// ToCatalog maps parsed GTFS routes onto catalog rows
func ToCatalog(data *gtfs.Data) []db.Route {
	agency := data.DefaultAgency()
	routes := make([]db.Route, 0, len(data.Routes))
	for _, r := range data.Routes {
		a := r.AgencyID
		if a == "" {
			a = agency
		}
		routes = append(routes, db.Route{
			RouteID:   r.RouteID,
			AgencyID:  a,
			ShortName: r.RouteShortName,
			LongName:  r.RouteLongName,
			Type:      r.RouteType,
			Color:     r.RouteColor,
			TextColor: r.RouteTextColor,
		})
	}
	return routes
}

func isStaleOrMissing(manifestPath string, maxAgeDays int) bool {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return true
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return true
	}

	stamp := manifest.UpdatedAt
	if stamp == "" {
		stamp = manifest.GeneratedAt
	}
	updatedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return true
	}

	return time.Since(updatedAt) > time.Duration(maxAgeDays)*24*time.Hour
}

func getStoredGeneratorVersion(manifestPath string) string {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return ""
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	return manifest.GeneratorVersion
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
