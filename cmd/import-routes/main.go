package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mini-rodalies-3d/tracker/internal/db"
	"github.com/mini-rodalies-3d/tracker/internal/log"
	"github.com/mini-rodalies-3d/tracker/internal/static"
	"github.com/mini-rodalies-3d/tracker/internal/static/gtfs"
)

func main() {
	dbPath := flag.String("db", "data/tracker.db", "Path to SQLite database")
	gtfsPath := flag.String("gtfs", "data/gtfs", "GTFS zip file, or a directory of them")
	url := flag.String("url", "", "If set, download the GTFS zip from this URL first")
	types := flag.String("types", "", "Comma-separated GTFS route_type values to keep (e.g. 0,3); empty keeps all")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	lg := log.NewWriter(os.Stdout, *level)

	keep, err := parseTypes(*types)
	if err != nil {
		lg.Error("Invalid -types", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()
	database, err := db.Connect(*dbPath, lg)
	if err != nil {
		lg.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		lg.Error("Failed to ensure schema", "error", err)
		os.Exit(1)
	}

	if *url != "" {
		dest := filepath.Join(os.TempDir(), "import-routes-gtfs.zip")
		lg.Info("Downloading GTFS", "url", *url)
		if err := gtfs.Download(ctx, *url, dest); err != nil {
			lg.Error("Download failed", "error", err)
			os.Exit(1)
		}
		defer os.Remove(dest)
		*gtfsPath = dest
	}

	zips, err := findZips(*gtfsPath)
	if err != nil {
		lg.Error("Failed to read GTFS path", "path", *gtfsPath, "error", err)
		os.Exit(1)
	}

	total := 0
	for _, zipPath := range zips {
		lg.Info("Processing", "file", filepath.Base(zipPath))
		n, err := importRoutes(ctx, database, zipPath, keep, lg)
		if err != nil {
			lg.Error("Import failed", "file", zipPath, "error", err)
			continue
		}
		total += n
	}

	lg.Info("Import complete!", "files", len(zips), "routes", total)
}

func importRoutes(ctx context.Context, database *db.DB, zipPath string, keep map[int]bool, lg *log.Logger) (int, error) {
	data, err := gtfs.Parse(zipPath, lg)
	if err != nil {
		return 0, err
	}

	if len(keep) > 0 {
		filtered := data.Routes[:0]
		for _, r := range data.Routes {
			if keep[r.RouteType] {
				filtered = append(filtered, r)
			}
		}
		lg.Info("Filtered routes by type", "kept", len(filtered), "total", len(data.Routes))
		data.Routes = filtered
	}

	return database.UpsertRoutes(ctx, static.ToCatalog(data))
}

// findZips returns path itself when it is a file, or the .zip files in it
func findZips(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var zips []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		zips = append(zips, filepath.Join(path, entry.Name()))
	}
	return zips, nil
}

func parseTypes(s string) (map[int]bool, error) {
	keep := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("route type %q: %w", part, err)
		}
		keep[t] = true
	}
	return keep, nil
}
