package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mini-rodalies-3d/tracker/internal/log"
)

// ErrNoRoutes is returned when a feed has no usable routes.txt
var ErrNoRoutes = errors.New("gtfs: no routes")

// Parse reads routes.txt and agency.txt from a GTFS zip file
func Parse(zipPath string, lg *log.Logger) (*Data, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	files := make(map[string]*zip.File)
	for _, f := range r.File {
		files[f.Name] = f
	}

	data := &Data{}

	f, ok := files["routes.txt"]
	if !ok {
		return nil, fmt.Errorf("%w: routes.txt missing from %s", ErrNoRoutes, zipPath)
	}
	if data.Routes, err = parseRoutes(f, lg); err != nil {
		return nil, fmt.Errorf("failed to parse routes.txt: %w", err)
	}
	if len(data.Routes) == 0 {
		return nil, fmt.Errorf("%w: routes.txt in %s is empty", ErrNoRoutes, zipPath)
	}

	if f, ok := files["agency.txt"]; ok {
		agencies, err := parseAgencies(f, lg)
		if err != nil {
			lg.Warn("Failed to parse agency.txt", "error", err)
		} else {
			data.Agency = agencies
		}
	}

	lg.Info("GTFS parsed", "routes", len(data.Routes), "agencies", len(data.Agency))
	return data, nil
}

// readCSV calls fn for each record of a GTFS table. Malformed rows are
// skipped and counted.
func readCSV(f *zip.File, lg *log.Logger, fn func(record []string, idx map[string]int)) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return err
	}
	// Some feeds ship a UTF-8 BOM on the header row
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := makeIndex(header)

	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		fn(record, idx)
	}
	if skipped > 0 {
		lg.Warn("Skipped malformed GTFS rows", "file", f.Name, "rows", skipped)
	}
	return nil
}

func parseRoutes(f *zip.File, lg *log.Logger) ([]Route, error) {
	var routes []Route
	err := readCSV(f, lg, func(record []string, idx map[string]int) {
		id := getField(record, idx, "route_id")
		if id == "" {
			return
		}
		routeType, _ := strconv.Atoi(getField(record, idx, "route_type"))
		routes = append(routes, Route{
			RouteID:        id,
			AgencyID:       getField(record, idx, "agency_id"),
			RouteShortName: getField(record, idx, "route_short_name"),
			RouteLongName:  getField(record, idx, "route_long_name"),
			RouteType:      routeType,
			RouteColor:     getField(record, idx, "route_color"),
			RouteTextColor: getField(record, idx, "route_text_color"),
		})
	})
	return routes, err
}

func parseAgencies(f *zip.File, lg *log.Logger) ([]Agency, error) {
	var agencies []Agency
	err := readCSV(f, lg, func(record []string, idx map[string]int) {
		agencies = append(agencies, Agency{
			AgencyID:   getField(record, idx, "agency_id"),
			AgencyName: getField(record, idx, "agency_name"),
			AgencyURL:  getField(record, idx, "agency_url"),
		})
	})
	return agencies, err
}

// DefaultAgency returns the feed's agency id when the feed has exactly one.
// routes.txt may omit agency_id in that case.
func (d *Data) DefaultAgency() string {
	if len(d.Agency) == 1 {
		return d.Agency[0].AgencyID
	}
	return ""
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
