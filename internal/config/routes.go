package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Route is one entry of the configured route selection
type Route struct {
	RouteID   string `yaml:"routeId" json:"routeId" validate:"required"`
	ShortName string `yaml:"shortName" json:"shortName"`
}

// RoutesFile is the YAML layout of ROUTES_FILE
type RoutesFile struct {
	Routes []Route `yaml:"routes" validate:"dive"`
}

var validate = validator.New()

// ValidateRoutes checks every route has an id. Route ids without the
// authority:line form are valid here; they are skipped at subscription time.
func ValidateRoutes(routes []Route) error {
	for i, r := range routes {
		if err := validate.Struct(r); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
	}
	return nil
}

// ParseRoutes parses the ROUTES list: comma separated "routeId=shortName"
// pairs. The short name may be omitted.
func ParseRoutes(s string) ([]Route, error) {
	var routes []Route
	for _, item := range splitList(s) {
		id, short, _ := strings.Cut(item, "=")
		routes = append(routes, Route{
			RouteID:   strings.TrimSpace(id),
			ShortName: strings.TrimSpace(short),
		})
	}
	if err := ValidateRoutes(routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// LoadRoutesFile reads and validates a YAML route selection file
func LoadRoutesFile(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f RoutesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return f.Routes, nil
}

// InitialRoutes returns the startup selection: the routes file wins over
// the ROUTES variable. An empty result is not an error.
func (c *Config) InitialRoutes() ([]Route, error) {
	if c.RoutesFile != "" {
		return LoadRoutesFile(c.RoutesFile)
	}
	return ParseRoutes(c.Routes)
}
