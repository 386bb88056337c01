package tracking

import "github.com/mini-rodalies-3d/tracker/internal/realtime/hfp"

// RouteSelector is one user-selected route. Two selectors are the same
// route when their RouteIDs match.
type RouteSelector struct {
	RouteID   string `json:"routeId" validate:"required"`
	ShortName string `json:"shortName"`
}

// RouteLookup resolves the designator carried by a ping to the id of a
// selected route.
type RouteLookup map[string]string

// NewRouteLookup indexes routes by short name and, as a fallback, by the
// line part of the route id. Feeds that report the line id as designator
// (GTFS-RT route_id) resolve through the second key. The first route wins
// on collisions.
func NewRouteLookup(routes []RouteSelector) RouteLookup {
	l := make(RouteLookup, 2*len(routes))
	for _, r := range routes {
		if r.ShortName == "" {
			continue
		}
		if _, ok := l[r.ShortName]; !ok {
			l[r.ShortName] = r.RouteID
		}
	}
	for _, r := range routes {
		line := hfp.LineID(r.RouteID)
		if line == "" {
			continue
		}
		if _, ok := l[line]; !ok {
			l[line] = r.RouteID
		}
	}
	return l
}

// Resolve returns the route id selected for designator
func (l RouteLookup) Resolve(designator string) (string, bool) {
	id, ok := l[designator]
	return id, ok
}
