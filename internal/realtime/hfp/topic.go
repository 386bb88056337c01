package hfp

import (
	"fmt"
	"strings"
)

// topicFormat is the high-frequency positioning v1 topic with every level
// except the route wildcarded:
// /hfp/v1/journey/ongoing/<mode>/<operator>/<vehicle>/<route>/<dir>/<headsign>/<start>/<next_stop>/<geohash_level>/#
const topicFormat = "/hfp/v1/journey/ongoing/+/+/+/%s/+/+/+/+/+/#"

// ToTopic derives the subscription topic for a route id of the form
// authority:line (e.g. "HSL:1010"). It reports false when the id has no
// ':' separator or an empty line part.
func ToTopic(routeID string) (string, bool) {
	i := strings.LastIndexByte(routeID, ':')
	if i < 0 {
		return "", false
	}
	line := routeID[i+1:]
	if line == "" {
		return "", false
	}
	return fmt.Sprintf(topicFormat, line), true
}

// LineID returns the line part of an authority:line route id, or the id
// unchanged when it has no separator.
func LineID(routeID string) string {
	if i := strings.LastIndexByte(routeID, ':'); i >= 0 {
		return routeID[i+1:]
	}
	return routeID
}
