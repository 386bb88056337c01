// Package gtfsrt feeds a GTFS-Realtime VehiclePositions endpoint into the
// tracking engine as a secondary source next to the MQTT stream.
package gtfsrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/mini-rodalies-3d/tracker/internal/log"
	"github.com/mini-rodalies-3d/tracker/internal/realtime/hfp"
	"github.com/mini-rodalies-3d/tracker/internal/tracking"
)

const defaultInterval = 10 * time.Second

// trailingNumber pulls the vehicle number out of ids like "1012/42" or "bus-0042"
var trailingNumber = regexp.MustCompile(`(\d+)$`)

// Sink receives converted pings
type Sink interface {
	Ingest(p hfp.Ping) error
}

// Result summarizes one poll
type Result struct {
	Entities   int
	Applied    int
	Unresolved int
	Skipped    int
}

// Poller periodically fetches a VehiclePositions feed
type Poller struct {
	url    string
	sink   Sink
	lg     *log.Logger
	client *http.Client
}

// NewPoller creates a poller feeding url into sink
func NewPoller(url string, sink Sink, lg *log.Logger) *Poller {
	return &Poller{
		url:  url,
		sink: sink,
		lg:   lg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Run polls every interval until ctx is done. Poll failures are logged and
// retried on the next tick. A non-positive interval polls every 10 seconds.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if res, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.lg.Warn("GTFS-RT poll failed", "url", p.url, "error", err)
		} else {
			p.lg.Debug("GTFS-RT polled", "entities", res.Entities, "applied", res.Applied,
				"unresolved", res.Unresolved, "skipped", res.Skipped)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the feed once and hands every vehicle entity to the sink
func (p *Poller) Poll(ctx context.Context) (Result, error) {
	var res Result

	feed, err := p.fetchFeed(ctx)
	if err != nil {
		return res, err
	}

	for _, entity := range feed.GetEntity() {
		if entity.GetVehicle() == nil {
			continue
		}
		res.Entities++

		ping, ok := toPing(entity.GetVehicle())
		if !ok {
			res.Skipped++
			continue
		}

		switch err := p.sink.Ingest(ping); {
		case err == nil:
			res.Applied++
		case errors.Is(err, tracking.ErrUnresolvedRoute):
			res.Unresolved++
		case errors.Is(err, tracking.ErrEngineStopped):
			return res, err
		default:
			return res, fmt.Errorf("failed to apply entity %s: %w", entity.GetId(), err)
		}
	}

	return res, nil
}

func (p *Poller) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}
	return feed, nil
}

// toPing maps a GTFS-RT vehicle onto the feed's ping shape: bearing becomes
// heading, m/s become km/h and the route_id line part becomes the designator.
// Vehicles without a usable number or route are skipped.
func toPing(v *gtfs.VehiclePosition) (hfp.Ping, bool) {
	number, ok := vehicleNumber(v.GetVehicle())
	if !ok {
		return hfp.Ping{}, false
	}
	trip := v.GetTrip()
	if trip.GetRouteId() == "" {
		return hfp.Ping{}, false
	}

	ping := hfp.Ping{
		VehicleNumber: number,
		Designator:    hfp.LineID(trip.GetRouteId()),
		OperatingDay:  trip.GetStartDate(),
		Start:         trip.GetStartTime(),
	}
	if trip != nil && trip.DirectionId != nil {
		ping.Direction = strconv.Itoa(int(trip.GetDirectionId()) + 1)
	}

	if pos := v.GetPosition(); pos != nil {
		ping.HeadingDeg = float64(pos.GetBearing())
		ping.SpeedKmh = float64(pos.GetSpeed()) * 3.6
		if pos.Odometer != nil {
			odo := pos.GetOdometer()
			ping.Odometer = &odo
		}
		// lat/long are required in the schema; 0,0 marks a missing fix
		if pos.GetLatitude() != 0 || pos.GetLongitude() != 0 {
			ping.Location = hfp.At(float64(pos.GetLongitude()), float64(pos.GetLatitude()))
		}
	}

	if ts := v.GetTimestamp(); ts > 0 {
		ping.ReportUnix = int64(ts)
		ping.ReportedAt = time.Unix(int64(ts), 0).UTC()
	}

	return ping, true
}

func vehicleNumber(d *gtfs.VehicleDescriptor) (int, bool) {
	for _, s := range []string{d.GetId(), d.GetLabel()} {
		m := trailingNumber.FindString(s)
		if m == "" {
			continue
		}
		if n, err := strconv.Atoi(m); err == nil {
			return n, true
		}
	}
	return 0, false
}
