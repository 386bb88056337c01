package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mini-rodalies-3d/tracker/internal/log"
	"github.com/mini-rodalies-3d/tracker/internal/metrics"
	"github.com/mini-rodalies-3d/tracker/internal/realtime/hfp"
)

var (
	ErrUnresolvedRoute = errors.New("tracking: ping designator matches no selected route")
	ErrEngineStopped   = errors.New("tracking: engine stopped")
)

const (
	unresolvedLogTTL  = 10 * time.Minute
	unresolvedLogSize = 256

	defaultWarnSize = 5000
)

// Transport is the pub/sub connection the engine owns for its session
type Transport interface {
	Connect(ctx context.Context, handle func(topic string, payload []byte)) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Close() error
}

type Options struct {
	PingDebounce      time.Duration
	ReferenceLatitude float64
	// WarnSize is the registry size above which growth is logged
	WarnSize int
	Logger   *log.Logger
	// Now stamps incoming pings; defaults to time.Now
	Now func() time.Time
}

// Stats are the ingest counters of one session
type Stats struct {
	SessionID    uuid.UUID `json:"sessionId"`
	StartedAt    time.Time `json:"startedAt"`
	Messages     int64     `json:"messages"`
	DecodeErrors int64     `json:"decodeErrors"`
	Unresolved   int64     `json:"unresolved"`
	Created      int64     `json:"created"`
	Updated      int64     `json:"updated"`
	Deactivated  int64     `json:"deactivated"`
	Ignored      int64     `json:"ignored"`
	Vehicles     int       `json:"vehicles"`
	Active       int       `json:"active"`
	Frames       uint64    `json:"frames"`
	// seconds between consecutive located pings of the same vehicle
	IntervalMean   float64 `json:"intervalMean"`
	IntervalStdDev float64 `json:"intervalStdDev"`
	IntervalCount  int     `json:"intervalCount"`
}

// Engine is one tracking session: it owns the transport, the vehicle
// registry and the current route selection. mu serializes message
// handling, selection changes and frames.
type Engine struct {
	transport Transport
	estimator Estimator
	lg        *log.Logger
	now       func() time.Time
	warnSize  int

	// selMu orders selection changes; transport commands are issued under
	// it but outside mu
	selMu     sync.Mutex
	selection []RouteSelector

	mu        sync.Mutex
	registry  *Registry
	lookup    RouteLookup
	stopped   bool
	seq       uint64
	stats     Stats
	intervals metrics.Running
	nextWarn  int

	unresolvedSeen *expirable.LRU[string, struct{}]

	done     chan struct{}
	stopOnce sync.Once
}

// New creates an engine that will use transport once started
func New(transport Transport, opts Options) *Engine {
	if opts.ReferenceLatitude == 0 {
		opts.ReferenceLatitude = DefaultReferenceLatitude
	}
	if opts.WarnSize <= 0 {
		opts.WarnSize = defaultWarnSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		transport:      transport,
		estimator:      NewEstimator(LocalProjection(opts.ReferenceLatitude)),
		lg:             opts.Logger,
		now:            opts.Now,
		warnSize:       opts.WarnSize,
		registry:       NewRegistry(opts.PingDebounce),
		lookup:         RouteLookup{},
		nextWarn:       opts.WarnSize,
		unresolvedSeen: expirable.NewLRU[string, struct{}](unresolvedLogSize, nil, unresolvedLogTTL),
		done:           make(chan struct{}),
	}
	e.stats.SessionID = uuid.New()
	e.stats.StartedAt = opts.Now()
	return e
}

// Start connects the transport. Messages flow to HandleMessage from then
// on; a selection set before Start is subscribed on connect.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return ErrEngineStopped
	}

	if err := e.transport.Connect(ctx, e.HandleMessage); err != nil {
		return fmt.Errorf("failed to start tracking session: %w", err)
	}
	e.lg.Info("Tracking session started", "session", e.stats.SessionID)
	return nil
}

// Stop unsubscribes every selected route and closes the transport. After
// Stop returns no message or frame has any effect. Stop is idempotent.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.selMu.Lock()
		defer e.selMu.Unlock()

		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()
		close(e.done)

		plan := Reconcile(e.selection, nil)
		e.issue(plan)
		e.selection = nil

		if cerr := e.transport.Close(); cerr != nil {
			err = fmt.Errorf("failed to close transport: %w", cerr)
		}
		e.lg.Info("Tracking session stopped", "session", e.stats.SessionID)
	})
	return err
}

// Done is closed once the engine is stopped
func (e *Engine) Done() <-chan struct{} { return e.done }

// SetRoutes replaces the route selection. Pings for routes no longer
// selected are dropped from now on. Vehicles of those routes stay in the
// registry but are marked inactive, so they stop being extrapolated.
func (e *Engine) SetRoutes(routes []RouteSelector) error {
	routes = append([]RouteSelector(nil), routes...)
	keep := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		keep[r.RouteID] = struct{}{}
	}

	e.selMu.Lock()
	defer e.selMu.Unlock()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	e.lookup = NewRouteLookup(routes)
	if n := e.registry.DeactivateExcept(keep); n > 0 {
		e.stats.Deactivated += int64(n)
		e.lg.Debug("Deactivated vehicles of deselected routes", "vehicles", n)
	}
	e.mu.Unlock()

	plan := Reconcile(e.selection, routes)
	for _, id := range plan.Skipped {
		e.lg.Debug("Route has no topic, skipping", "route", id)
	}
	e.issue(plan)
	e.selection = routes

	e.lg.Info("Route selection changed",
		"routes", len(routes), "subscribe", len(plan.Subscribe), "unsubscribe", len(plan.Unsubscribe))
	return nil
}

// Selection returns the current route selection
func (e *Engine) Selection() []RouteSelector {
	e.selMu.Lock()
	defer e.selMu.Unlock()
	return append([]RouteSelector(nil), e.selection...)
}

// issue sends plan to the transport; failures are logged, not returned
func (e *Engine) issue(plan Plan) {
	for _, topic := range plan.Unsubscribe {
		if err := e.transport.Unsubscribe(topic); err != nil {
			e.lg.Warn("Unsubscribe failed", "topic", topic, "error", err)
		}
	}
	for _, topic := range plan.Subscribe {
		if err := e.transport.Subscribe(topic); err != nil {
			e.lg.Warn("Subscribe failed", "topic", topic, "error", err)
		}
	}
}

// HandleMessage decodes and applies one raw feed message. Malformed
// payloads and pings for unselected routes are counted and dropped.
func (e *Engine) HandleMessage(topic string, payload []byte) {
	ping, err := hfp.Decode(payload)

	if err != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.stopped {
			return
		}
		e.stats.Messages++
		e.stats.DecodeErrors++
		e.lg.Debug("Dropping malformed message", "topic", topic, "error", err)
		return
	}

	if err := e.ingest(ping, true); err != nil && !errors.Is(err, ErrUnresolvedRoute) && !errors.Is(err, ErrEngineStopped) {
		e.lg.Warn("Failed to apply ping", "topic", topic, "error", err)
	}
}

// Ingest applies an already decoded ping, e.g. from a secondary feed
func (e *Engine) Ingest(p hfp.Ping) error {
	return e.ingest(p, false)
}

func (e *Engine) ingest(p hfp.Ping, fromFeed bool) error {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrEngineStopped
	}
	if fromFeed {
		e.stats.Messages++
	}

	routeID, ok := e.lookup.Resolve(p.Designator)
	if !ok {
		e.stats.Unresolved++
		if _, seen := e.unresolvedSeen.Get(p.Designator); !seen {
			e.unresolvedSeen.Add(p.Designator, struct{}{})
			e.lg.Warn("Dropping pings for unselected route", "designator", p.Designator, "vehicle", p.VehicleNumber)
		}
		return fmt.Errorf("%w: %q", ErrUnresolvedRoute, p.Designator)
	}

	prev, known := e.registry.Get(NewVehicleID(routeID, p.VehicleNumber))
	outcome := e.registry.Apply(p, routeID, now)

	switch outcome {
	case Created:
		e.stats.Created++
		if n := e.registry.Len(); n > e.nextWarn {
			e.lg.Warn("Vehicle registry is growing large", "vehicles", n, "threshold", e.nextWarn)
			e.nextWarn *= 2
		}
	case Updated:
		e.stats.Updated++
		if known && prev.Active {
			e.intervals.Add(now.Sub(prev.LastUpdate).Seconds())
		}
	case Deactivated:
		e.stats.Deactivated++
	case Ignored:
		e.stats.Ignored++
	}
	return nil
}

// Tick computes the snapshot for frame time now. A stopped engine returns
// an empty snapshot.
func (e *Engine) Tick(now time.Time) Snapshot {
	snap, _ := e.tick(now)
	return snap
}

func (e *Engine) tick(now time.Time) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return Snapshot{At: now}, false
	}

	e.seq++
	snap := Snapshot{
		Seq:       e.seq,
		At:        now,
		Positions: make([]DisplayPosition, 0, e.registry.Len()),
	}
	e.registry.Each(func(s VehicleState) {
		snap.Positions = append(snap.Positions, e.estimator.Estimate(s, now))
	})
	return snap, true
}

// Vehicle returns the last confirmed state of one vehicle
func (e *Engine) Vehicle(id VehicleID) (VehicleState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(id)
}

// Projection is the meters-to-degrees conversion used for estimates
func (e *Engine) Projection() Projection { return e.estimator.Projection() }

// Stats returns a copy of the session counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats
	s.Vehicles = e.registry.Len()
	s.Active = e.registry.ActiveCount()
	s.Frames = e.seq
	s.IntervalMean = e.intervals.Mean
	s.IntervalStdDev = e.intervals.StdDev()
	s.IntervalCount = e.intervals.Count
	return s
}
