package tracking

import (
	"context"
	"time"
)

// Snapshot is the display state of every tracked vehicle at one frame, in
// registry order.
type Snapshot struct {
	Seq       uint64            `json:"seq" msgpack:"seq"`
	At        time.Time         `json:"at" msgpack:"at"`
	Positions []DisplayPosition `json:"positions" msgpack:"positions"`
}

// Publisher receives one Snapshot per frame. Publish runs on the frame loop
// and should not block.
type Publisher interface {
	Publish(Snapshot)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Snapshot)

// Publish calls f
func (f PublisherFunc) Publish(s Snapshot) { f(s) }

// Publishers fans a snapshot out to several publishers in order
type Publishers []Publisher

// Publish forwards s to each publisher
func (ps Publishers) Publish(s Snapshot) {
	for _, p := range ps {
		p.Publish(s)
	}
}

// FrameClock schedules render frames. Each value received from Frames is
// the frame time.
type FrameClock interface {
	Frames() <-chan time.Time
	Stop()
}

type tickerClock struct {
	t *time.Ticker
}

// NewTickerClock ticks every interval
func NewTickerClock(interval time.Duration) FrameClock {
	return &tickerClock{t: time.NewTicker(interval)}
}

func (c *tickerClock) Frames() <-chan time.Time { return c.t.C }
func (c *tickerClock) Stop()                    { c.t.Stop() }

// Run publishes a snapshot on every frame of clock until ctx is done or the
// engine is stopped. It stops clock on return.
func (e *Engine) Run(ctx context.Context, clock FrameClock, pub Publisher) error {
	defer clock.Stop()

	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.done:
			return nil
		case now, ok := <-clock.Frames():
			if !ok {
				return nil
			}
			snap, ok := e.tick(now)
			if !ok {
				return nil
			}
			pub.Publish(snap)
		}
	}
}
