package tracking

import "github.com/mini-rodalies-3d/tracker/internal/realtime/hfp"

// Plan is the set of transport commands that moves the subscription from
// one route selection to the next.
type Plan struct {
	Subscribe   []string
	Unsubscribe []string
	// Skipped holds route ids that have no topic form
	Skipped []string
}

// Empty reports whether the plan issues no transport command
func (p Plan) Empty() bool {
	return len(p.Subscribe) == 0 && len(p.Unsubscribe) == 0
}

// Reconcile diffs two route selections by RouteID. Every route of current
// is (re)subscribed since the transport treats repeats as no-ops; routes
// only in previous are unsubscribed. Output follows input order.
func Reconcile(previous, current []RouteSelector) Plan {
	var plan Plan

	keep := make(map[string]struct{}, len(current))
	for _, r := range current {
		if _, dup := keep[r.RouteID]; dup {
			continue
		}
		keep[r.RouteID] = struct{}{}

		topic, ok := hfp.ToTopic(r.RouteID)
		if !ok {
			plan.Skipped = append(plan.Skipped, r.RouteID)
			continue
		}
		plan.Subscribe = append(plan.Subscribe, topic)
	}

	dropped := make(map[string]struct{}, len(previous))
	for _, r := range previous {
		if _, ok := keep[r.RouteID]; ok {
			continue
		}
		if _, dup := dropped[r.RouteID]; dup {
			continue
		}
		dropped[r.RouteID] = struct{}{}

		if topic, ok := hfp.ToTopic(r.RouteID); ok {
			plan.Unsubscribe = append(plan.Unsubscribe, topic)
		}
	}

	return plan
}
