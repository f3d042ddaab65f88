package dispatch

import (
	"encoding/json"
	"fmt"
)

// batchKey identifies events that may be merged into a single hit: they
// must agree on identity, implementation details, location hint,
// environment, and datastream targeting (spec §4.4, §8 invariant 3).
// Identity/implementation/environment/location-hint are core-wide at any
// given moment (the core holds one snapshot of each), so the only
// per-event axis left to key on is datastream targeting.
func batchKey(ev *HubEvent) string {
	override, _ := json.Marshal(ev.DatastreamConfigOverride)
	return fmt.Sprintf("%s|%s", ev.DatastreamIDOverride, override)
}

// groupBatchable partitions events into ordered batches: events with an
// explicit RequestPath are always singleton batches (spec §4.8 point 6);
// otherwise contiguous events sharing a batchKey are merged, preserving
// submission order both across and within batches.
func groupBatchable(events []*HubEvent) [][]*HubEvent {
	var batches [][]*HubEvent
	var current []*HubEvent
	var currentKey string

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
		}
	}

	for _, ev := range events {
		if ev.RequestPath != "" {
			flush()
			batches = append(batches, []*HubEvent{ev})
			continue
		}
		key := batchKey(ev)
		if len(current) > 0 && key != currentKey {
			flush()
		}
		current = append(current, ev)
		currentKey = key
	}
	flush()

	return batches
}
