// Package scheduler runs deferred and recurring events.
//
// One-off events are found by polling the event store on a fixed interval.
// Recurring events get a live cron timer. Both paths feed a single execution
// loop, so handlers of one Service never run concurrently. Every outcome is
// written back to the store as a status transition; execution failures are
// logged and recorded, never returned to the caller that scheduled the event.
//
// A Service assumes it is the only process executing events from its store
// unless a shared claim.Claimer is configured.
package scheduler
