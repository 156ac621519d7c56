// Package eventhandler defines the per-event-type behaviour the scheduler dispatches to.
//
// A handler executes an event and may optionally validate payloads at schedule
// time and render an event for display. New event kinds are added by implementing
// EventHandler and registering it with the scheduler.
package eventhandler
