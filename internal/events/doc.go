// Package events is the EventBus: a typed, in-process pub/sub used by the
// scheduler to report task and task-graph lifecycle events. Emit never
// blocks the caller — each subscriber is served by its own goroutine
// reading a buffered channel, so a slow or blocked subscriber only drops
// its own events rather than stalling the emitter. A subscriber's handler
// is invoked with panic recovery: a misbehaving observer cannot bring down
// the scheduler.
package events
