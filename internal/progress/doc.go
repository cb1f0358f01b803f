// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces that pipeline stages use to report upward. Stage code
// never mutates job records directly; it emits events, and the hub batches
// them on a background goroutine and fans them out to pluggable sinks such as
// Prometheus metrics or persistent storage.
package progress
