// Package audit defines the audit event model, sinks, and the async
// dispatcher used by the root engine.
//
// The dispatcher decouples the authentication hot path from sink latency: a
// slow sink never blocks login or refresh. Events may be dropped under
// pressure when DropIfFull is set; the drop count is observable.
package audit
