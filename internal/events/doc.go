// Package events defines the audit trail emitted by the resolver, the
// webhook pipeline and the reconciler, and the sinks that carry it.
//
// Every event is one of a small set of tagged variants. Wrap stamps an event
// with an ID and time; Encode turns the envelope into JSON without side
// effects. Sinks decide transport: LogSink writes structured log lines, Hub
// keeps a bounded replay buffer for the daemon's /api/events endpoint, and
// Recorder captures events for tests.
package events
