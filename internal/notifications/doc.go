// Package notifications pushes noteworthy library events to ntfy.
//
// The Sink implements events.Sink so it slots into the same fan-out as the
// event hub and the log sink. Only reconcile summaries with changes or
// errors and webhook events that landed in the exception store are
// published; everything else is dropped. Delivery happens off the caller's
// goroutine so resolver and pipeline code never waits on the network.
//
// When no topic is configured NewSink returns a no-op sink.
package notifications
