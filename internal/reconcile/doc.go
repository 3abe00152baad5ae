// Package reconcile re-runs a user's unresolved backlog against the current
// catalog and reports what moved.
//
// A pass snapshots both queues, resolves every entry with bounded
// concurrency, and tallies transitions. Per-entry failures are counted and
// the pass continues; authentication or configuration failures cancel it
// and return the partial report. Scheduler repeats the pass for every known
// user on an interval.
package reconcile
