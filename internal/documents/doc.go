// Package documents defines the persisted shapes of the resolution engine:
// raw store entries, catalog digests, ranked candidates, per-user libraries
// with their unresolved queues, field-level digest diffs, and stored webhook
// failures.
//
// A UserLibrary keeps resolved entries and both unresolved queues in one
// document, so a single write moves an entry between them and an entry is
// never in two places at once.
package documents
