// Package docstore is the narrow document-store contract used by the
// resolution engine: point reads, full-document writes, batch reads and
// deletes against named collections. Documents are opaque JSON bytes.
//
// The SQLite implementation is the durable store for the daemon and CLI.
// The memory implementation backs unit tests.
package docstore
