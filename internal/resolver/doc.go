// Package resolver turns raw store entries into resolution outcomes and
// keeps them current as the catalog changes.
//
// Attempt is the pure decision: exact catalog IDs are fetched directly,
// storefront IDs are mapped through the catalog's external records, and
// everything else is ranked by title. Decide applies the auto-accept rule
// (top score above HighConfidence and ahead of the runner-up by MinGap).
//
// Resolve persists an attempt into the user's library. ApplyUpdate handles a
// catalog update: stale records are dropped by version, identity changes
// re-run every entry that points at the game with the new record forced
// into the candidate set, and cosmetic changes only refresh snapshots.
package resolver
