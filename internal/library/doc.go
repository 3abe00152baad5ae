// Package library holds the per-collection read/write helpers over the
// document store: catalog digests, user libraries, the game-to-entry reverse
// index, the user index, and stored webhook failures.
//
// Update is the only way to mutate a user library. It serializes writers per
// user and keeps the reverse index in step with resolved entries.
package library
