// Package preflight provides readiness checks for the filesystem paths and
// external services gamevault depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to start when the data
//     directory is unusable. Catalog failures are logged but not fatal so
//     cached libraries stay readable during an outage.
//   - The CLI "gamevault status" command renders every Result as a table.
package preflight
