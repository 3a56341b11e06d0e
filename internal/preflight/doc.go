// Package preflight provides readiness checks for the filesystem paths,
// binaries, and replication targets streamkeep depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure. Failures are
//     not fatal; a missing target only affects replication.
//   - The CLI "streamkeep status" command renders the same results.
//
// Each target check is gated by its config toggle. Disabled targets are skipped.
package preflight
