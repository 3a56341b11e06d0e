// Package daemon coordinates the long-running streamkeep process.
//
// It wires configuration, the SQLite-backed source registry and segment
// queue, the recording controller, the liveness monitor, the merger with its
// smart and scheduled triggers, replication, and metrics into a single
// lifecycle with flock-based locking to prevent multiple instances. The
// control operations exposed over IPC live here as plain methods.
//
// Keep orchestration logic here: capture, merging, and replication details
// belong to their own packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
