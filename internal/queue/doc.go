// Package queue persists completed-but-unmerged segment batches in SQLite.
//
// Low-power captures write numbered segment files into a per-session
// directory. When a session ends its Batch is enqueued, and the merger later
// drains the queue in id order. Each item is removed after a single merge
// attempt whether or not that attempt succeeded, so the queue never re-drives
// a failing batch; its directory is left on disk for manual recovery.
//
// Every mutation is a single SQL statement and is therefore atomic.
package queue
