// Package logs reads the daemon log file for the `streamkeep logs` command.
//
// Tail returns the last N lines or everything after a byte offset, optionally
// keeping only lines that mention a given source, and can wait briefly for
// new output so the CLI can follow the file across repeated calls.
package logs
