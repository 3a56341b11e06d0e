// Package services defines shared utilities consumed by the recorder, merger,
// and replication components.
//
// Key responsibilities:
//   - Context helpers that stamp source names, session IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is regardless of where they were raised.
package services
