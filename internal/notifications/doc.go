// Package notifications pushes recorder and merger milestones to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled. Dispatcher
// resolves the service from the live configuration on every event and adapts
// it to recorder, merger, and replication callbacks.
package notifications
