// Package replication copies finished recordings to remote targets.
//
// Targets are built from the current configuration on every call, so edits
// made through the settings path take effect for the next artifact. Each
// enabled target is attempted once, in configuration order. A failure is
// logged and recorded in the Report and never prevents the remaining targets
// from running.
package replication
