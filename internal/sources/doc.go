// Package sources persists the registry of monitored live streams.
//
// A Source pairs a unique name with the address handed to the capture tool.
// Names double as file stems for recordings and segment batches, so Add
// rejects names that are not already filesystem-safe.
package sources
