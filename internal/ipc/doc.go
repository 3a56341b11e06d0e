// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Every daemon control operation has a request/response pair in types.go.
// Errors cross the wire as plain messages; callers that need to react to a
// specific failure compare against the messages the daemon produces.
package ipc
