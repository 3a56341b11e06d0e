// Package monitor polls registered sources for liveness and starts captures
// for sources that come online.
//
// The loop runs as an explicit task: Start launches it, Stop cancels it and
// waits. Probe failures count as "not live". A failed tick backs off for the
// configured error delay instead of the normal interval.
package monitor
