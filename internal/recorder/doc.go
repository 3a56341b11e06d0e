// Package recorder owns the lifecycle of capture sessions.
//
// At most one session exists per source name. Sessions move through
//
//	starting -> recording -> (stopping) -> completed | failed
//
// and live in an ActiveSet until their capture process has exited and
// post-processing has finished. Each session is supervised by its own
// goroutine, which runs exactly one finalization path whatever the exit
// cause: low-power batches are enqueued for merging, normal recordings are
// optionally replicated, and the session is then removed from the ActiveSet.
// Listeners receive a SessionEnded event carrying the number of sessions that
// remain, which lets merge policies react to the set becoming empty.
package recorder
