// Package scheduler fires a daily segment-queue pass at a configured
// wall-clock time.
//
// Scheduling is delegated to robfig/cron in local time. A missed fire, for
// example while the host is suspended, is skipped rather than caught up, and
// a fire that lands while the previous pass is still running is dropped.
package scheduler
