// Package merger assembles queued low-power segment batches into final
// recordings.
//
// A pass snapshots the queue, concatenates each batch losslessly with the
// configured ffmpeg binary, and removes every item it attempted. Successful
// batches have their segment directory deleted; failed batches keep it on disk
// for manual recovery. Passes are serialized.
//
// SmartTrigger is a recorder listener that runs a pass when the last active
// low-power session ends.
package merger
