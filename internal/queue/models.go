package queue

import (
	"path/filepath"
	"time"
)

// TimestampLayout formats the per-session timestamp used in file names.
const TimestampLayout = "20060102_150405"

// ListFileName is the concat list written into each segments directory.
const ListFileName = "segments_list.txt"

// Batch describes the segment files produced by one low-power session.
type Batch struct {
	SegmentsDir   string    `json:"segments_dir"`
	FinalFilename string    `json:"final_filename"`
	Format        string    `json:"format"`
	StartTime     time.Time `json:"start_time"`
}

// NewBatch derives the directory, segment pattern, and final file name for a
// session of source name starting at start.
func NewBatch(segmentsRoot, name, format string, start time.Time) Batch {
	stem := name + "_" + start.Format(TimestampLayout)
	return Batch{
		SegmentsDir:   filepath.Join(segmentsRoot, stem),
		FinalFilename: stem + "." + format,
		Format:        format,
		StartTime:     start,
	}
}

// Stem returns the shared prefix of segment and final file names.
func (b Batch) Stem() string {
	return filepath.Base(b.SegmentsDir)
}

// SegmentPattern returns the output template handed to the capture tool.
func (b Batch) SegmentPattern() string {
	return filepath.Join(b.SegmentsDir, b.Stem()+"_segment_%03d."+b.Format)
}

// Timestamp returns the session timestamp in TimestampLayout.
func (b Batch) Timestamp() string {
	return b.StartTime.Format(TimestampLayout)
}

// Item is a queued batch awaiting merge.
type Item struct {
	ID         int64     `json:"id"`
	SourceName string    `json:"source_name"`
	Batch      Batch     `json:"batch"`
	Timestamp  string    `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}
