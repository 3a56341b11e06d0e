package capture

import "strconv"

// Request describes one capture subprocess invocation.
type Request struct {
	Address         string
	Quality         string
	Output          string
	LowPower        bool
	RetryStreams    int
	RetryMax        int
	SegmentTimeout  int
	SegmentAttempts int
}

// Args renders the command line for the capture tool. Segment timeout and
// attempt flags are only emitted in low-power mode.
func (r Request) Args() []string {
	args := []string{
		r.Address,
		r.Quality,
		"--output", r.Output,
		"--retry-streams", strconv.Itoa(r.RetryStreams),
		"--retry-max", strconv.Itoa(r.RetryMax),
	}
	if r.LowPower {
		args = append(args,
			"--hls-segment-timeout", strconv.Itoa(r.SegmentTimeout),
			"--hls-segment-attempts", strconv.Itoa(r.SegmentAttempts),
		)
	}
	return args
}
