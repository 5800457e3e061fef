package convert

import "time"

// Default converter settings.
const (
	DefaultBinary         = "ffmpeg"
	DefaultTimeout        = 20 * time.Second
	DefaultMinOutputBytes = 1024
	waitDelay             = 2 * time.Second
	maxStderrBytes        = 2048
)

// corruptInputMarker is what ffmpeg prints when it cannot parse the input.
const corruptInputMarker = "Invalid data found"

// Profile selects how the input container is interpreted.
type Profile int

const (
	// Auto lets the converter sniff the container (uploads).
	Auto Profile = iota
	// Stream forces the WebM/Opus demuxer (realtime fragments).
	Stream
)

func (p Profile) String() string {
	if p == Stream {
		return "stream"
	}
	return "auto"
}
