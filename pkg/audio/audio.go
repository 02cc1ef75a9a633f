// Package audio defines the shared types for the aurisync capture pipeline:
// stream tags, hardware clock conversion, and small PCM sample utilities.
//
// Samples are signed 16-bit PCM throughout the pipeline. Timestamps are
// opaque monotonic hardware ticks; a [HostClock] converts them to nanoseconds
// using the scale factor supplied by the platform at construction.
package audio

// Tag identifies which of the two capture streams a chunk or frame belongs to.
type Tag int

const (
	// TagNearEnd is the microphone-side (local) stream.
	TagNearEnd Tag = iota

	// TagFarEnd is the system-playback loopback stream whose acoustic
	// leakage into the microphone is the echo being removed.
	TagFarEnd
)

// String returns the human-readable name of the stream tag.
func (t Tag) String() string {
	switch t {
	case TagNearEnd:
		return "near_end"
	case TagFarEnd:
		return "far_end"
	default:
		return "unknown"
	}
}
