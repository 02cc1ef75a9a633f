package audio

import "fmt"

// HostClock converts opaque monotonic hardware ticks to nanoseconds.
//
// Capture hardware stamps buffers with a platform-specific tick counter
// (mach host time on macOS, a stream-clock sample count elsewhere). The tick
// rate is never assumed; it is expressed as a numerator/denominator pair
// supplied once at construction, exactly as the platform reports it.
type HostClock struct {
	scale float64 // nanoseconds per tick
}

// NewHostClock returns a clock that converts ticks to nanoseconds by
// multiplying with numer/denom. denom must be non-zero.
func NewHostClock(numer, denom uint32) (HostClock, error) {
	if denom == 0 {
		return HostClock{}, fmt.Errorf("audio: host clock denominator must be non-zero")
	}
	return HostClock{scale: float64(numer) / float64(denom)}, nil
}

// IdentityClock is a clock whose ticks already are nanoseconds. Used on
// platforms that deliver nanosecond timestamps directly, and in tests.
var IdentityClock = HostClock{scale: 1}

// Nanos converts a tick count to nanoseconds.
func (c HostClock) Nanos(ticks uint64) uint64 {
	return uint64(float64(ticks) * c.scale)
}

// Ticks converts a nanosecond duration to ticks, rounding down.
func (c HostClock) Ticks(nanos uint64) uint64 {
	return uint64(float64(nanos) / c.scale)
}

// FrameTicks returns the duration of one frame of frameSize samples at
// sampleRate, expressed in ticks. Used to propagate a derived timestamp
// forward across frame boundaries.
func (c HostClock) FrameTicks(frameSize, sampleRate int) uint64 {
	nanos := uint64(frameSize) * 1e9 / uint64(sampleRate)
	return c.Ticks(nanos)
}
