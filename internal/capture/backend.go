// Package capture abstracts audio input devices behind a backend interface
// so the pipeline can run against real hardware or a scripted mock.
//
// Two streams feed the pipeline: the near-end microphone and a far-end
// loopback device carrying whatever the machine is playing back. Backends
// deliver mono int16 blocks with a hardware capture timestamp.
package capture

// SampleFunc receives one block of mono capture audio. ticks is the
// backend's monotonic capture timestamp of the first sample; blocks from
// both streams of one backend share the same timebase. Implementations must
// not retain samples past the call.
type SampleFunc func(samples []int16, ticks uint64)

// StreamConfig describes the stream a caller wants opened.
type StreamConfig struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels the device should be opened with. Multi-channel input is
	// downmixed to mono before delivery.
	Channels int

	// BufferSize is the preferred block size in frames per callback.
	BufferSize int

	// Loopback selects a playback-monitor input device instead of a
	// microphone. This is the far-end reference stream.
	Loopback bool
}

// Backend creates capture streams on some audio subsystem.
type Backend interface {
	// Initialize prepares the subsystem. Must be called once before
	// OpenStream.
	Initialize() error

	// Terminate releases the subsystem. All streams must be closed
	// first.
	Terminate() error

	// OpenStream opens a capture stream and registers fn to receive its
	// audio. The stream is created stopped.
	OpenStream(cfg StreamConfig, fn SampleFunc) (Stream, error)

	// HeadphonesConnected reports whether the current default output
	// route looks like headphones. Best effort; backends without route
	// information return false.
	HeadphonesConnected() bool
}

// Stream is one open capture stream.
type Stream interface {
	// Start begins delivering audio to the registered SampleFunc.
	Start() error

	// Stop pauses delivery. The stream can be started again.
	Stop() error

	// Close releases the stream. It must not be used afterwards.
	Close() error
}
