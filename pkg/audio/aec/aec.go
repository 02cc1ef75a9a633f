// Package aec removes acoustic echo, the far-end playback audio that couples
// back into the near-end microphone, from a capture stream.
//
// Two interchangeable strategies implement the [Processor] capability
// interface: the built-in [NLMS] adaptive filter, and the [EngineAdapter],
// which wraps an external acoustic-processing [Engine] behind a fixed
// delay-compensation buffer. The [Bypass] decorator wraps any Processor and
// passes audio through untouched while headphones are connected, since
// acoustic coupling is not physically possible through headphones.
//
// Callers must feed reference audio before the temporally corresponding
// capture audio. The reference-analysis and capture-processing paths of a
// single Processor are serialized internally; calls never block on I/O and
// are designed to complete within a hardware callback cycle.
package aec

import (
	"time"
)

// Processor is the contract any concrete echo canceller satisfies. It is
// consumed by the capture pipeline and exposed to the device-bypass policy.
type Processor interface {
	// Initialize prepares the canceller for the given stream format.
	// It must be called before any other method and reports unsupported
	// formats as an error so the pipeline never runs unfiltered audio
	// without the caller's knowledge.
	Initialize(sampleRate, channels int) error

	// FeedReference analyses far-end (playback) audio. ticks is the
	// hardware capture timestamp of the first sample.
	FeedReference(samples []int16, ticks uint64)

	// ProcessCapture removes the estimated echo from near-end samples in
	// place. Empty input is a no-op.
	ProcessCapture(samples []int16, ticks uint64)

	// Reset clears adaptive state, e.g. on a device change.
	Reset()

	// Cleanup releases resources. The processor is unusable afterwards
	// until re-initialised.
	Cleanup()

	// IsActive reports whether the canceller is initialised and
	// currently processing.
	IsActive() bool

	// HeadphonesConnected reports whether the output route makes
	// acoustic echo impossible. Concrete cancellers without route
	// awareness return false; the [Bypass] decorator supplies it.
	HeadphonesConnected() bool

	// Stats returns processing counters for diagnostics.
	Stats() Stats
}

// Stats describes a canceller's activity since the last reset.
type Stats struct {
	// FramesProcessed counts capture blocks run through the canceller.
	FramesProcessed uint64

	// EchoLikely indicates residual echo is probably still present in
	// the output.
	EchoLikely bool
}

// Metrics is the sink cancellers report to. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	// ReferenceFed is called after reference samples are analysed.
	ReferenceFed(samples int)

	// CaptureProcessed is called after a capture block is processed.
	CaptureProcessed(elapsed time.Duration, samples int)
}

// NopMetrics is a Metrics implementation that discards everything.
type NopMetrics struct{}

func (NopMetrics) ReferenceFed(int)                    {}
func (NopMetrics) CaptureProcessed(time.Duration, int) {}

// Passthrough is a Processor that performs no echo cancellation. It is the
// caller-chosen degraded fallback when a real canceller fails to construct.
type Passthrough struct {
	active bool
}

func (p *Passthrough) Initialize(sampleRate, channels int) error {
	p.active = true
	return nil
}

func (p *Passthrough) FeedReference([]int16, uint64)  {}
func (p *Passthrough) ProcessCapture([]int16, uint64) {}
func (p *Passthrough) Reset()                         {}
func (p *Passthrough) Cleanup()                       { p.active = false }
func (p *Passthrough) IsActive() bool                 { return p.active }
func (p *Passthrough) HeadphonesConnected() bool      { return false }
func (p *Passthrough) Stats() Stats                   { return Stats{} }
