// Package align turns two independently clocked capture streams into a single
// sequence of timestamp-aligned frames.
//
// Each stream (near-end microphone, far-end playback loopback) delivers
// irregularly sized sample chunks stamped with hardware capture ticks. A
// per-stream accumulator slices them into fixed-length frames with derived
// timestamps; the [Aligner] then pairs frames whose timestamps fall within a
// configured tolerance and emits [AlignedFrame] values downstream.
//
// The aligner never waits for a late partner frame: when the front frames of
// the two queues are further apart than the tolerance, the older one is
// emitted alone and dropped from consideration. This trades occasional
// desynchronisation for bounded latency and guarantees forward progress when
// one stream goes silent. All internal queues are bounded; overflow evicts
// the oldest entry silently (but counted via the [Metrics] sink).
//
// All methods are safe for concurrent use from multiple hardware callback
// contexts; a single mutex scoped to the aligner instance guards every queue,
// held only for the duration of the queue manipulation.
package align

import (
	"time"

	"github.com/MrWong99/aurisync/pkg/audio"
)

// Frame is a fixed-length run of samples plus the derived capture timestamp
// of its first sample, in hardware ticks. Immutable once finalised.
type Frame struct {
	Samples []int16
	Ticks   uint64
}

// AlignedFrame is the unit the aligner emits. At least one side is present.
// Ownership transfers to the caller on retrieval.
type AlignedFrame struct {
	// Near holds near-end (microphone) samples when HasNear is set.
	Near []int16

	// Far holds far-end (loopback) samples when HasFar is set.
	Far []int16

	// Ticks is the capture timestamp: the minimum of the two sides when
	// both are present.
	Ticks uint64

	HasNear bool
	HasFar  bool
}

// MatchKind classifies how an AlignedFrame was formed.
type MatchKind int

const (
	// MatchBoth means the two streams paired within tolerance.
	MatchBoth MatchKind = iota

	// MatchNearOnly means a near-end frame was emitted without a partner.
	MatchNearOnly

	// MatchFarOnly means a far-end frame was emitted without a partner.
	MatchFarOnly
)

// String returns the human-readable name of the match kind.
func (k MatchKind) String() string {
	switch k {
	case MatchBoth:
		return "both"
	case MatchNearOnly:
		return "near_only"
	case MatchFarOnly:
		return "far_only"
	default:
		return "unknown"
	}
}

// Metrics is the sink the aligner reports to. Implementations must be safe
// for concurrent use and must not block; they are called with the aligner
// lock held from hardware callback contexts.
type Metrics interface {
	// FrameCompleted is called when an accumulator finalises a frame.
	FrameCompleted(tag audio.Tag)

	// FrameDropped is called when a bounded per-stream queue evicts its
	// oldest frame.
	FrameDropped(tag audio.Tag)

	// AlignedEmitted is called when an AlignedFrame enters the output queue.
	AlignedEmitted(kind MatchKind)

	// AlignedDropped is called when the bounded output queue evicts its
	// oldest frame.
	AlignedDropped()
}

// NopMetrics is a Metrics implementation that discards everything.
type NopMetrics struct{}

func (NopMetrics) FrameCompleted(audio.Tag) {}
func (NopMetrics) FrameDropped(audio.Tag)   {}
func (NopMetrics) AlignedEmitted(MatchKind) {}
func (NopMetrics) AlignedDropped()          {}

// Config holds the construction-time parameters of an [Aligner]. All values
// are immutable for the lifetime of the instance; changing them requires a
// new aligner.
type Config struct {
	// FrameSize is the fixed output frame length in samples.
	FrameSize int

	// SampleRate in Hz.
	SampleRate int

	// Tolerance is the maximum timestamp difference for which two frames
	// are considered simultaneous. A difference exactly equal to the
	// tolerance still matches.
	Tolerance time.Duration

	// MaxBuffer bounds every internal queue: each holds at most
	// MaxBuffer / frame-duration frames.
	MaxBuffer time.Duration

	// Clock converts hardware ticks to nanoseconds. Defaults to
	// [audio.IdentityClock].
	Clock audio.HostClock

	// Metrics receives queue and pairing events. Defaults to [NopMetrics].
	Metrics Metrics
}
