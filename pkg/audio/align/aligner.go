package align

import (
	"fmt"
	"sync"

	"github.com/MrWong99/aurisync/pkg/audio"
)

// accumulator converts variable-sized timestamped pushes into fixed-length
// frames for one stream. Owned by the aligner; only touched under its lock.
type accumulator struct {
	tag    audio.Tag
	carry  []int16 // samples not yet forming a complete frame
	anchor uint64  // derived capture ticks of carry[0], also the end of framed audio
	active bool    // the stream has delivered audio at least once
	queue  []Frame
}

// Aligner pairs near-end and far-end frames into AlignedFrames.
// Create one with [New]; the zero value is not usable.
type Aligner struct {
	mu sync.Mutex

	frameSize      int
	toleranceNanos uint64
	holdNanos      uint64 // how long a frame waits for a partner before draining one-sided
	maxFrames      int
	frameTicks     uint64 // duration of one frame in clock ticks
	clock          audio.HostClock
	metrics        Metrics

	near accumulator
	far  accumulator
	out  []AlignedFrame
}

// New validates cfg and returns a ready Aligner.
func New(cfg Config) (*Aligner, error) {
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("align: frame size must be positive, got %d", cfg.FrameSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("align: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Tolerance < 0 {
		return nil, fmt.Errorf("align: tolerance must not be negative, got %v", cfg.Tolerance)
	}
	if cfg.MaxBuffer <= 0 {
		return nil, fmt.Errorf("align: max buffer must be positive, got %v", cfg.MaxBuffer)
	}
	clock := cfg.Clock
	if clock == (audio.HostClock{}) {
		clock = audio.IdentityClock
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	frameDurNanos := uint64(cfg.FrameSize) * 1e9 / uint64(cfg.SampleRate)
	maxFrames := int(uint64(cfg.MaxBuffer.Nanoseconds()) / frameDurNanos)
	if maxFrames < 1 {
		maxFrames = 1
	}

	tolNanos := uint64(cfg.Tolerance.Nanoseconds())
	return &Aligner{
		frameSize:      cfg.FrameSize,
		toleranceNanos: tolNanos,
		// A partner frame whose timestamp is within tolerance can itself
		// complete up to one frame duration later on the other stream.
		holdNanos:  tolNanos + frameDurNanos,
		maxFrames:  maxFrames,
		frameTicks: clock.FrameTicks(cfg.FrameSize, cfg.SampleRate),
		clock:      clock,
		metrics:    metrics,
		near:       accumulator{tag: audio.TagNearEnd},
		far:        accumulator{tag: audio.TagFarEnd},
	}, nil
}

// Push feeds a run of samples captured at the given hardware ticks into the
// stream identified by tag, then attempts to pair completed frames. Empty
// pushes are a no-op. Push never blocks and is safe to call from a hardware
// callback thread.
func (a *Aligner) Push(tag audio.Tag, samples []int16, ticks uint64) {
	if len(samples) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	acc := &a.near
	if tag == audio.TagFarEnd {
		acc = &a.far
	}
	a.accumulate(acc, samples, ticks)
	a.tryMatch()
}

// accumulate appends samples to the stream's carry-over buffer and slices off
// complete frames, deriving each frame's timestamp from the anchor recorded
// when the carry-over buffer was last empty.
func (a *Aligner) accumulate(acc *accumulator, samples []int16, ticks uint64) {
	if len(acc.carry) == 0 {
		acc.anchor = ticks
	}
	acc.active = true
	acc.carry = append(acc.carry, samples...)

	for len(acc.carry) >= a.frameSize {
		frame := make([]int16, a.frameSize)
		copy(frame, acc.carry[:a.frameSize])
		acc.queue = append(acc.queue, Frame{Samples: frame, Ticks: acc.anchor})
		acc.carry = append(acc.carry[:0], acc.carry[a.frameSize:]...)

		// Remaining carried samples started one frame duration later.
		acc.anchor += a.frameTicks
		a.metrics.FrameCompleted(acc.tag)
	}

	for len(acc.queue) > a.maxFrames {
		acc.queue = acc.queue[1:]
		a.metrics.FrameDropped(acc.tag)
	}
}

// tryMatch pairs the front frames of the two queues while both are non-empty,
// then drains frames whose pairing window has closed. A completed frame is
// held back until the shared timeline has advanced more than a tolerance plus
// one frame duration past its timestamp, so a partner completing slightly
// later on the other stream can still pair with it. Caller must hold the
// lock.
func (a *Aligner) tryMatch() {
	for len(a.near.queue) > 0 && len(a.far.queue) > 0 {
		nf := a.near.queue[0]
		ff := a.far.queue[0]
		tNear := a.clock.Nanos(nf.Ticks)
		tFar := a.clock.Nanos(ff.Ticks)

		var diff uint64
		if tNear > tFar {
			diff = tNear - tFar
		} else {
			diff = tFar - tNear
		}

		switch {
		case diff <= a.toleranceNanos:
			ticks := nf.Ticks
			if ff.Ticks < ticks {
				ticks = ff.Ticks
			}
			a.emit(AlignedFrame{
				Near: nf.Samples, Far: ff.Samples,
				Ticks: ticks, HasNear: true, HasFar: true,
			}, MatchBoth)
			a.near.queue = a.near.queue[1:]
			a.far.queue = a.far.queue[1:]

		case tNear < tFar:
			// Near is stale; emit it alone rather than waiting.
			a.emit(AlignedFrame{Near: nf.Samples, Ticks: nf.Ticks, HasNear: true}, MatchNearOnly)
			a.near.queue = a.near.queue[1:]

		default:
			a.emit(AlignedFrame{Far: ff.Samples, Ticks: ff.Ticks, HasFar: true}, MatchFarOnly)
			a.far.queue = a.far.queue[1:]
		}
	}

	horizon := a.progressNanos()
	a.drainExpired(&a.near, horizon, MatchNearOnly)
	a.drainExpired(&a.far, horizon, MatchFarOnly)

	for len(a.out) > a.maxFrames {
		a.out = a.out[1:]
		a.metrics.AlignedDropped()
	}
}

// progressNanos returns the end of framed audio on whichever stream has
// advanced furthest. Both streams share one timebase, so this is how far the
// capture timeline has provably moved.
func (a *Aligner) progressNanos() uint64 {
	var p uint64
	if a.near.active {
		p = a.clock.Nanos(a.near.anchor)
	}
	if a.far.active {
		if fp := a.clock.Nanos(a.far.anchor); fp > p {
			p = fp
		}
	}
	return p
}

// drainExpired emits head frames one-sided once the timeline has moved past
// their hold window; no within-tolerance partner can complete for those
// anymore. This is what keeps a one-sided stream flowing when the other
// source stops producing.
func (a *Aligner) drainExpired(acc *accumulator, horizon uint64, kind MatchKind) {
	for len(acc.queue) > 0 {
		f := acc.queue[0]
		if horizon <= a.clock.Nanos(f.Ticks)+a.holdNanos {
			return
		}
		frame := AlignedFrame{Ticks: f.Ticks}
		if kind == MatchNearOnly {
			frame.Near, frame.HasNear = f.Samples, true
		} else {
			frame.Far, frame.HasFar = f.Samples, true
		}
		a.emit(frame, kind)
		acc.queue = acc.queue[1:]
	}
}

func (a *Aligner) emit(frame AlignedFrame, kind MatchKind) {
	a.out = append(a.out, frame)
	a.metrics.AlignedEmitted(kind)
}

// TryRetrieve pops the oldest AlignedFrame. The second return is false when
// no frame is available. Non-blocking.
func (a *Aligner) TryRetrieve() (AlignedFrame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.out) == 0 {
		return AlignedFrame{}, false
	}
	frame := a.out[0]
	a.out = a.out[1:]
	return frame, true
}

// PendingFrameCount reports how many aligned frames are waiting to be
// retrieved.
func (a *Aligner) PendingFrameCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.out)
}

// Reset clears all carry-over buffers, anchor timestamps, per-stream queues
// and the output queue. Use on device changes or stream restarts.
func (a *Aligner) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.near = accumulator{tag: audio.TagNearEnd}
	a.far = accumulator{tag: audio.TagFarEnd}
	a.out = nil
}
