package aec

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Engine is the contract for an external acoustic-processing engine that
// performs its own echo estimation internally. Engines consume fixed 10ms
// frames; the [EngineAdapter] handles chunking and delay compensation so an
// Engine implementation stays trivial to bind.
type Engine interface {
	// Initialize prepares the engine for the stream format.
	Initialize(sampleRate, channels int) error

	// AnalyzeRender feeds one reference (playback) frame.
	AnalyzeRender(frame []int16)

	// ProcessFrame removes echo from one capture frame in place.
	ProcessFrame(frame []int16)

	// SetDelayHint tells the engine the residual reference/capture skew
	// it should assume, on top of whatever it estimates itself.
	SetDelayHint(d time.Duration)

	// ResidualEcho reports the engine's own estimate of remaining echo
	// in its output, in [0, 1]. Engines without the measurement return 0.
	ResidualEcho() float64

	// Reset clears the engine's adaptive state.
	Reset()

	// Close releases engine resources.
	Close() error
}

// AdapterConfig parametrises an [EngineAdapter].
type AdapterConfig struct {
	// MicDelay is how much capture audio is held back before submission
	// to the engine, guaranteeing the matching reference audio has been
	// analysed first. Zero holds nothing back: capture frames reach the
	// engine as soon as they complete.
	MicDelay time.Duration

	// DelayHint is forwarded to [Engine.SetDelayHint] before every
	// processed frame. Zero delegates all delay estimation to the
	// engine itself.
	DelayHint time.Duration

	// Metrics receives processing events. Defaults to [NopMetrics].
	Metrics Metrics
}

// EngineAdapter adapts an external [Engine] to the [Processor] capability
// interface, inserting a fixed-size delay buffer ahead of capture
// processing.
//
// Incoming capture samples are queued; once the queue holds at least
// delay-target plus one engine frame, frames are drained from the front,
// processed synchronously, and appended to a pending-output queue. Public
// ProcessCapture calls copy as many already-processed samples as are
// available and zero-fill any shortfall, so stream start produces a bounded
// warm-up silence equal to the configured delay rather than unprocessed
// audio.
//
// A single lock serializes the reference and capture paths; the engine is
// never entered concurrently.
type EngineAdapter struct {
	mu      sync.Mutex
	engine  Engine
	cfg     AdapterConfig
	metrics Metrics

	initialized bool
	frameSize   int // engine frame, sampleRate/100
	delayTarget int // MicDelay in samples

	refCarry []int16 // reference samples not yet forming an engine frame
	delayBuf []int16 // capture samples held back for delay compensation
	pending  []int16 // processed samples awaiting pickup

	frames uint64
}

// NewEngineAdapter wraps engine with delay compensation.
func NewEngineAdapter(engine Engine, cfg AdapterConfig) *EngineAdapter {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &EngineAdapter{engine: engine, cfg: cfg, metrics: metrics}
}

// Initialize prepares the engine and sizes the delay buffer.
func (a *EngineAdapter) Initialize(sampleRate, channels int) error {
	if sampleRate < 100 {
		return fmt.Errorf("aec: sample rate %d too low for 10ms engine frames", sampleRate)
	}
	if a.cfg.MicDelay < 0 {
		return fmt.Errorf("aec: mic delay must not be negative, got %v", a.cfg.MicDelay)
	}
	if err := a.engine.Initialize(sampleRate, channels); err != nil {
		return fmt.Errorf("aec: initialize engine: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.frameSize = sampleRate / 100
	a.delayTarget = int(int64(sampleRate) * a.cfg.MicDelay.Milliseconds() / 1000)
	a.refCarry = nil
	a.delayBuf = nil
	a.pending = nil
	a.frames = 0
	a.initialized = true
	return nil
}

// FeedReference chunks reference audio into engine frames and analyses each
// complete frame immediately.
func (a *EngineAdapter) FeedReference(samples []int16, _ uint64) {
	if len(samples) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return
	}

	a.refCarry = append(a.refCarry, samples...)
	for len(a.refCarry) >= a.frameSize {
		a.engine.AnalyzeRender(a.refCarry[:a.frameSize])
		a.refCarry = append(a.refCarry[:0], a.refCarry[a.frameSize:]...)
	}
	a.metrics.ReferenceFed(len(samples))
}

// ProcessCapture queues the capture samples behind the delay buffer, runs
// every frame that has cleared the delay through the engine, then fills the
// caller's buffer with processed output, zero-filling any shortfall.
func (a *EngineAdapter) ProcessCapture(samples []int16, _ uint64) {
	if len(samples) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return
	}

	start := time.Now()
	a.delayBuf = append(a.delayBuf, samples...)
	a.processDelayed()

	n := copy(samples, a.pending)
	a.pending = append(a.pending[:0], a.pending[n:]...)
	for i := n; i < len(samples); i++ {
		samples[i] = 0
	}
	a.metrics.CaptureProcessed(time.Since(start), len(samples))
}

// processDelayed drains complete frames that have cleared the delay target.
// Caller must hold the lock.
func (a *EngineAdapter) processDelayed() {
	for len(a.delayBuf) >= a.delayTarget+a.frameSize {
		frame := make([]int16, a.frameSize)
		copy(frame, a.delayBuf[:a.frameSize])
		a.delayBuf = append(a.delayBuf[:0], a.delayBuf[a.frameSize:]...)

		a.engine.SetDelayHint(a.cfg.DelayHint)
		a.engine.ProcessFrame(frame)
		a.pending = append(a.pending, frame...)
		a.frames++
	}

	// The pending queue is bounded: a stalled consumer loses the oldest
	// processed audio rather than growing without limit.
	if maxPending := a.delayTarget + 4*a.frameSize; len(a.pending) > maxPending {
		excess := len(a.pending) - maxPending
		a.pending = append(a.pending[:0], a.pending[excess:]...)
	}
}

// Reset clears the delay and output queues and the engine's adaptive state.
func (a *EngineAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refCarry = nil
	a.delayBuf = nil
	a.pending = nil
	a.frames = 0
	a.engine.Reset()
}

// Cleanup closes the engine.
func (a *EngineAdapter) Cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return
	}
	a.initialized = false
	if err := a.engine.Close(); err != nil {
		slog.Warn("aec: engine close failed", "err", err)
	}
}

// IsActive reports whether the adapter has an initialised engine.
func (a *EngineAdapter) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// HeadphonesConnected always reports false; route detection is supplied by
// the [Bypass] decorator.
func (a *EngineAdapter) HeadphonesConnected() bool { return false }

// Stats reports engine frames processed and the engine's residual-echo
// estimate.
func (a *EngineAdapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		FramesProcessed: a.frames,
		EchoLikely:      a.initialized && a.engine.ResidualEcho() > 0.5,
	}
}
