package aec

import (
	"fmt"
	"sync"
	"time"
)

// Stability guards. Both clamps apply to every processed sample and are hard
// invariants, not recovery paths: the error clamp bounds the output, the
// weight clamp prevents filter divergence. Values operate on samples
// normalised to [-1, 1).
const (
	errorClamp     = 2.0
	weightClamp    = 1.5
	regularization = 1e-3 // keeps the NLMS step finite when the reference is near silence

	sampleScale = 1.0 / 32768.0
)

// NLMSConfig parametrises the built-in adaptive filter.
type NLMSConfig struct {
	// FilterLength is the number of taps, i.e. the longest echo tail the
	// filter can model, in samples. Default 2048 (~42ms at 48kHz).
	FilterLength int

	// LearningRate is the NLMS step scale mu, 0 < mu < 2. Default 0.05.
	LearningRate float64

	// Metrics receives processing events. Defaults to [NopMetrics].
	Metrics Metrics
}

// NLMS is the built-in normalized least-mean-squares echo canceller.
//
// It keeps a circular history of the most recent reference samples and a
// weight vector of the same length, updating every weight on every capture
// sample. Normalising the adaptation step by instantaneous reference power
// gives stable convergence regardless of playback volume, at O(FilterLength)
// cost per sample.
//
// The canceller has two states: idle (no reference history yet, capture
// passes through unmodified) and adapting. Reset returns it to idle.
type NLMS struct {
	mu      sync.Mutex
	cfg     NLMSConfig
	metrics Metrics

	initialized bool
	primed      bool // left idle until the first reference sample arrives

	weights []float64
	ref     []float64 // circular reference history, normalised samples
	pos     int       // next write position in ref

	frames uint64
	emaIn  float64 // smoothed capture power, for the residual-echo hint
	emaOut float64 // smoothed output power
}

// NewNLMS returns an uninitialised canceller; call Initialize before use.
func NewNLMS(cfg NLMSConfig) *NLMS {
	if cfg.FilterLength == 0 {
		cfg.FilterLength = 2048
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.05
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &NLMS{cfg: cfg, metrics: metrics}
}

// Initialize allocates the filter state. The built-in canceller is mono only.
func (n *NLMS) Initialize(sampleRate, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("aec: sample rate must be positive, got %d", sampleRate)
	}
	if channels != 1 {
		return fmt.Errorf("aec: built-in NLMS canceller supports mono only, got %d channels", channels)
	}
	if n.cfg.FilterLength <= 0 {
		return fmt.Errorf("aec: filter length must be positive, got %d", n.cfg.FilterLength)
	}
	if n.cfg.LearningRate <= 0 || n.cfg.LearningRate >= 2 {
		return fmt.Errorf("aec: learning rate must be in (0, 2), got %g", n.cfg.LearningRate)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.weights = make([]float64, n.cfg.FilterLength)
	n.ref = make([]float64, n.cfg.FilterLength)
	n.pos = 0
	n.primed = false
	n.frames = 0
	n.emaIn, n.emaOut = 0, 0
	n.initialized = true
	return nil
}

// FeedReference writes far-end samples into the circular reference history.
func (n *NLMS) FeedReference(samples []int16, _ uint64) {
	if len(samples) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.initialized {
		return
	}
	for _, s := range samples {
		n.ref[n.pos] = float64(s) * sampleScale
		n.pos = (n.pos + 1) % len(n.ref)
	}
	n.primed = true
	n.metrics.ReferenceFed(len(samples))
}

// ProcessCapture removes the estimated echo from samples in place. While
// idle (no reference fed yet) the block passes through unchanged, since adapting
// against an all-zero reference would blow up the normalised step.
//
// Blocks longer than the filter are processed in filter-length sub-blocks;
// the circular history can only position a reference window for a run no
// longer than itself.
func (n *NLMS) ProcessCapture(samples []int16, _ uint64) {
	if len(samples) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.initialized || !n.primed {
		return
	}

	start := time.Now()
	taps := len(n.weights)
	var inPow, outPow float64

	for off := 0; off < len(samples); off += taps {
		end := off + taps
		if end > len(samples) {
			end = len(samples)
		}
		ip, op := n.processBlock(samples[off:end])
		inPow += ip
		outPow += op
	}

	blockLen := float64(len(samples))
	const alpha = 0.05
	n.emaIn = (1-alpha)*n.emaIn + alpha*inPow/blockLen
	n.emaOut = (1-alpha)*n.emaOut + alpha*outPow/blockLen
	n.frames++
	n.metrics.CaptureProcessed(time.Since(start), len(samples))
}

// processBlock runs the per-sample NLMS update over one block of at most
// filter-length samples. Caller must hold the lock.
func (n *NLMS) processBlock(samples []int16) (inPow, outPow float64) {
	taps := len(n.weights)

	for i := range samples {
		in := float64(samples[i]) * sampleScale
		inPow += in * in

		// The reference window for capture sample i ends at the history
		// position aligned with it: the reference block covering this
		// capture block was analysed just before, so the block's first
		// sample lines up pos-len(samples) back from the write cursor.
		base := n.pos - len(samples) + i

		var estimate, power float64
		for j := 0; j < taps; j++ {
			x := n.ref[floorMod(base-j, taps)]
			estimate += n.weights[j] * x
			power += x * x
		}

		e := in - estimate
		if e > errorClamp {
			e = errorClamp
		} else if e < -errorClamp {
			e = -errorClamp
		}

		step := n.cfg.LearningRate * e / (regularization + power)
		for j := 0; j < taps; j++ {
			w := n.weights[j] + step*n.ref[floorMod(base-j, taps)]
			if w > weightClamp {
				w = weightClamp
			} else if w < -weightClamp {
				w = -weightClamp
			}
			n.weights[j] = w
		}

		outPow += e * e
		samples[i] = clampToInt16(e / sampleScale)
	}
	return inPow, outPow
}

// Reset zeroes the weights and reference history, returning to idle.
func (n *NLMS) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.weights {
		n.weights[i] = 0
	}
	for i := range n.ref {
		n.ref[i] = 0
	}
	n.pos = 0
	n.primed = false
	n.frames = 0
	n.emaIn, n.emaOut = 0, 0
}

// Cleanup releases the filter state.
func (n *NLMS) Cleanup() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.weights = nil
	n.ref = nil
	n.initialized = false
	n.primed = false
}

// IsActive reports whether the canceller is initialised.
func (n *NLMS) IsActive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initialized
}

// HeadphonesConnected always reports false; route detection is supplied by
// the [Bypass] decorator.
func (n *NLMS) HeadphonesConnected() bool { return false }

// Stats reports frames processed and a residual-echo hint based on how much
// signal power the filter is currently removing.
func (n *NLMS) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	const noiseFloor = 1e-6
	return Stats{
		FramesProcessed: n.frames,
		EchoLikely:      n.primed && n.emaIn > noiseFloor && n.emaOut > 0.5*n.emaIn,
	}
}

// floorMod returns i modulo m with a non-negative result.
func floorMod(i, m int) int {
	i %= m
	if i < 0 {
		i += m
	}
	return i
}

func clampToInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
