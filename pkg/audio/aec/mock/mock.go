// Package mock provides test doubles for the aec package: a scriptable
// external [Engine] and a call-recording [Processor].
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/aurisync/pkg/audio/aec"
)

// Engine is a scriptable aec.Engine. The zero value is usable: ProcessFrame
// leaves frames unchanged unless ProcessFunc is set.
type Engine struct {
	mu sync.Mutex

	// InitErr, when set, is returned by Initialize.
	InitErr error

	// ProcessFunc, when set, is applied to each capture frame in place.
	ProcessFunc func(frame []int16)

	// Residual is returned by ResidualEcho.
	Residual float64

	// Recorded state.
	InitSampleRate int
	InitChannels   int
	RenderFrames   [][]int16
	Processed      [][]int16
	DelayHints     []time.Duration
	Resets         int
	Closed         bool
}

func (e *Engine) Initialize(sampleRate, channels int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InitErr != nil {
		return e.InitErr
	}
	e.InitSampleRate = sampleRate
	e.InitChannels = channels
	return nil
}

func (e *Engine) AnalyzeRender(frame []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	e.RenderFrames = append(e.RenderFrames, cp)
}

func (e *Engine) ProcessFrame(frame []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ProcessFunc != nil {
		e.ProcessFunc(frame)
	}
	cp := make([]int16, len(frame))
	copy(cp, frame)
	e.Processed = append(e.Processed, cp)
}

func (e *Engine) SetDelayHint(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DelayHints = append(e.DelayHints, d)
}

func (e *Engine) ResidualEcho() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Residual
}

func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Resets++
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}

// Processor is a call-recording aec.Processor for pipeline tests.
type Processor struct {
	mu sync.Mutex

	// InitErr, when set, is returned by Initialize.
	InitErr error

	// Headphones is returned by HeadphonesConnected.
	Headphones bool

	Initialized bool
	RefBlocks   [][]int16
	CapBlocks   [][]int16
	Resets      int
	CleanedUp   bool
}

var _ aec.Processor = (*Processor)(nil)

func (p *Processor) Initialize(sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.InitErr != nil {
		return p.InitErr
	}
	p.Initialized = true
	return nil
}

func (p *Processor) FeedReference(samples []int16, _ uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	p.RefBlocks = append(p.RefBlocks, cp)
}

func (p *Processor) ProcessCapture(samples []int16, _ uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	p.CapBlocks = append(p.CapBlocks, cp)
}

func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Resets++
}

func (p *Processor) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CleanedUp = true
	p.Initialized = false
}

func (p *Processor) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Initialized
}

func (p *Processor) HeadphonesConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Headphones
}

func (p *Processor) Stats() aec.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return aec.Stats{FramesProcessed: uint64(len(p.CapBlocks))}
}
