// Package app wires the capture backend, stream aligner, and echo canceller
// into a running pipeline.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the consumer loop, and Shutdown tears everything
// down in order.
//
// For testing, inject mock implementations via functional options
// (WithProcessor, WithEngine, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aurisync/internal/capture"
	"github.com/MrWong99/aurisync/internal/config"
	"github.com/MrWong99/aurisync/internal/observe"
	"github.com/MrWong99/aurisync/pkg/audio"
	"github.com/MrWong99/aurisync/pkg/audio/aec"
	"github.com/MrWong99/aurisync/pkg/audio/align"
)

// SyncFrame is one aligned frame after echo cancellation, delivered to the
// frame handler. Near holds cleaned capture audio when HasNear is set.
type SyncFrame struct {
	align.AlignedFrame

	// NearLevel and FarLevel are the normalised RMS levels of the
	// respective sides, zero when the side is absent.
	NearLevel float64
	FarLevel  float64
}

// FrameHandler consumes pipeline output. It runs on the consumer goroutine,
// so it must not block for longer than a frame duration.
type FrameHandler func(SyncFrame)

// App owns all subsystem lifetimes and orchestrates the pipeline.
type App struct {
	cfg     *config.Config
	backend capture.Backend

	aligner   *align.Aligner
	processor aec.Processor
	bypass    *aec.Bypass
	engine    aec.Engine
	metrics   *observe.Metrics
	handler   FrameHandler

	near capture.Stream
	far  capture.Stream

	// wake is signalled after every push so the consumer drains promptly.
	wake chan struct{}

	running  atomic.Bool
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProcessor injects an echo canceller instead of constructing one from
// the config. The device-bypass wrapper is still applied around it.
func WithProcessor(p aec.Processor) Option {
	return func(a *App) { a.processor = p }
}

// WithEngine injects the external acoustic engine used when the config
// selects engine mode. Typically created via the config registry in main.
func WithEngine(e aec.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithMetrics injects the observability instruments. When absent, the
// pipeline runs with no-op sinks.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithFrameHandler registers the consumer of cleaned, aligned frames.
func WithFrameHandler(h FrameHandler) Option {
	return func(a *App) { a.handler = h }
}

// New creates an App by wiring all subsystems together. It initialises the
// capture backend, opens the near-end and far-end streams, and constructs
// aligner and canceller from cfg. The streams stay stopped until [App.Run].
func New(cfg *config.Config, backend capture.Backend, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if backend == nil {
		return nil, errors.New("app: nil capture backend")
	}

	a := &App{
		cfg:     cfg,
		backend: backend,
		wake:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(a)
	}

	var alignSink align.Metrics = align.NopMetrics{}
	var aecSink aec.Metrics = aec.NopMetrics{}
	if a.metrics != nil {
		alignSink = observe.NewAlignSink(a.metrics)
		aecSink = observe.NewAECSink(a.metrics)
	}

	aligner, err := align.New(align.Config{
		FrameSize:  cfg.Audio.FrameSizeSamples(),
		SampleRate: cfg.Audio.SampleRate,
		Tolerance:  cfg.Sync.Tolerance(),
		MaxBuffer:  cfg.Sync.MaxBuffer(),
		Metrics:    alignSink,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build aligner: %w", err)
	}
	a.aligner = aligner

	if a.processor == nil {
		p, err := buildProcessor(cfg.AEC, a.engine, aecSink)
		if err != nil {
			return nil, err
		}
		a.processor = p
	}

	// The bypass wrapper consults the backend's output route on every
	// block, so it is applied even around injected processors.
	a.bypass = aec.NewBypass(a.processor, backend.HeadphonesConnected, cfg.AEC.BypassOnHeadphones)
	a.processor = a.bypass

	if err := a.processor.Initialize(cfg.Audio.SampleRate, 1); err != nil {
		return nil, fmt.Errorf("app: initialize canceller: %w", err)
	}

	if err := a.openStreams(); err != nil {
		a.processor.Cleanup()
		return nil, err
	}

	slog.Info("pipeline assembled",
		"sample_rate", cfg.Audio.SampleRate,
		"frame_samples", cfg.Audio.FrameSizeSamples(),
		"tolerance", cfg.Sync.Tolerance(),
		"aec_mode", cfg.AEC.Mode,
	)
	return a, nil
}

// buildProcessor constructs the mode-selected echo canceller.
func buildProcessor(cfg config.AECConfig, engine aec.Engine, sink aec.Metrics) (aec.Processor, error) {
	switch cfg.Mode {
	case config.AECModeNLMS:
		return aec.NewNLMS(aec.NLMSConfig{
			FilterLength: cfg.FilterLength,
			LearningRate: cfg.LearningRate,
			Metrics:      sink,
		}), nil
	case config.AECModeEngine:
		if engine == nil {
			return nil, fmt.Errorf("app: aec mode engine needs an engine (WithEngine), none provided")
		}
		return aec.NewEngineAdapter(engine, aec.AdapterConfig{
			MicDelay:  cfg.MicDelay(),
			DelayHint: cfg.EngineDelayHint(),
			Metrics:   sink,
		}), nil
	case config.AECModeOff:
		return &aec.Passthrough{}, nil
	default:
		return nil, fmt.Errorf("app: unknown aec mode %q", cfg.Mode)
	}
}

// openStreams initialises the backend and opens both capture streams.
func (a *App) openStreams() error {
	if err := a.backend.Initialize(); err != nil {
		return fmt.Errorf("app: initialize backend: %w", err)
	}

	streamCfg := capture.StreamConfig{
		SampleRate: a.cfg.Audio.SampleRate,
		Channels:   a.cfg.Audio.Channels,
		// 10ms callbacks keep per-block work far below a frame.
		BufferSize: a.cfg.Audio.SampleRate / 100,
	}

	near, err := a.backend.OpenStream(streamCfg, func(samples []int16, ticks uint64) {
		a.aligner.Push(audio.TagNearEnd, samples, ticks)
		a.notify()
	})
	if err != nil {
		return fmt.Errorf("app: open near-end stream: %w", err)
	}
	a.near = near

	streamCfg.Loopback = true
	far, err := a.backend.OpenStream(streamCfg, func(samples []int16, ticks uint64) {
		a.aligner.Push(audio.TagFarEnd, samples, ticks)
		a.notify()
	})
	if err != nil {
		near.Close()
		return fmt.Errorf("app: open far-end stream: %w", err)
	}
	a.far = far

	return nil
}

// notify wakes the consumer without blocking the capture callback.
func (a *App) notify() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Run starts both capture streams and blocks consuming aligned frames until
// ctx is cancelled. It returns nil on clean cancellation.
func (a *App) Run(ctx context.Context) error {
	if err := a.near.Start(); err != nil {
		return fmt.Errorf("app: start near-end stream: %w", err)
	}
	if err := a.far.Start(); err != nil {
		a.near.Stop()
		return fmt.Errorf("app: start far-end stream: %w", err)
	}
	slog.Info("pipeline running")
	a.running.Store(true)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.consume(ctx) })
	err := g.Wait()
	a.running.Store(false)

	if e := a.near.Stop(); e != nil {
		slog.Warn("stopping near-end stream", "err", e)
	}
	if e := a.far.Stop(); e != nil {
		slog.Warn("stopping far-end stream", "err", e)
	}
	return err
}

// consume drains the aligner whenever new audio arrives.
func (a *App) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.wake:
		}
		for {
			frame, ok := a.aligner.TryRetrieve()
			if !ok {
				break
			}
			a.handleAligned(ctx, frame)
		}
	}
}

// handleAligned runs one aligned frame through the canceller and hands it to
// the frame handler. Both-sided frames are walked in 10ms sub-blocks with the
// reference side fed first, so the canceller's reference history always
// covers the capture samples it is cancelling, no matter how long the
// sync frame is relative to the canceller's own window.
func (a *App) handleAligned(ctx context.Context, frame align.AlignedFrame) {
	out := SyncFrame{AlignedFrame: frame}

	step := a.cfg.Audio.SampleRate / 100
	if step <= 0 {
		step = len(frame.Near)
	}
	switch {
	case frame.HasNear && frame.HasFar:
		for off := 0; off < len(frame.Near); off += step {
			end := off + step
			if end > len(frame.Near) {
				end = len(frame.Near)
			}
			a.processor.FeedReference(frame.Far[off:end], frame.Ticks)
			a.processor.ProcessCapture(frame.Near[off:end], frame.Ticks)
		}
	case frame.HasFar:
		a.processor.FeedReference(frame.Far, frame.Ticks)
	case frame.HasNear:
		a.processor.ProcessCapture(frame.Near, frame.Ticks)
	}

	if frame.HasFar {
		out.FarLevel = float64(audio.RMS(frame.Far))
	}
	if frame.HasNear {
		out.NearLevel = float64(audio.RMS(frame.Near))
	}

	if a.metrics != nil {
		a.metrics.RecordLevels(ctx, out.NearLevel, out.FarLevel)
		a.metrics.RecordPending(ctx, a.aligner.PendingFrameCount())
	}
	if a.handler != nil {
		a.handler(out)
	}
}

// ResetPipeline clears the aligner and the canceller's adaptive state, e.g.
// after a capture device change. The stream format is unchanged.
func (a *App) ResetPipeline() {
	a.aligner.Reset()
	a.processor.Reset()
	slog.Info("pipeline state reset")
}

// ApplyDiff applies hot-reloadable config changes to the running pipeline.
// Changes requiring a restart are logged and skipped.
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if d.BypassChanged {
		a.bypass.SetEnabled(d.NewBypass)
		slog.Info("bypass_on_headphones updated", "enabled", d.NewBypass)
	}
	if len(d.RestartNeeded) > 0 {
		slog.Warn("config changes need a restart to take effect", "fields", d.RestartNeeded)
	}
}

// Stats returns the canceller's counters.
func (a *App) Stats() aec.Stats {
	return a.processor.Stats()
}

// PendingFrames reports the aligned-frame backlog.
func (a *App) PendingFrames() int {
	return a.aligner.PendingFrameCount()
}

// Running reports whether the consumer loop is live. Used by the readiness
// check.
func (a *App) Running() bool {
	return a.running.Load()
}

// Shutdown closes streams and releases the backend. Safe to call more than
// once; respects the context deadline for the backend teardown.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		for _, s := range []capture.Stream{a.near, a.far} {
			if s == nil {
				continue
			}
			if err := s.Close(); err != nil {
				slog.Warn("closing stream", "err", err)
			}
		}

		a.processor.Cleanup()

		done := make(chan error, 1)
		go func() { done <- a.backend.Terminate() }()
		select {
		case err := <-done:
			if err != nil {
				shutdownErr = fmt.Errorf("app: terminate backend: %w", err)
			}
		case <-ctx.Done():
			shutdownErr = ctx.Err()
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
