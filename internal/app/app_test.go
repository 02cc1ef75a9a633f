package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/aurisync/internal/app"
	capturemock "github.com/MrWong99/aurisync/internal/capture/mock"
	"github.com/MrWong99/aurisync/internal/config"
	aecmock "github.com/MrWong99/aurisync/pkg/audio/aec/mock"
)

// testConfig returns a config with a 10ms frame so tests push little audio.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.FrameSizeMS = 10
	cfg.Sync.ToleranceMS = 5
	cfg.Sync.MaxBufferMS = 100
	return cfg
}

func tone(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// waitForStreams blocks until both capture streams have started.
func waitForStreams(t *testing.T, backend *capturemock.Backend) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		started := len(backend.Streams()) > 0
		for _, s := range backend.Streams() {
			started = started && s.Started()
		}
		if started {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("streams never started")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNew_OpensBothStreams(t *testing.T) {
	backend := &capturemock.Backend{}
	a, err := app.New(testConfig(), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	streams := backend.Streams()
	if len(streams) != 2 {
		t.Fatalf("streams opened: got %d, want 2", len(streams))
	}
	if streams[0].Config().Loopback || !streams[1].Config().Loopback {
		t.Error("expected a near-end stream first and a loopback stream second")
	}
}

func TestNew_EngineModeWithoutEngine(t *testing.T) {
	cfg := testConfig()
	cfg.AEC.Mode = config.AECModeEngine
	cfg.AEC.Engine = "external"

	_, err := app.New(cfg, &capturemock.Backend{})
	if err == nil {
		t.Fatal("expected error for engine mode without an injected engine")
	}
}

func TestRun_DeliversAlignedFrames(t *testing.T) {
	cfg := testConfig()
	backend := &capturemock.Backend{}
	proc := &aecmock.Processor{}
	frames := make(chan app.SyncFrame, 16)

	a, err := app.New(cfg, backend,
		app.WithProcessor(proc),
		app.WithFrameHandler(func(f app.SyncFrame) { frames <- f }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	waitForStreams(t, backend)

	// One 10ms frame on each stream, same capture time: a both-sides match.
	frameSamples := cfg.Audio.FrameSizeSamples()
	ticks := uint64(time.Second)
	backend.Emit(true, tone(frameSamples, 300), ticks)
	backend.Emit(false, tone(frameSamples, 100), ticks)

	select {
	case f := <-frames:
		if !f.HasNear || !f.HasFar {
			t.Errorf("expected both sides present, got near=%v far=%v", f.HasNear, f.HasFar)
		}
		if f.Ticks != ticks {
			t.Errorf("frame ticks: got %d, want %d", f.Ticks, ticks)
		}
		if f.NearLevel <= 0 || f.FarLevel <= 0 {
			t.Errorf("levels not computed: near %v, far %v", f.NearLevel, f.FarLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no aligned frame delivered")
	}

	// Reference must reach the canceller before the capture side.
	if len(proc.RefBlocks) != 1 || len(proc.CapBlocks) != 1 {
		t.Fatalf("canceller calls: ref %d, cap %d, want 1 each", len(proc.RefBlocks), len(proc.CapBlocks))
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run returned %v on clean cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_FeedsCancellerInSubBlocks(t *testing.T) {
	// Frames longer than 10ms must reach the canceller as interleaved
	// 10ms reference/capture pairs, never as one oversized block.
	cfg := testConfig()
	cfg.Audio.FrameSizeMS = 20
	backend := &capturemock.Backend{}
	proc := &aecmock.Processor{}
	frames := make(chan app.SyncFrame, 4)

	a, err := app.New(cfg, backend,
		app.WithProcessor(proc),
		app.WithFrameHandler(func(f app.SyncFrame) { frames <- f }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()
	waitForStreams(t, backend)

	frameSamples := cfg.Audio.FrameSizeSamples()
	ticks := uint64(time.Second)
	backend.Emit(true, tone(frameSamples, 300), ticks)
	backend.Emit(false, tone(frameSamples, 100), ticks)

	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no aligned frame delivered")
	}

	subBlock := cfg.Audio.SampleRate / 100
	wantBlocks := frameSamples / subBlock
	if len(proc.RefBlocks) != wantBlocks || len(proc.CapBlocks) != wantBlocks {
		t.Fatalf("canceller blocks: ref %d, cap %d, want %d each", len(proc.RefBlocks), len(proc.CapBlocks), wantBlocks)
	}
	for i := range proc.CapBlocks {
		if len(proc.RefBlocks[i]) != subBlock || len(proc.CapBlocks[i]) != subBlock {
			t.Errorf("block %d sizes: ref %d, cap %d, want %d", i, len(proc.RefBlocks[i]), len(proc.CapBlocks[i]), subBlock)
		}
	}

	cancel()
	<-runDone
}

func TestApplyDiff_TogglesBypass(t *testing.T) {
	cfg := testConfig()
	backend := &capturemock.Backend{Headphones: true}
	proc := &aecmock.Processor{}

	a, err := app.New(cfg, backend, app.WithProcessor(proc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	old := config.Default()
	updated := config.Default()
	updated.AEC.BypassOnHeadphones = false
	a.ApplyDiff(config.Diff(old, updated))
	// No assertion beyond not panicking: forwarding behaviour is covered
	// by the Bypass unit tests.
}

func TestShutdown_TearsDownInOrder(t *testing.T) {
	backend := &capturemock.Backend{}
	proc := &aecmock.Processor{}

	a, err := app.New(testConfig(), backend, app.WithProcessor(proc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for i, s := range backend.Streams() {
		if !s.Closed() {
			t.Errorf("stream %d not closed", i)
		}
	}
	if !proc.CleanedUp {
		t.Error("canceller not cleaned up")
	}
	if !backend.Terminated() {
		t.Error("backend not terminated")
	}

	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
