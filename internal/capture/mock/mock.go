// Package mock provides a scripted capture backend for tests.
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/aurisync/internal/capture"
)

// Backend is an in-memory capture.Backend. Tests open streams through it and
// then drive audio into the pipeline with [Backend.Emit].
type Backend struct {
	mu sync.Mutex

	// InitErr, when set, is returned by Initialize.
	InitErr error

	// OpenErr, when set, is returned by OpenStream.
	OpenErr error

	// Headphones is returned by HeadphonesConnected.
	Headphones bool

	initialized bool
	terminated  bool
	streams     []*Stream
}

// Initialize records initialisation.
func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InitErr != nil {
		return b.InitErr
	}
	b.initialized = true
	b.terminated = false
	return nil
}

// Terminate records termination.
func (b *Backend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminated = true
	return nil
}

// Terminated reports whether Terminate has been called.
func (b *Backend) Terminated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.terminated
}

// OpenStream registers a scripted stream.
func (b *Backend) OpenStream(cfg capture.StreamConfig, fn capture.SampleFunc) (capture.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, errors.New("mock backend not initialized")
	}
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	s := &Stream{cfg: cfg, fn: fn}
	b.streams = append(b.streams, s)
	return s, nil
}

// HeadphonesConnected returns the scripted headphone state.
func (b *Backend) HeadphonesConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Headphones
}

// SetHeadphones flips the scripted headphone state mid-test.
func (b *Backend) SetHeadphones(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Headphones = on
}

// Emit delivers one block on every started stream matching loopback.
// It calls the stream callbacks synchronously on the caller's goroutine.
func (b *Backend) Emit(loopback bool, samples []int16, ticks uint64) {
	b.mu.Lock()
	streams := make([]*Stream, len(b.streams))
	copy(streams, b.streams)
	b.mu.Unlock()

	for _, s := range streams {
		if s.cfg.Loopback == loopback && s.Started() {
			s.fn(samples, ticks)
		}
	}
}

// Streams returns every stream opened so far.
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Stream, len(b.streams))
	copy(out, b.streams)
	return out
}

// Stream is a scripted capture.Stream.
type Stream struct {
	mu      sync.Mutex
	cfg     capture.StreamConfig
	fn      capture.SampleFunc
	started bool
	closed  bool
}

// Config returns the StreamConfig the stream was opened with.
func (s *Stream) Config() capture.StreamConfig {
	return s.cfg
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stream closed")
	}
	s.started = true
	return nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

// Started reports whether the stream is currently delivering audio.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
