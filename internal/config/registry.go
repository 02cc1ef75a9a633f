package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/aurisync/internal/capture"
	"github.com/MrWong99/aurisync/pkg/audio/aec"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: not registered")

// Registry maps names from the config file to constructor functions for
// capture backends and external AEC engines. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]func(AudioConfig) (capture.Backend, error)
	engines  map[string]func(AECConfig) (aec.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]func(AudioConfig) (capture.Backend, error)),
		engines:  make(map[string]func(AECConfig) (aec.Engine, error)),
	}
}

// RegisterBackend registers a capture backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterBackend(name string, factory func(AudioConfig) (capture.Backend, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// RegisterEngine registers an external AEC engine factory under name.
func (r *Registry) RegisterEngine(name string, factory func(AECConfig) (aec.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// CreateBackend constructs the capture backend named by cfg.Backend.
func (r *Registry) CreateBackend(cfg AudioConfig) (capture.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture backend %q", ErrNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateEngine constructs the external AEC engine named by cfg.Engine.
func (r *Registry) CreateEngine(cfg AECConfig) (aec.Engine, error) {
	r.mu.RLock()
	factory, ok := r.engines[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: aec engine %q", ErrNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}
