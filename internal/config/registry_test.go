package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/aurisync/internal/capture"
	capturemock "github.com/MrWong99/aurisync/internal/capture/mock"
	"github.com/MrWong99/aurisync/internal/config"
	"github.com/MrWong99/aurisync/pkg/audio/aec"
	aecmock "github.com/MrWong99/aurisync/pkg/audio/aec/mock"
)

func TestRegistry_CreateBackend(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterBackend("mock", func(config.AudioConfig) (capture.Backend, error) {
		return &capturemock.Backend{}, nil
	})

	b, err := r.CreateBackend(config.AudioConfig{Backend: "mock"})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if b == nil {
		t.Fatal("expected a backend instance")
	}
}

func TestRegistry_CreateEngine(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterEngine("mock", func(config.AECConfig) (aec.Engine, error) {
		return &aecmock.Engine{}, nil
	})

	if _, err := r.CreateEngine(config.AECConfig{Engine: "mock"}); err != nil {
		t.Fatalf("CreateEngine: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	_, err := r.CreateBackend(config.AudioConfig{Backend: "alsa"})
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
	_, err = r.CreateEngine(config.AECConfig{Engine: "speex"})
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}
