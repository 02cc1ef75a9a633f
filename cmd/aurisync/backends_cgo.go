//go:build cgo

package main

import (
	"github.com/MrWong99/aurisync/internal/capture"
	"github.com/MrWong99/aurisync/internal/config"
)

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the capture backends that ship with aurisync.
// External AEC engines are cgo wrappers around vendor SDKs and are registered
// by downstream builds; none ship in-tree.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterBackend("portaudio", func(config.AudioConfig) (capture.Backend, error) {
		return capture.NewPortAudio(), nil
	})
}
