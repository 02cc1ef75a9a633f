//go:build !cgo

package main

import "github.com/MrWong99/aurisync/internal/config"

// registerBuiltinBackends is a no-op without cgo: the PortAudio backend
// wraps the C library and cannot be built with CGO_ENABLED=0.
func registerBuiltinBackends(reg *config.Registry) {}
