package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSizeMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size_ms %d must be positive", cfg.Audio.FrameSizeMS))
	} else if cfg.Audio.SampleRate > 0 && cfg.Audio.FrameSizeSamples() == 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size_ms %d yields zero samples at %d Hz", cfg.Audio.FrameSizeMS, cfg.Audio.SampleRate))
	}
	if cfg.Audio.Backend == "" {
		errs = append(errs, errors.New("audio.backend is required"))
	}

	// Sync
	if cfg.Sync.ToleranceMS < 0 {
		errs = append(errs, fmt.Errorf("sync.tolerance_ms %d must not be negative", cfg.Sync.ToleranceMS))
	}
	if cfg.Sync.MaxBufferMS <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_buffer_ms %d must be positive", cfg.Sync.MaxBufferMS))
	}
	if cfg.Sync.MaxBufferMS > 0 && cfg.Sync.ToleranceMS > cfg.Sync.MaxBufferMS {
		errs = append(errs, fmt.Errorf("sync.tolerance_ms %d exceeds sync.max_buffer_ms %d", cfg.Sync.ToleranceMS, cfg.Sync.MaxBufferMS))
	}
	if cfg.Audio.FrameSizeMS > cfg.Sync.MaxBufferMS && cfg.Sync.MaxBufferMS > 0 {
		slog.Warn("frame duration exceeds the stream buffer bound; each queue holds a single frame",
			"frame_size_ms", cfg.Audio.FrameSizeMS,
			"max_buffer_ms", cfg.Sync.MaxBufferMS,
		)
	}

	// AEC
	if !cfg.AEC.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("aec.mode %q is invalid; valid values: nlms, engine, off", cfg.AEC.Mode))
	}
	if cfg.AEC.Mode == AECModeEngine && cfg.AEC.Engine == "" {
		errs = append(errs, errors.New("aec.engine is required when aec.mode is engine"))
	}
	if cfg.AEC.Mode == AECModeNLMS {
		if cfg.AEC.FilterLength <= 0 {
			errs = append(errs, fmt.Errorf("aec.filter_length %d must be positive", cfg.AEC.FilterLength))
		}
		if cfg.AEC.LearningRate <= 0 || cfg.AEC.LearningRate >= 2 {
			errs = append(errs, fmt.Errorf("aec.learning_rate %.3f is out of range (0, 2)", cfg.AEC.LearningRate))
		}
	}
	if cfg.AEC.MicDelayMS < 0 {
		errs = append(errs, fmt.Errorf("aec.mic_delay_ms %d must not be negative", cfg.AEC.MicDelayMS))
	}
	if cfg.AEC.EngineDelayHintMS < 0 {
		errs = append(errs, fmt.Errorf("aec.engine_delay_hint_ms %d must not be negative", cfg.AEC.EngineDelayHintMS))
	}

	// Telemetry
	if cfg.Telemetry.LogLevel != "" && !cfg.Telemetry.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("telemetry.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Telemetry.LogLevel))
	}

	return errors.Join(errs...)
}
