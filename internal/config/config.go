// Package config provides the configuration schema, loader, and backend
// registry for the aurisync pipeline.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// AECMode selects the echo-cancellation strategy.
type AECMode string

const (
	// AECModeNLMS uses the built-in normalized-LMS adaptive filter.
	AECModeNLMS AECMode = "nlms"

	// AECModeEngine wraps an external acoustic-processing engine behind
	// the delay-compensation adapter.
	AECModeEngine AECMode = "engine"

	// AECModeOff disables echo cancellation entirely.
	AECModeOff AECMode = "off"
)

// IsValid reports whether m is a recognised AEC mode.
func (m AECMode) IsValid() bool {
	switch m {
	case AECModeNLMS, AECModeEngine, AECModeOff:
		return true
	}
	return false
}

// Config is the root configuration structure for aurisync.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Sync      SyncConfig      `yaml:"sync"`
	AEC       AECConfig       `yaml:"aec"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AudioConfig fixes the stream format for the lifetime of a pipeline
// instance. Changing any of these requires a full pipeline reset.
type AudioConfig struct {
	// SampleRate in Hz (e.g. 48000).
	SampleRate int `yaml:"sample_rate"`

	// Channels of the capture devices. The pipeline itself is mono;
	// stereo devices are downmixed at the capture boundary.
	Channels int `yaml:"channels"`

	// FrameSizeMS is the duration of one accumulated frame in
	// milliseconds. The sample count is derived via [AudioConfig.FrameSizeSamples].
	FrameSizeMS int `yaml:"frame_size_ms"`

	// Backend selects the registered capture backend (e.g. "portaudio").
	Backend string `yaml:"backend"`
}

// FrameSizeSamples returns the per-frame sample count derived from the
// configured frame duration and sample rate.
func (a AudioConfig) FrameSizeSamples() int {
	return a.SampleRate * a.FrameSizeMS / 1000
}

// FrameDuration returns the wall-clock duration of one frame.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameSizeMS) * time.Millisecond
}

// SyncConfig tunes the dual-stream aligner.
type SyncConfig struct {
	// ToleranceMS is the maximum timestamp distance, in milliseconds,
	// at which a near-end and a far-end frame still count as a pair.
	ToleranceMS int `yaml:"tolerance_ms"`

	// MaxBufferMS bounds each per-stream frame queue by duration.
	MaxBufferMS int `yaml:"max_buffer_ms"`
}

// Tolerance returns the pairing tolerance as a duration.
func (s SyncConfig) Tolerance() time.Duration {
	return time.Duration(s.ToleranceMS) * time.Millisecond
}

// MaxBuffer returns the per-stream queue bound as a duration.
func (s SyncConfig) MaxBuffer() time.Duration {
	return time.Duration(s.MaxBufferMS) * time.Millisecond
}

// AECConfig tunes the echo canceller.
type AECConfig struct {
	// Mode selects the cancellation strategy.
	Mode AECMode `yaml:"mode"`

	// Engine selects the registered external engine when Mode is
	// "engine". Ignored otherwise.
	Engine string `yaml:"engine"`

	// FilterLength is the adaptive filter tap count for nlms mode.
	// Longer filters model longer echo tails at higher CPU cost.
	FilterLength int `yaml:"filter_length"`

	// LearningRate is the NLMS step scale, in (0, 2).
	LearningRate float64 `yaml:"learning_rate"`

	// MicDelayMS is the capture delay inserted ahead of an external
	// engine so reference audio is always analysed first.
	MicDelayMS int `yaml:"mic_delay_ms"`

	// EngineDelayHintMS is passed to external engines that accept a
	// render-to-capture delay estimate. Zero means no hint.
	EngineDelayHintMS int `yaml:"engine_delay_hint_ms"`

	// BypassOnHeadphones passes capture audio through untouched while
	// the output route is headphones.
	BypassOnHeadphones bool `yaml:"bypass_on_headphones"`
}

// MicDelay returns the external-engine capture delay as a duration.
func (a AECConfig) MicDelay() time.Duration {
	return time.Duration(a.MicDelayMS) * time.Millisecond
}

// EngineDelayHint returns the engine delay hint as a duration.
func (a AECConfig) EngineDelayHint() time.Duration {
	return time.Duration(a.EngineDelayHintMS) * time.Millisecond
}

// TelemetryConfig holds the metrics endpoint and logging settings.
type TelemetryConfig struct {
	// MetricsAddr is the TCP address the Prometheus scrape endpoint
	// listens on (e.g. ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// Default returns a Config populated with the documented defaults.
// [LoadFromReader] decodes on top of it, so absent keys keep their default.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:  48000,
			Channels:    1,
			FrameSizeMS: 256,
			Backend:     "portaudio",
		},
		Sync: SyncConfig{
			ToleranceMS: 10,
			MaxBufferMS: 500,
		},
		AEC: AECConfig{
			Mode:               AECModeNLMS,
			FilterLength:       2048,
			LearningRate:       0.05,
			MicDelayMS:         100,
			EngineDelayHintMS:  0,
			BypassOnHeadphones: true,
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9090",
			LogLevel:    LogInfo,
		},
	}
}
