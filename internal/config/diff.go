package config

// ConfigDiff describes what changed between two configs and whether the
// change can be applied to a running pipeline. Stream format and filter
// geometry are fixed at construction, so changes there require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// BypassChanged reports a toggle of aec.bypass_on_headphones, which
	// the device-bypass decorator picks up without touching adaptive
	// state.
	BypassChanged bool
	NewBypass     bool

	// RestartNeeded lists the YAML paths of changed fields that cannot
	// be hot-applied.
	RestartNeeded []string
}

// HotApplicable reports whether the diff contains any change a running
// pipeline can absorb.
func (d ConfigDiff) HotApplicable() bool {
	return d.LogLevelChanged || d.BypassChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, updated *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Telemetry.LogLevel != updated.Telemetry.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = updated.Telemetry.LogLevel
	}
	if old.AEC.BypassOnHeadphones != updated.AEC.BypassOnHeadphones {
		d.BypassChanged = true
		d.NewBypass = updated.AEC.BypassOnHeadphones
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartNeeded = append(d.RestartNeeded, path)
		}
	}
	restart("audio.sample_rate", old.Audio.SampleRate != updated.Audio.SampleRate)
	restart("audio.channels", old.Audio.Channels != updated.Audio.Channels)
	restart("audio.frame_size_ms", old.Audio.FrameSizeMS != updated.Audio.FrameSizeMS)
	restart("audio.backend", old.Audio.Backend != updated.Audio.Backend)
	restart("sync.tolerance_ms", old.Sync.ToleranceMS != updated.Sync.ToleranceMS)
	restart("sync.max_buffer_ms", old.Sync.MaxBufferMS != updated.Sync.MaxBufferMS)
	restart("aec.mode", old.AEC.Mode != updated.AEC.Mode)
	restart("aec.engine", old.AEC.Engine != updated.AEC.Engine)
	restart("aec.filter_length", old.AEC.FilterLength != updated.AEC.FilterLength)
	restart("aec.learning_rate", old.AEC.LearningRate != updated.AEC.LearningRate)
	restart("aec.mic_delay_ms", old.AEC.MicDelayMS != updated.AEC.MicDelayMS)
	restart("aec.engine_delay_hint_ms", old.AEC.EngineDelayHintMS != updated.AEC.EngineDelayHintMS)
	restart("telemetry.metrics_addr", old.Telemetry.MetricsAddr != updated.Telemetry.MetricsAddr)

	return d
}
