package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/aurisync/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(config.Default(), config.Default())
	if d.HotApplicable() {
		t.Error("identical configs must not report hot-applicable changes")
	}
	if len(d.RestartNeeded) != 0 {
		t.Errorf("identical configs must not need a restart, got %v", d.RestartNeeded)
	}
}

func TestDiff_HotApplicableChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Telemetry.LogLevel = config.LogDebug
	new.AEC.BypassOnHeadphones = false

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if !d.BypassChanged || d.NewBypass {
		t.Errorf("bypass toggle not detected: %+v", d)
	}
	if !d.HotApplicable() {
		t.Error("log level and bypass changes are hot-applicable")
	}
	if len(d.RestartNeeded) != 0 {
		t.Errorf("no restart should be needed, got %v", d.RestartNeeded)
	}
}

func TestDiff_RestartNeeded(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Audio.SampleRate = 44100
	new.AEC.FilterLength = 4096

	d := config.Diff(old, new)
	if d.HotApplicable() {
		t.Error("format and filter changes are not hot-applicable")
	}
	for _, want := range []string{"audio.sample_rate", "aec.filter_length"} {
		if !slices.Contains(d.RestartNeeded, want) {
			t.Errorf("RestartNeeded should contain %s, got %v", want, d.RestartNeeded)
		}
	}
}
