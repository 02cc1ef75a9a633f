package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/aurisync/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	stereo := []int16{100, 200, -100, -200}
	got := audio.StereoToMono(stereo)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_NoOverflow(t *testing.T) {
	stereo := []int16{32767, 32767, -32768, -32768}
	got := audio.StereoToMono(stereo)
	if got[0] != 32767 {
		t.Errorf("positive pair: got %d, want 32767", got[0])
	}
	if got[1] != -32768 {
		t.Errorf("negative pair: got %d, want -32768", got[1])
	}
}

func TestMonoToStereo(t *testing.T) {
	mono := []int16{100, 200, 300}
	got := audio.MonoToStereo(mono)
	want := []int16{100, 100, 200, 200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := []int16{100, 200, 300}
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x).
	out := audio.ResampleMono16([]int16{1000, 2000}, 16000, 48000)
	if len(out) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out))
	}
	if out[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", out[0])
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	out := audio.ResampleMono16(make([]int16, 480), 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(out))
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]int16, 100), 0},
		{"full scale square", []int16{-32768, -32768, -32768, -32768}, 1.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := float64(audio.RMS(tc.samples))
			if math.Abs(got-tc.want) > 1e-3 {
				t.Errorf("RMS: got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestPeak(t *testing.T) {
	got := audio.Peak([]int16{100, -16384, 200})
	if math.Abs(float64(got)-0.5) > 1e-3 {
		t.Errorf("Peak: got %f, want 0.5", got)
	}
}
