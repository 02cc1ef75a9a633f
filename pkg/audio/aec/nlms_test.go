package aec

import (
	"math"
	"math/rand"
	"testing"
)

func newTestNLMS(t *testing.T, taps int, mu float64) *NLMS {
	t.Helper()
	n := NewNLMS(NLMSConfig{FilterLength: taps, LearningRate: mu})
	if err := n.Initialize(48000, 1); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return n
}

func TestNLMS_InitializeValidation(t *testing.T) {
	tests := []struct {
		name       string
		cfg        NLMSConfig
		sampleRate int
		channels   int
	}{
		{"zero sample rate", NLMSConfig{}, 0, 1},
		{"stereo", NLMSConfig{}, 48000, 2},
		{"negative filter length", NLMSConfig{FilterLength: -1}, 48000, 1},
		{"learning rate too large", NLMSConfig{LearningRate: 2.5}, 48000, 1},
		{"negative learning rate", NLMSConfig{LearningRate: -0.1}, 48000, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNLMS(tc.cfg)
			if err := n.Initialize(tc.sampleRate, tc.channels); err == nil {
				t.Error("expected an initialization error")
			}
		})
	}
}

func TestNLMS_Defaults(t *testing.T) {
	n := NewNLMS(NLMSConfig{})
	if n.cfg.FilterLength != 2048 {
		t.Errorf("default filter length: got %d, want 2048", n.cfg.FilterLength)
	}
	if n.cfg.LearningRate != 0.05 {
		t.Errorf("default learning rate: got %g, want 0.05", n.cfg.LearningRate)
	}
}

func TestNLMS_IdlePassthrough(t *testing.T) {
	// Before any reference arrives the canceller is idle: capture passes
	// through bit-exact and no weight adapts.
	n := newTestNLMS(t, 64, 0.05)
	in := []int16{100, -200, 300, -400}
	got := make([]int16, len(in))
	copy(got, in)
	n.ProcessCapture(got, 0)

	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d modified while idle: got %d, want %d", i, got[i], in[i])
		}
	}
	for j, w := range n.weights {
		if w != 0 {
			t.Fatalf("weight %d adapted while idle: %g", j, w)
		}
	}
}

func TestNLMS_EmptyInputNoop(t *testing.T) {
	n := newTestNLMS(t, 64, 0.05)
	n.FeedReference(nil, 0)
	n.ProcessCapture(nil, 0)
	if n.primed {
		t.Error("empty reference push must not prime the filter")
	}
}

func TestNLMS_Convergence(t *testing.T) {
	// Capture is a pure echo: a fixed gain times a delayed copy of the
	// reference, no near-end speech. Output RMS must fall well below the
	// input RMS once the filter has adapted.
	// The block must be shorter than the filter so every capture sample's
	// reference window is still resident in the circular history.
	const (
		taps     = 256
		block    = 160
		blocks   = 100
		delay    = 10
		echoGain = 0.5
	)
	n := newTestNLMS(t, taps, 0.05)
	rng := rand.New(rand.NewSource(1))

	ref := make([]int16, block*blocks)
	for i := range ref {
		ref[i] = int16(rng.Intn(16000) - 8000)
	}

	blockRMS := func(s []int16) float64 {
		var sum float64
		for _, v := range s {
			sum += float64(v) * float64(v)
		}
		return math.Sqrt(sum / float64(len(s)))
	}

	var first, last float64
	for b := 0; b < blocks; b++ {
		refBlock := ref[b*block : (b+1)*block]

		capture := make([]int16, block)
		for i := range capture {
			idx := b*block + i - delay
			if idx >= 0 {
				capture[i] = int16(echoGain * float64(ref[idx]))
			}
		}

		n.FeedReference(refBlock, 0)
		n.ProcessCapture(capture, 0)

		rms := blockRMS(capture)
		if b == 0 {
			first = rms
		}
		last = rms
	}

	if first == 0 {
		t.Fatal("first block RMS is zero; test signal broken")
	}
	if last > 0.2*first {
		t.Errorf("echo not cancelled: first block RMS %.1f, last block RMS %.1f (want < 20%%)", first, last)
	}
}

func TestNLMS_LongBlockMatchesChunkedProcessing(t *testing.T) {
	// A capture block longer than the filter is split internally into
	// filter-length runs. Processing one long block must produce exactly
	// the same output and weights as submitting the runs one by one.
	const taps = 64
	rng := rand.New(rand.NewSource(7))

	ref := make([]int16, 3*taps)
	capture := make([]int16, 3*taps)
	for i := range ref {
		ref[i] = int16(rng.Intn(16000) - 8000)
		capture[i] = int16(rng.Intn(16000) - 8000)
	}

	whole := newTestNLMS(t, taps, 0.05)
	chunked := newTestNLMS(t, taps, 0.05)
	whole.FeedReference(ref, 0)
	chunked.FeedReference(ref, 0)

	outWhole := make([]int16, len(capture))
	copy(outWhole, capture)
	whole.ProcessCapture(outWhole, 0)

	outChunked := make([]int16, len(capture))
	copy(outChunked, capture)
	for off := 0; off < len(outChunked); off += taps {
		chunked.ProcessCapture(outChunked[off:off+taps], 0)
	}

	for i := range outWhole {
		if outWhole[i] != outChunked[i] {
			t.Fatalf("sample %d diverged: whole %d, chunked %d", i, outWhole[i], outChunked[i])
		}
	}
	for j := range whole.weights {
		if whole.weights[j] != chunked.weights[j] {
			t.Fatalf("weight %d diverged: whole %g, chunked %g", j, whole.weights[j], chunked.weights[j])
		}
	}
}

func TestNLMS_ClampsUnderAdversarialInput(t *testing.T) {
	// Long silence on the reference followed by full-scale transients on
	// both paths. Neither the output nor any weight may ever leave its
	// clamp range.
	n := newTestNLMS(t, 32, 1.9)

	silence := make([]int16, 256)
	loud := make([]int16, 256)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 32767
		} else {
			loud[i] = -32768
		}
	}

	sequences := [][2][]int16{
		{silence, loud},
		{loud, loud},
		{silence, silence},
		{loud, silence},
		{loud, loud},
	}
	for _, seq := range sequences {
		refBlock, capBlock := seq[0], seq[1]
		n.FeedReference(refBlock, 0)

		capture := make([]int16, len(capBlock))
		copy(capture, capBlock)
		n.ProcessCapture(capture, 0)

		for i, s := range capture {
			if e := float64(s) * sampleScale; e > errorClamp || e < -errorClamp {
				t.Fatalf("output sample %d exceeds error clamp: %d", i, s)
			}
		}
		for j, w := range n.weights {
			if w > weightClamp || w < -weightClamp {
				t.Fatalf("weight %d exceeds clamp: %g", j, w)
			}
		}
	}
}

func TestNLMS_ResetReturnsToIdle(t *testing.T) {
	n := newTestNLMS(t, 32, 0.5)
	ref := make([]int16, 128)
	for i := range ref {
		ref[i] = int16(i * 100)
	}
	n.FeedReference(ref, 0)
	capture := make([]int16, 128)
	copy(capture, ref)
	n.ProcessCapture(capture, 0)

	n.Reset()

	if n.primed {
		t.Error("reset must return the filter to idle")
	}
	for j, w := range n.weights {
		if w != 0 {
			t.Errorf("weight %d not cleared by reset: %g", j, w)
		}
	}
	if s := n.Stats(); s.FramesProcessed != 0 {
		t.Errorf("frames processed after reset: got %d, want 0", s.FramesProcessed)
	}

	// Idle again: capture passes through unchanged.
	in := []int16{1, 2, 3}
	got := make([]int16, len(in))
	copy(got, in)
	n.ProcessCapture(got, 0)
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d modified after reset: got %d", i, got[i])
		}
	}
}

func TestNLMS_CleanupDeactivates(t *testing.T) {
	n := newTestNLMS(t, 32, 0.05)
	if !n.IsActive() {
		t.Fatal("expected active after Initialize")
	}
	n.Cleanup()
	if n.IsActive() {
		t.Error("expected inactive after Cleanup")
	}
	// Calls after cleanup must not panic.
	n.FeedReference([]int16{1}, 0)
	n.ProcessCapture([]int16{1}, 0)
}
