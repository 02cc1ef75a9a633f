package aec

import "sync/atomic"

// HeadphoneFunc reports whether the current output route is headphones.
// Supplied by the platform capture layer; must be cheap and non-blocking, as
// it is consulted on every capture block.
type HeadphoneFunc func() bool

// Bypass is a device-bypass policy wrapper around any [Processor]. When the
// detector reports headphones and bypassing is enabled, capture audio passes
// through untouched: acoustic echo cannot couple through headphones, and
// running the canceller anyway would only distort the signal.
//
// Bypass is a plain decorator: it adds no adaptive state of its own.
type Bypass struct {
	inner   Processor
	detect  HeadphoneFunc
	enabled atomic.Bool
}

// NewBypass wraps inner. When enabled is false the wrapper is transparent,
// which keeps call sites uniform regardless of configuration.
func NewBypass(inner Processor, detect HeadphoneFunc, enabled bool) *Bypass {
	if detect == nil {
		detect = func() bool { return false }
	}
	b := &Bypass{inner: inner, detect: detect}
	b.enabled.Store(enabled)
	return b
}

// SetEnabled toggles the bypass policy at runtime, e.g. on a config reload.
func (b *Bypass) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
}

// bypassed reports whether processing is currently short-circuited.
func (b *Bypass) bypassed() bool {
	return b.enabled.Load() && b.detect()
}

func (b *Bypass) Initialize(sampleRate, channels int) error {
	return b.inner.Initialize(sampleRate, channels)
}

// FeedReference always forwards, even while bypassed: keeping the reference
// history warm means the canceller re-engages without a cold start when the
// headphones are unplugged.
func (b *Bypass) FeedReference(samples []int16, ticks uint64) {
	b.inner.FeedReference(samples, ticks)
}

// ProcessCapture forwards unless bypassed, in which case the samples are
// left untouched.
func (b *Bypass) ProcessCapture(samples []int16, ticks uint64) {
	if b.bypassed() {
		return
	}
	b.inner.ProcessCapture(samples, ticks)
}

func (b *Bypass) Reset()   { b.inner.Reset() }
func (b *Bypass) Cleanup() { b.inner.Cleanup() }

// IsActive reports whether the inner canceller is active and not currently
// bypassed.
func (b *Bypass) IsActive() bool {
	return b.inner.IsActive() && !b.bypassed()
}

// HeadphonesConnected reports the detector's current answer.
func (b *Bypass) HeadphonesConnected() bool { return b.detect() }

func (b *Bypass) Stats() Stats { return b.inner.Stats() }
