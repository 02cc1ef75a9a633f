//go:build cgo

package capture

import (
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/aurisync/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// loopbackHints identify playback-monitor input devices by name. PulseAudio
// and PipeWire expose them as "Monitor of ...", Windows WASAPI as
// "Stereo Mix" or an explicit loopback endpoint.
var loopbackHints = []string{"monitor", "loopback", "stereo mix", "what u hear"}

// headphoneHints identify headphone output routes by name.
var headphoneHints = []string{"headphone", "headset", "airpods", "earbuds"}

// PortAudio is the hardware [Backend] backed by the PortAudio library.
type PortAudio struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudio returns an uninitialised PortAudio backend.
func NewPortAudio() *PortAudio {
	return &PortAudio{}
}

// Initialize starts the PortAudio subsystem. Safe to call more than once.
func (p *PortAudio) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

// Terminate shuts the PortAudio subsystem down.
func (p *PortAudio) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil
	}
	p.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("capture: terminate portaudio: %w", err)
	}
	return nil
}

// OpenStream opens the microphone or, for loopback configs, a
// playback-monitor device. Timestamps come from the PortAudio callback's
// ADC time, so both streams share one monotonic timebase.
func (p *PortAudio) OpenStream(cfg StreamConfig, fn SampleFunc) (Stream, error) {
	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()
	if !initialized {
		return nil, fmt.Errorf("capture: portaudio not initialized")
	}
	if fn == nil {
		return nil, fmt.Errorf("capture: nil sample callback")
	}
	if cfg.SampleRate <= 0 || cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("capture: invalid stream config: rate %d, buffer %d", cfg.SampleRate, cfg.BufferSize)
	}

	dev, err := pickInputDevice(cfg.Loopback)
	if err != nil {
		return nil, err
	}

	// Open with the device's channel count when it cannot satisfy the
	// requested one; the callback downmixes.
	channels := cfg.Channels
	if channels <= 0 || channels > dev.MaxInputChannels {
		channels = dev.MaxInputChannels
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BufferSize,
	}

	cb := func(in []int16, ti portaudio.StreamCallbackTimeInfo) {
		samples := in
		if channels == 2 {
			samples = audio.StereoToMono(in)
		}
		fn(samples, uint64(ti.InputBufferAdcTime.Nanoseconds()))
	}

	stream, err := portaudio.OpenStream(params, cb)
	if err != nil {
		return nil, fmt.Errorf("capture: open stream on %q: %w", dev.Name, err)
	}
	return &paStream{stream: stream}, nil
}

// HeadphonesConnected inspects the default output device's name. PortAudio
// has no route-change events, so callers poll this per capture block.
func (p *PortAudio) HeadphonesConnected() bool {
	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()
	if !initialized {
		return false
	}
	out, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return false
	}
	return nameMatches(out.Name, headphoneHints)
}

// pickInputDevice returns the default input device, or for loopback the
// first input device whose name marks it as a playback monitor.
func pickInputDevice(loopback bool) (*portaudio.DeviceInfo, error) {
	if !loopback {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("capture: default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && nameMatches(d.Name, loopbackHints) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("capture: no loopback input device found")
}

func nameMatches(name string, hints []string) bool {
	lower := strings.ToLower(name)
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// paStream wraps a live portaudio stream.
type paStream struct {
	stream *portaudio.Stream
}

func (s *paStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("capture: start stream: %w", err)
	}
	return nil
}

func (s *paStream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("capture: stop stream: %w", err)
	}
	return nil
}

func (s *paStream) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("capture: close stream: %w", err)
	}
	return nil
}
