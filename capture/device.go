package capture

import (
	"fmt"
	"sync"

	"murmur/audio"
)

// DeviceBackend captures from one input device (a physical microphone or a
// virtual loopback endpoint) through an audio.Context. The hardware callback
// appends mono samples to a mutex-guarded ring; ReadAvailable drains it.
type DeviceBackend struct {
	ctx    audio.Context
	device *audio.DeviceInfo
	config audio.CaptureConfig

	mu      sync.Mutex
	capture audio.CaptureDevice
	buf     []float32
	active  bool
}

// NewDeviceBackend prepares a backend for device at the given rate. A nil
// device means the system default input.
func NewDeviceBackend(ctx audio.Context, device *audio.DeviceInfo, sampleRate int) *DeviceBackend {
	return &DeviceBackend{
		ctx:    ctx,
		device: device,
		config: audio.CaptureConfig{
			SampleRate: uint32(sampleRate),
			Channels:   1,
		},
	}
}

func (b *DeviceBackend) Start() error {
	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		return nil
	}

	capture, err := b.ctx.NewCapture(b.device, b.config)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("opening %s: %w", b.name(), err)
	}
	capture.SetCallback(b.onSamples)
	b.capture = capture
	b.active = true
	b.mu.Unlock()

	// Start runs outside the lock: devices may deliver their first samples
	// synchronously, re-entering onSamples before Start returns.
	if err := capture.Start(); err != nil {
		b.mu.Lock()
		b.capture = nil
		b.active = false
		b.buf = nil
		b.mu.Unlock()
		capture.ClearCallback()
		capture.Close()
		return fmt.Errorf("starting %s: %w", b.name(), err)
	}
	return nil
}

// onSamples runs on the hardware callback thread. It only appends to the
// ring; it must never block on consumers.
func (b *DeviceBackend) onSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}
	b.buf = append(b.buf, samples...)
	if overflow := len(b.buf) - maxBuffered; overflow > 0 {
		b.buf = append(b.buf[:0], b.buf[overflow:]...)
	}
	b.mu.Unlock()
}

func (b *DeviceBackend) Stop() error {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return nil
	}
	capture := b.capture
	b.capture = nil
	b.active = false
	b.buf = nil
	b.mu.Unlock()

	// Hardware teardown can stall; never make the caller wait on it.
	capture.ClearCallback()
	go func() {
		capture.Stop()
		capture.Close()
	}()
	return nil
}

func (b *DeviceBackend) ReadAvailable() ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil, nil
	}
	out := b.buf
	b.buf = nil
	return out, nil
}

// Clear discards buffered samples without returning them, preventing stale
// audio from leaking into a new recording session.
func (b *DeviceBackend) Clear() {
	b.mu.Lock()
	b.buf = nil
	b.mu.Unlock()
}

// TailRMS computes the RMS over the most recent n buffered samples without
// draining them. Used by the selector's audio-detection probe.
func (b *DeviceBackend) TailRMS(n int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return 0
	}
	tail := b.buf
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	return audio.RMS(tail)
}

func (b *DeviceBackend) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *DeviceBackend) SampleRate() int { return int(b.config.SampleRate) }

func (b *DeviceBackend) Name() string { return b.name() }

func (b *DeviceBackend) name() string {
	if b.device != nil {
		return b.device.Name
	}
	return "default input"
}
