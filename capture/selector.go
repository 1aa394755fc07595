package capture

import (
	"fmt"
	"time"

	"murmur/audio"
)

const (
	probeRounds    = 5
	probeThreshold = 1e-5
)

// Selector opens the capture backend appropriate for a source, applying the
// loopback-device-then-helper fallback chain for system audio.
type Selector struct {
	ctx        audio.Context
	diag       DiagFunc
	helperPath string
	micName    string

	// probeInterval is the pause between loopback liveness checks.
	// Overridable for tests.
	probeInterval time.Duration
}

func NewSelector(ctx audio.Context, diag DiagFunc) *Selector {
	return &Selector{ctx: ctx, diag: diag, probeInterval: time.Second}
}

// SetHelperPath configures the external helper binary used when no loopback
// device can be started.
func (s *Selector) SetHelperPath(path string) { s.helperPath = path }

// SetProbeInterval changes the pause between loopback liveness checks.
func (s *Selector) SetProbeInterval(d time.Duration) {
	if d > 0 {
		s.probeInterval = d
	}
}

// SetMicrophone selects the preferred input device by name. An empty name
// means the system default.
func (s *Selector) SetMicrophone(name string) { s.micName = name }

// Open starts and returns a backend for the source. For SystemAudio a
// loopback device that opens but stays silent is still a success: the
// backend remains active and the caller is told how to fix routing through
// diag. Only a hard start failure falls through to the helper process.
func (s *Selector) Open(source Source) (Backend, error) {
	switch source {
	case Microphone:
		return s.openMicrophone()
	case SystemAudio:
		return s.openSystemAudio()
	default:
		return nil, fmt.Errorf("unknown capture source %d", int(source))
	}
}

func (s *Selector) openMicrophone() (Backend, error) {
	device := s.findInput(s.micName)
	if s.micName != "" && device == nil {
		s.diag.emit("input device %q not found, using system default", s.micName)
	}
	b := NewDeviceBackend(s.ctx, device, audio.WhisperRate)
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("starting microphone capture: %w", err)
	}
	s.diag.emit("microphone capture started on %s", b.Name())
	return b, nil
}

func (s *Selector) openSystemAudio() (Backend, error) {
	if device := s.findLoopback(); device != nil {
		b := NewDeviceBackend(s.ctx, device, audio.SystemRate)
		if err := b.Start(); err != nil {
			s.diag.emit("loopback device %s failed to start: %v", device.Name, err)
			return s.openHelper(err)
		}
		s.probeLoopback(b)
		return b, nil
	}
	s.diag.emit("no loopback device installed (BlackHole, VB-Cable, ...)")
	return s.openHelper(ErrDeviceNotFound)
}

// probeLoopback checks whether audio is actually flowing through a freshly
// opened loopback device. Silence is not an error: system output may simply
// not be routed through the virtual device yet.
func (s *Selector) probeLoopback(b *DeviceBackend) {
	tail := b.SampleRate()
	for round := 0; round < probeRounds; round++ {
		time.Sleep(s.probeInterval)
		if b.TailRMS(tail) > probeThreshold {
			s.diag.emit("loopback capture live on %s", b.Name())
			return
		}
	}
	s.diag.emit("loopback device %s is open but silent; route system output "+
		"through it (e.g. a multi-output device) to capture audio", b.Name())
}

func (s *Selector) openHelper(cause error) (Backend, error) {
	if s.helperPath == "" {
		return nil, fmt.Errorf("system audio capture unavailable: %w", cause)
	}
	s.diag.emit("falling back to helper process capture")
	b := NewHelperBackend(s.helperPath, s.diag)
	if err := b.Start(); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Selector) findInput(name string) *audio.DeviceInfo {
	if name == "" {
		return nil
	}
	devices, err := s.ctx.Devices()
	if err != nil {
		s.diag.emit("enumerating input devices: %v", err)
		return nil
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i]
		}
	}
	return nil
}

func (s *Selector) findLoopback() *audio.DeviceInfo {
	devices, err := s.ctx.Devices()
	if err != nil {
		s.diag.emit("enumerating input devices: %v", err)
		return nil
	}
	for i := range devices {
		if audio.IsLoopback(devices[i].Name) {
			return &devices[i]
		}
	}
	return nil
}
