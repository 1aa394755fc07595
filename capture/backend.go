// Package capture provides the audio capture backends and the fallback
// policy that selects between them. A backend owns exclusive access to one
// hardware device or one child process and buffers mono samples at its
// native rate until drained.
package capture

import "errors"

var (
	// ErrPermissionDenied means the OS capture permission is not granted.
	// Distinguished from ErrDeviceNotFound because it drives remediation.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrDeviceNotFound means no matching capture device exists.
	ErrDeviceNotFound = errors.New("capture device not found")

	// ErrFormatUnsupported means the device produces a sample format the
	// mixdown path cannot interpret.
	ErrFormatUnsupported = errors.New("sample format unsupported")

	// ErrBackendClosed is returned by operations on a stopped backend.
	ErrBackendClosed = errors.New("capture backend closed")
)

// Source selects which backend family the selector targets.
type Source int

const (
	Microphone Source = iota
	SystemAudio
)

func (s Source) String() string {
	if s == SystemAudio {
		return "system_audio"
	}
	return "microphone"
}

// Backend is the shared contract over microphone-device, loopback-device and
// helper-process capture.
//
// Start is idempotent while active but not safe for concurrent callers;
// serialization happens in the recording orchestrator. ReadAvailable never
// blocks and drains everything buffered since the last call, returning nil
// when nothing is pending. After a mid-session hardware or process failure
// the backend reports inactive and drains empty until restarted.
type Backend interface {
	Start() error
	Stop() error
	ReadAvailable() ([]float32, error)
	IsActive() bool

	// SampleRate is the native rate of the samples ReadAvailable returns.
	SampleRate() int
	Name() string
}

// DiagFunc receives free-text diagnostics for the UI layer. Backends treat a
// nil function as a discard sink.
type DiagFunc func(format string, args ...any)

func (f DiagFunc) emit(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// maxBuffered bounds each backend's pending-sample ring so an undrained
// stream cannot grow without limit (60s at 48kHz).
const maxBuffered = 60 * 48000
