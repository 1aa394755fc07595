package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"murmur/audio"
)

// helperGrace is how long after spawn an exit is interpreted as the OS
// refusing capture permission rather than a normal shutdown.
var helperGrace = 2 * time.Second

// permissionMarkers are matched against the helper's stderr lines.
var permissionMarkers = []string{
	"PERMISSION DENIED",
	"declined TCC",
	"not permitted",
}

// HelperBackend captures system audio through an external helper process.
// The helper writes raw little-endian float32 mono PCM at 48kHz to stdout
// and newline-delimited diagnostics to stderr.
type HelperBackend struct {
	path string
	diag DiagFunc

	mu     sync.Mutex
	cmd    *exec.Cmd
	buf    []float32
	active bool
	denied bool

	readers *errgroup.Group
}

func NewHelperBackend(path string, diag DiagFunc) *HelperBackend {
	return &HelperBackend{path: path, diag: diag}
}

func (b *HelperBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return nil
	}

	cmd := exec.Command(b.path)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("helper stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning %s: %w", b.path, err)
	}

	started := time.Now()
	g := &errgroup.Group{}
	g.Go(func() error { return b.readAudio(stdout) })
	g.Go(func() error { return b.relayLogs(stderr) })
	b.readers = g
	b.cmd = cmd
	b.active = true

	// An exit inside the grace window means the OS killed the helper
	// before it could capture, which in practice is a permission denial.
	// Exit is observed through the readers, so both pipes are drained to
	// EOF before the process is reaped; Wait must not run while they are
	// still reading.
	b.mu.Unlock()
	exited := make(chan struct{})
	go func() {
		_ = g.Wait()
		_ = cmd.Wait()
		close(exited)
	}()
	var early bool
	select {
	case <-exited:
		early = time.Since(started) < helperGrace
	case <-time.After(helperGrace):
	}
	b.mu.Lock()

	if early || b.denied {
		b.active = false
		b.cmd = nil
		b.diag.emit("helper process exited during startup: capture permission likely denied")
		OpenPrivacySettings(b.diag)
		return fmt.Errorf("helper %s: %w", b.path, ErrPermissionDenied)
	}

	b.diag.emit("helper process capture started (%s)", b.path)
	return nil
}

// readAudio converts the raw byte stream to float32 samples. Reads are not
// frame-aligned, so a partial trailing sample is carried to the next read;
// torn samples never reach the ring.
func (b *HelperBackend) readAudio(r io.Reader) error {
	chunk := make([]byte, 4096)
	var carry []byte
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			if len(carry) > 0 {
				data = append(carry, data...)
				carry = nil
			}
			whole := len(data) / 4 * 4
			if rem := len(data) - whole; rem > 0 {
				carry = append([]byte(nil), data[whole:]...)
				data = data[:whole]
			}
			samples := make([]float32, len(data)/4)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			}
			b.push(samples)
		}
		if err != nil {
			b.markInactive()
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (b *HelperBackend) relayLogs(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.diag.emit("helper: %s", line)
		for _, marker := range permissionMarkers {
			if strings.Contains(line, marker) {
				b.mu.Lock()
				first := !b.denied
				b.denied = true
				b.mu.Unlock()
				if first {
					b.diag.emit("capture permission denied by the OS; opening privacy settings")
					OpenPrivacySettings(b.diag)
				}
				break
			}
		}
	}
	return scanner.Err()
}

func (b *HelperBackend) push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	if b.active {
		b.buf = append(b.buf, samples...)
		if overflow := len(b.buf) - maxBuffered; overflow > 0 {
			b.buf = append(b.buf[:0], b.buf[overflow:]...)
		}
	}
	b.mu.Unlock()
}

func (b *HelperBackend) markInactive() {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()
}

func (b *HelperBackend) Stop() error {
	b.mu.Lock()
	cmd := b.cmd
	readers := b.readers
	b.cmd = nil
	b.readers = nil
	b.active = false
	b.buf = nil
	b.mu.Unlock()

	// The helper is an external process: kill it outright rather than
	// waiting for a graceful shutdown it may never perform.
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if readers != nil {
		_ = readers.Wait()
	}
	return nil
}

func (b *HelperBackend) ReadAvailable() ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil, nil
	}
	out := b.buf
	b.buf = nil
	return out, nil
}

func (b *HelperBackend) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// PermissionDenied reports whether the helper's stderr announced an OS
// permission refusal.
func (b *HelperBackend) PermissionDenied() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.denied
}

func (b *HelperBackend) SampleRate() int { return audio.SystemRate }

func (b *HelperBackend) Name() string { return "helper:" + b.path }
