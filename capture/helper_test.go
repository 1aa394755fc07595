//go:build unix

package capture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"murmur/audio"
)

func writeHelperScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func shortGrace(t *testing.T) {
	t.Helper()
	old := helperGrace
	helperGrace = 200 * time.Millisecond
	t.Cleanup(func() { helperGrace = old })
}

func TestHelperBackendStreamsSamples(t *testing.T) {
	shortGrace(t)
	// Two little-endian float32 samples: 1.0 and -1.0.
	path := writeHelperScript(t,
		`printf '\000\000\200\077\000\000\200\277'; sleep 5`)
	var diag diagLog
	b := NewHelperBackend(path, diag.fn())
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var got []float32
	for time.Now().Before(deadline) && len(got) < 2 {
		chunk, err := b.ReadAvailable()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, chunk...)
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 2 || got[0] != 1.0 || got[1] != -1.0 {
		t.Fatalf("decoded %v, want [1 -1]", got)
	}
	if b.SampleRate() != 48000 {
		t.Fatalf("SampleRate = %d, want 48000", b.SampleRate())
	}
}

func TestHelperBackendDrainsOutputWrittenAtExit(t *testing.T) {
	shortGrace(t)
	// The helper flushes its final samples and exits immediately. Reaping
	// the process must not discard bytes still buffered in the pipe.
	path := writeHelperScript(t,
		`sleep 1; printf '\000\000\200\077\000\000\200\277'`)
	var diag diagLog
	b := NewHelperBackend(path, diag.fn())
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	deadline := time.Now().Add(3 * time.Second)
	var got []float32
	for time.Now().Before(deadline) && len(got) < 2 {
		chunk, err := b.ReadAvailable()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, chunk...)
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 2 || got[0] != 1.0 || got[1] != -1.0 {
		t.Fatalf("decoded %v, want [1 -1]", got)
	}
}

func TestSelectorLoopbackStartFailureFallsBackToHelper(t *testing.T) {
	shortGrace(t)
	ctx := audio.NewFakeContext(nil, false)
	ctx.SetDevices([]audio.DeviceInfo{{ID: "1", Name: "BlackHole 2ch"}})
	ctx.StartErr = errors.New("device busy")
	var diag diagLog
	s := newTestSelector(ctx, &diag)
	s.SetHelperPath(writeHelperScript(t, `sleep 5`))

	b, err := s.Open(SystemAudio)
	if err != nil {
		t.Fatalf("helper fallback failed: %v", err)
	}
	defer b.Stop()
	if _, ok := b.(*HelperBackend); !ok {
		t.Fatalf("opened %T, want *HelperBackend", b)
	}
	if !b.IsActive() {
		t.Fatal("helper backend not active after fallback")
	}
}

func TestHelperBackendEarlyExitIsPermissionDenied(t *testing.T) {
	shortGrace(t)
	path := writeHelperScript(t, `echo "PERMISSION DENIED: screen capture" >&2; exit 1`)
	var diag diagLog
	b := NewHelperBackend(path, diag.fn())

	err := b.Start()
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if b.IsActive() {
		t.Fatal("backend active after failed start")
	}
}

func TestHelperBackendStopKillsProcess(t *testing.T) {
	shortGrace(t)
	path := writeHelperScript(t, `sleep 60`)
	var diag diagLog
	b := NewHelperBackend(path, diag.fn())
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; helper process not killed")
	}
	if b.IsActive() {
		t.Fatal("backend active after Stop")
	}
}
