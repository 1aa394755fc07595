package recorder

import (
	"testing"
	"time"

	"murmur/audio"
	"murmur/capture"
	"murmur/transcriber"
)

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

// Every sample fed to the accumulator must come back out: the concatenation
// of all cut segments plus the final retained tail equals the input exactly.
func TestWindowAccumNoLoss(t *testing.T) {
	input := ramp(100000)
	chunkings := [][]int{
		{100000},
		{24000, 24000, 24000, 24000, 4000},
		{7000, 1000, 40000, 15000, 31000, 6000},
	}
	for _, sizes := range chunkings {
		var w windowAccum
		var rebuilt []float32
		pos := 0
		for _, n := range sizes {
			w.Add(input[pos : pos+n])
			pos += n
			for {
				seg := w.Cut()
				if seg == nil {
					break
				}
				if len(seg) < minWindowSamples-overlapSamples {
					t.Fatalf("segment of %d samples below minimum", len(seg))
				}
				rebuilt = append(rebuilt, seg...)
			}
		}
		rebuilt = append(rebuilt, w.Tail()...)
		if len(rebuilt) != len(input) {
			t.Fatalf("chunking %v: rebuilt %d samples, want %d", sizes, len(rebuilt), len(input))
		}
		for i := range input {
			if rebuilt[i] != input[i] {
				t.Fatalf("chunking %v: sample %d = %v, want %v", sizes, i, rebuilt[i], input[i])
			}
		}
	}
}

// The loop cadence is the interval itself, not interval plus work: time
// already spent in an iteration is discounted from the following sleep.
func TestWindowSleepDiscountsWorkTime(t *testing.T) {
	o := New(Options{
		Selector:       capture.NewSelector(audio.NewFakeContext(nil, false), nil),
		Consumer:       &transcriber.FakeConsumer{},
		NewDetector:    energyDetector,
		WindowInterval: 200 * time.Millisecond,
	})
	defer o.Close()

	before := time.Now()
	o.windowSleep(time.Now().Add(-150 * time.Millisecond))
	if elapsed := time.Since(before); elapsed > 150*time.Millisecond {
		t.Fatalf("slept %v after 150ms of work, want at most the 50ms remainder", elapsed)
	}

	before = time.Now()
	o.windowSleep(time.Now().Add(-time.Second))
	if elapsed := time.Since(before); elapsed > 100*time.Millisecond {
		t.Fatalf("slept %v when the interval had already elapsed, want immediate return", elapsed)
	}
}

func TestWindowAccumHoldsBelowMinimum(t *testing.T) {
	var w windowAccum
	w.Add(make([]float32, minWindowSamples-1))
	if seg := w.Cut(); seg != nil {
		t.Fatalf("cut %d samples below the minimum window", len(seg))
	}
	w.Add(make([]float32, 1))
	seg := w.Cut()
	if len(seg) != minWindowSamples-overlapSamples {
		t.Fatalf("segment length %d, want %d", len(seg), minWindowSamples-overlapSamples)
	}
	if len(w.Tail()) != overlapSamples {
		t.Fatalf("retained tail %d samples, want %d", len(w.Tail()), overlapSamples)
	}
}

// Always-on system audio with a loopback device that never receives audio:
// capture stays active, nothing errors, and the only output is silence
// diagnostics.
func TestAlwaysOnSilentLoopbackStaysActive(t *testing.T) {
	ctx := audio.NewFakeContext(nil, false)
	ctx.SetDevices([]audio.DeviceInfo{{ID: "1", Name: "BlackHole 2ch"}})
	sel := capture.NewSelector(ctx, nil)
	sel.SetProbeInterval(time.Millisecond)
	consumer := &transcriber.FakeConsumer{}
	events := &sinkRecorder{}
	o := New(Options{
		Selector:       sel,
		Consumer:       consumer,
		Events:         events,
		Mode:           AlwaysOn,
		Source:         capture.SystemAudio,
		WindowInterval: 10 * time.Millisecond,
	})
	defer o.Close()

	if err := o.Open(); err != nil {
		t.Fatalf("silent loopback must not fail: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	if !o.StreamOpen() {
		t.Fatal("capture no longer active")
	}
	if calls := consumer.Calls(); len(calls) != 0 {
		t.Fatalf("transcribed %d silent segments, want 0", len(calls))
	}
	if !events.hasDiag("no system audio") {
		t.Fatalf("missing silence diagnostic, got %v", events.diags)
	}
}

// Switching the mode away from always-on retires the window loop at its
// next tick.
func TestWindowLoopExitsOnModeChange(t *testing.T) {
	ctx := audio.NewFakeContext(nil, false)
	ctx.SetDevices([]audio.DeviceInfo{{ID: "1", Name: "VB-Cable"}})
	sel := capture.NewSelector(ctx, nil)
	sel.SetProbeInterval(time.Millisecond)
	events := &sinkRecorder{}
	o := New(Options{
		Selector:       sel,
		Consumer:       &transcriber.FakeConsumer{},
		Events:         events,
		Mode:           AlwaysOn,
		Source:         capture.SystemAudio,
		WindowInterval: 10 * time.Millisecond,
	})
	defer o.Close()

	if err := o.Open(); err != nil {
		t.Fatal(err)
	}
	if err := o.SetMode(OnDemand); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !events.hasDiag("loop stopped") {
		time.Sleep(5 * time.Millisecond)
	}
	if !events.hasDiag("loop stopped") {
		t.Fatalf("window loop did not stop, diags %v", events.diags)
	}
	if o.StreamOpen() {
		t.Fatal("stream still open in on-demand mode with no session")
	}
}
