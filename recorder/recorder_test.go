package recorder

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/capture"
	"murmur/transcriber"
	"murmur/vad"
)

type sinkRecorder struct {
	mu       sync.Mutex
	diags    []string
	captions []string
}

func (s *sinkRecorder) Diagnostic(msg string) {
	s.mu.Lock()
	s.diags = append(s.diags, msg)
	s.mu.Unlock()
}

func (s *sinkRecorder) Caption(text string) {
	s.mu.Lock()
	s.captions = append(s.captions, text)
	s.mu.Unlock()
}

func (s *sinkRecorder) hasDiag(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.diags {
		if strings.Contains(d, substr) {
			return true
		}
	}
	return false
}

func (s *sinkRecorder) captionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captions)
}

func sine(n int) []float32 {
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/audio.WhisperRate))
	}
	return pcm
}

func energyDetector() *vad.Smoothed {
	return vad.NewSmoothed(vad.NewEnergy(0),
		vad.DefaultAttack, vad.DefaultRelease, vad.DefaultPreroll)
}

func newMicOrchestrator(ctx *audio.FakeContext, events EventSink) *Orchestrator {
	return New(Options{
		Selector:     capture.NewSelector(ctx, nil),
		Consumer:     &transcriber.FakeConsumer{Result: "ok"},
		Events:       events,
		NewDetector:  energyDetector,
		PumpInterval: 10 * time.Millisecond,
		ModelPoll:    5 * time.Millisecond,
		ModelWait:    100 * time.Millisecond,
	})
}

func TestTryStartTwiceReusesBackend(t *testing.T) {
	ctx := audio.NewFakeContext(nil, false)
	o := newMicOrchestrator(ctx, &sinkRecorder{})
	defer o.Close()

	if err := o.TryStart(1); err != nil {
		t.Fatal(err)
	}
	if err := o.TryStart(1); err != nil {
		t.Fatalf("second TryStart: %v", err)
	}
	if got := ctx.Captures(); got != 1 {
		t.Fatalf("opened %d backends, want 1", got)
	}
	if st := o.State(); !st.Recording || st.SessionID != 1 {
		t.Fatalf("state = %+v, want recording session 1", st)
	}
}

func TestStopWithStaleSessionIDIsIgnored(t *testing.T) {
	ctx := audio.NewFakeContext(nil, false)
	o := newMicOrchestrator(ctx, &sinkRecorder{})
	defer o.Close()

	if err := o.TryStart(7); err != nil {
		t.Fatal(err)
	}
	seg, err := o.Stop(3)
	if err != nil {
		t.Fatal(err)
	}
	if seg != nil {
		t.Fatalf("stale stop returned %d samples, want none", len(seg))
	}
	if st := o.State(); !st.Recording || st.SessionID != 7 {
		t.Fatalf("stale stop changed state to %+v", st)
	}
	if _, err := o.Stop(7); err != nil {
		t.Fatal(err)
	}
	if st := o.State(); st.Recording {
		t.Fatalf("still recording after matching stop: %+v", st)
	}
}

func TestCancelDiscardsAndClosesStream(t *testing.T) {
	ctx := audio.NewFakeContext(sine(16000), true)
	o := newMicOrchestrator(ctx, &sinkRecorder{})
	defer o.Close()

	if err := o.TryStart(1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := o.Cancel(); err != nil {
		t.Fatal(err)
	}
	if st := o.State(); st.Recording {
		t.Fatalf("still recording after cancel: %+v", st)
	}
	if o.StreamOpen() {
		t.Fatal("stream still open after cancel in on-demand mode")
	}
}

func TestPadShort(t *testing.T) {
	half := make([]float32, audio.WhisperRate/2)
	for i := range half {
		half[i] = 0.25
	}
	padded := PadShort(half)
	if len(padded) != paddedSamples {
		t.Fatalf("padded length %d, want %d", len(padded), paddedSamples)
	}
	for i := len(half); i < len(padded); i++ {
		if padded[i] != 0 {
			t.Fatalf("pad sample %d = %v, want 0", i, padded[i])
		}
	}

	long := make([]float32, 3*audio.WhisperRate)
	if got := PadShort(long); len(got) != len(long) {
		t.Fatalf("3s segment resized to %d samples", len(got))
	}
	if got := PadShort(nil); got != nil {
		t.Fatal("empty segment must stay empty")
	}
}

func TestOnDemandShortRecordingIsPadded(t *testing.T) {
	// 0.8s of tone, paced in real time so the session pump sees it arrive
	// the way hardware would deliver it.
	ctx := audio.NewFakeContext(sine(12800), true)
	events := &sinkRecorder{}
	o := newMicOrchestrator(ctx, events)
	defer o.Close()

	if err := o.TryStart(1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(900 * time.Millisecond)
	seg, err := o.Stop(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(seg) != paddedSamples {
		t.Fatalf("segment length %d, want padded %d", len(seg), paddedSamples)
	}
	if seg[len(seg)-1] != 0 {
		t.Fatal("padded tail is not zero")
	}
	if o.StreamOpen() {
		t.Fatal("on-demand stream still open after stop")
	}

	// A fresh session opens a fresh backend.
	if err := o.TryStart(2); err != nil {
		t.Fatal(err)
	}
	if got := ctx.Captures(); got != 2 {
		t.Fatalf("opened %d backends across two sessions, want 2", got)
	}
	o.Stop(2)
}

func TestSubmitWaitsForModelLoad(t *testing.T) {
	consumer := &transcriber.FakeConsumer{Result: "hello world", LoadDelay: 30 * time.Millisecond}
	history := &transcriber.FakeHistory{}
	events := &sinkRecorder{}
	o := New(Options{
		Selector:  capture.NewSelector(audio.NewFakeContext(nil, false), nil),
		Consumer:  consumer,
		History:   history,
		Events:    events,
		ModelPoll: 5 * time.Millisecond,
		ModelWait: 500 * time.Millisecond,
	})
	defer o.Close()

	o.Submit(sine(audio.WhisperRate), "microphone")

	if calls := consumer.Calls(); len(calls) != 1 {
		t.Fatalf("transcribe called %d times, want 1", len(calls))
	}
	if events.captionCount() != 1 {
		t.Fatalf("got %d captions, want 1", events.captionCount())
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(history.Entries()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	entries := history.Entries()
	if len(entries) != 1 || entries[0].Transcript != "hello world" {
		t.Fatalf("history entries = %+v, want one with transcript", entries)
	}
}

func TestSubmitSkipsSegmentWhenModelNeverLoads(t *testing.T) {
	consumer := &transcriber.FakeConsumer{LoadDelay: time.Hour}
	events := &sinkRecorder{}
	o := New(Options{
		Selector:  capture.NewSelector(audio.NewFakeContext(nil, false), nil),
		Consumer:  consumer,
		Events:    events,
		ModelPoll: 5 * time.Millisecond,
		ModelWait: 30 * time.Millisecond,
	})
	defer o.Close()

	o.Submit(sine(audio.WhisperRate), "microphone")

	if calls := consumer.Calls(); len(calls) != 0 {
		t.Fatalf("transcribe called %d times despite unloaded model", len(calls))
	}
	if !events.hasDiag("skipped") {
		t.Fatalf("missing skip diagnostic, got %v", events.diags)
	}
}
