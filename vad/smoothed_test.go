package vad

import (
	"math"
	"testing"
)

// frames at known levels: loud enough / quiet enough for the Energy detector.
func speechFrame() []float32 {
	f := make([]float32, FrameSize)
	for i := range f {
		f[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return f
}

func silenceFrame() []float32 {
	return make([]float32, FrameSize)
}

func newTestSmoothed(attack, release, preroll int) *Smoothed {
	return NewSmoothed(NewEnergy(0.01), attack, release, preroll)
}

func TestEnergyDetector(t *testing.T) {
	e := NewEnergy(0.01)
	if active, _, err := e.IsSpeech(speechFrame()); err != nil || !active {
		t.Fatalf("expected speech on loud frame (err=%v)", err)
	}
	if active, _, err := e.IsSpeech(silenceFrame()); err != nil || active {
		t.Fatalf("expected non-speech on silence (err=%v)", err)
	}
}

func TestIsolatedFrameDoesNotTrigger(t *testing.T) {
	s := newTestSmoothed(3, 3, 2)

	for i := 0; i < 5; i++ {
		if out, _ := s.Push(silenceFrame()); out != nil {
			t.Fatalf("emitted frames during silence at %d", i)
		}
	}
	if out, _ := s.Push(speechFrame()); out != nil {
		t.Fatal("single speech frame emitted output")
	}
	for i := 0; i < 5; i++ {
		if out, _ := s.Push(silenceFrame()); out != nil {
			t.Fatalf("emitted frames after isolated speech at %d", i)
		}
	}
	if s.InSpeech() {
		t.Fatal("isolated frame flipped state to speech")
	}
}

func TestAttackRunTriggersWithPreroll(t *testing.T) {
	const (
		attack  = 3
		preroll = 2
	)
	s := newTestSmoothed(attack, 3, preroll)

	for i := 0; i < 10; i++ {
		s.Push(silenceFrame())
	}

	var emitted int
	for i := 0; i < attack; i++ {
		out, err := s.Push(speechFrame())
		if err != nil {
			t.Fatal(err)
		}
		emitted += len(out)
	}

	if !s.InSpeech() {
		t.Fatal("attack run did not flip state")
	}
	if want := preroll + attack; emitted != want {
		t.Fatalf("got %d frames at onset, want %d (pre-roll + trigger)", emitted, want)
	}
}

func TestPassThroughDuringSpeech(t *testing.T) {
	s := newTestSmoothed(2, 3, 1)
	s.Push(speechFrame())
	s.Push(speechFrame()) // state flips here

	out, _ := s.Push(speechFrame())
	if len(out) != 1 {
		t.Fatalf("expected direct pass-through inside speech, got %d frames", len(out))
	}
}

func TestReleaseIncludesTrailingPad(t *testing.T) {
	const release = 3
	s := newTestSmoothed(2, release, 1)
	s.Push(speechFrame())
	s.Push(speechFrame())

	// The release-triggering silence frames pass through as trailing pad.
	for i := 0; i < release; i++ {
		out, _ := s.Push(silenceFrame())
		if len(out) != 1 {
			t.Fatalf("release frame %d not passed through", i)
		}
	}
	if s.InSpeech() {
		t.Fatal("release run did not flip state back")
	}

	// Follow-up silence is fully gated again.
	if out, _ := s.Push(silenceFrame()); out != nil {
		t.Fatal("frame emitted after release completed")
	}
}

func TestSpeechRunInterruptedResets(t *testing.T) {
	s := newTestSmoothed(3, 3, 0)
	s.Push(speechFrame())
	s.Push(speechFrame())
	s.Push(silenceFrame()) // breaks the run at 2 of 3
	s.Push(speechFrame())
	s.Push(speechFrame())
	if s.InSpeech() {
		t.Fatal("broken attack run still flipped state")
	}
	if out, _ := s.Push(speechFrame()); len(out) == 0 {
		t.Fatal("fresh complete run did not flip state")
	}
}

func TestPrerollClampedToAttack(t *testing.T) {
	s := NewSmoothed(NewEnergy(0.01), 2, 2, 10)
	if s.preroll != 2 {
		t.Fatalf("preroll %d not clamped to attack", s.preroll)
	}
}

func TestReset(t *testing.T) {
	s := newTestSmoothed(2, 2, 1)
	s.Push(speechFrame())
	s.Push(speechFrame())
	s.Reset()
	if s.InSpeech() {
		t.Fatal("state survived reset")
	}
	if out, _ := s.Push(silenceFrame()); out != nil {
		t.Fatal("emitted after reset in silence")
	}
}
