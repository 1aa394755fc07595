package vad

// Smoothed wraps a base detector with hysteresis: attack frames before
// flipping to speech, release frames before flipping back, and a pre-roll
// buffer replayed at speech onset so utterance starts are never clipped.
type Smoothed struct {
	base    Detector
	attack  int
	release int
	preroll int

	inSpeech   bool
	speechRun  int
	silenceRun int

	// pending holds the pre-roll tail plus the frames of the current
	// attack run; flushed whole when the run confirms.
	pending [][]float32
}

// Defaults matching a 15-frame attack/release with 2 frames of pre-roll.
const (
	DefaultAttack  = 15
	DefaultRelease = 15
	DefaultPreroll = 2
)

// NewSmoothed builds the hysteresis wrapper. preroll is clamped to attack.
func NewSmoothed(base Detector, attack, release, preroll int) *Smoothed {
	if attack < 1 {
		attack = 1
	}
	if release < 1 {
		release = 1
	}
	if preroll < 0 {
		preroll = 0
	}
	if preroll > attack {
		preroll = attack
	}
	return &Smoothed{
		base:    base,
		attack:  attack,
		release: release,
		preroll: preroll,
	}
}

// InSpeech reports the current smoothed state.
func (s *Smoothed) InSpeech() bool { return s.inSpeech }

// Push classifies one frame and returns the frames to emit downstream.
// Outside speech nothing is emitted until the attack run confirms, at which
// point the buffered pre-roll and the triggering frames are flushed
// together. Inside speech every frame passes through, so the frames that
// trigger release form a natural trailing pad.
func (s *Smoothed) Push(frame []float32) ([][]float32, error) {
	active, _, err := s.base.IsSpeech(frame)
	if err != nil {
		return nil, err
	}

	if s.inSpeech {
		if active {
			s.silenceRun = 0
		} else {
			s.silenceRun++
			if s.silenceRun >= s.release {
				s.inSpeech = false
				s.silenceRun = 0
				s.speechRun = 0
			}
		}
		return [][]float32{frame}, nil
	}

	buffered := make([]float32, len(frame))
	copy(buffered, frame)
	s.pending = append(s.pending, buffered)

	if active {
		s.speechRun++
		if s.speechRun >= s.attack {
			s.inSpeech = true
			s.speechRun = 0
			out := s.pending
			s.pending = nil
			return out, nil
		}
	} else {
		s.speechRun = 0
	}

	// Keep only the pre-roll tail behind the current run.
	if keep := s.preroll + s.speechRun; len(s.pending) > keep {
		s.pending = append(s.pending[:0:0], s.pending[len(s.pending)-keep:]...)
	}
	return nil, nil
}

// Reset clears all state, discarding buffered pre-roll.
func (s *Smoothed) Reset() {
	s.inSpeech = false
	s.speechRun = 0
	s.silenceRun = 0
	s.pending = nil
}
