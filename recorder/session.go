package recorder

import (
	"sync"
	"time"

	"murmur/audio"
	"murmur/capture"
	"murmur/resample"
	"murmur/vad"
)

// session pumps one explicit start/stop recording: it drains the backend on
// a fixed cadence, converts to the transcription rate, and gates frames
// through the smoothed detector so only voiced audio (plus pre-roll and
// trailing pad) is retained.
type session struct {
	backend  capture.Backend
	detector *vad.Smoothed
	rs       *resample.Resampler // nil when the backend runs at 16kHz
	events   EventSink
	interval time.Duration

	mu     sync.Mutex
	pcm    []float32 // samples at 16kHz awaiting frame alignment
	voiced []float32

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newSession(backend capture.Backend, detector *vad.Smoothed, events EventSink, interval time.Duration) *session {
	s := &session{
		backend:  backend,
		detector: detector,
		events:   events,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if backend.SampleRate() != audio.WhisperRate {
		s.rs = resample.New(backend.SampleRate(), audio.WhisperRate, 0)
	}
	go s.run()
	return s
}

func (s *session) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			s.pump(true)
			return
		case <-ticker.C:
			s.pump(false)
		}
	}
}

func (s *session) pump(final bool) {
	samples, err := s.backend.ReadAvailable()
	if err != nil {
		diagf(s.events, "capture read failed: %v", err)
		return
	}

	var in []float32
	if s.rs != nil {
		s.rs.Push(samples, func(chunk []float32) {
			in = append(in, chunk...)
		})
	} else {
		in = samples
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pcm = append(s.pcm, in...)

	aligned := len(s.pcm) / vad.FrameSize * vad.FrameSize
	for off := 0; off < aligned; off += vad.FrameSize {
		emitted, err := s.detector.Push(s.pcm[off : off+vad.FrameSize])
		if err != nil {
			diagf(s.events, "voice detection failed: %v", err)
			break
		}
		for _, frame := range emitted {
			s.voiced = append(s.voiced, frame...)
		}
	}
	s.pcm = append(s.pcm[:0], s.pcm[aligned:]...)

	// Keep the sub-frame tail of an utterance in progress instead of
	// clipping it at stop time.
	if final && s.detector.InSpeech() {
		s.voiced = append(s.voiced, s.pcm...)
		s.pcm = nil
	}
}

// finish stops the pump and returns everything it retained.
func (s *session) finish() []float32 {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.voiced
	s.voiced = nil
	return out
}
