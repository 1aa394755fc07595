package recorder

import (
	"time"

	"murmur/audio"
	"murmur/capture"
	"murmur/resample"
)

const (
	// minWindowSamples is how much 16kHz audio must accumulate before a
	// segment is cut; overlapSamples is retained as the start of the next
	// window so no sample is lost across the boundary.
	minWindowSamples = 2 * audio.WhisperRate
	overlapSamples   = audio.WhisperRate
)

// windowAccum holds audio between window cuts. Every sample added is either
// extracted into a segment or retained as the overlap tail, never dropped.
type windowAccum struct {
	acc []float32
}

func (w *windowAccum) Add(samples []float32) {
	w.acc = append(w.acc, samples...)
}

// Cut returns everything except the overlap tail once enough audio has
// accumulated, or nil when the window is still filling.
func (w *windowAccum) Cut() []float32 {
	if len(w.acc) < minWindowSamples {
		return nil
	}
	cut := len(w.acc) - overlapSamples
	segment := make([]float32, cut)
	copy(segment, w.acc[:cut])
	w.acc = append(w.acc[:0], w.acc[cut:]...)
	return segment
}

// Tail returns the currently retained overlap.
func (w *windowAccum) Tail() []float32 { return w.acc }

func (o *Orchestrator) startWindowLoop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.windowRunning || o.closed {
		return
	}
	o.windowRunning = true
	go o.runWindowLoop()
}

// runWindowLoop is the continuous transcription loop for always-on system
// audio. Cancellation is polled: it checks mode and source at the top of
// every interval and retires itself when either changed.
func (o *Orchestrator) runWindowLoop() {
	var (
		rs      *resample.Resampler
		window  windowAccum
		tracker silenceTracker
	)
	diagf(o.events, "system audio transcription loop started")

	start := time.Now()
	for {
		o.windowSleep(start)
		start = time.Now()

		o.mu.Lock()
		if o.closed || o.mode != AlwaysOn || o.source != capture.SystemAudio {
			o.windowRunning = false
			o.mu.Unlock()
			diagf(o.events, "system audio transcription loop stopped")
			return
		}
		backend := o.backend
		o.mu.Unlock()

		if backend == nil {
			// Mid-switch or the stream failed; keep polling in case the
			// condition resolves.
			continue
		}

		samples, err := backend.ReadAvailable()
		if err != nil {
			diagf(o.events, "system audio read failed: %v", err)
			continue
		}
		if len(samples) == 0 {
			// The backend is open but producing nothing, either because
			// the OS routes no audio through it or the producer died.
			switch tracker.Observe(0, time.Now()) {
			case SilenceBegan:
				diagf(o.events, "no system audio arriving from %s", backend.Name())
			case SilenceHint:
				diagf(o.events, "still no system audio; check that output is "+
					"routed through the capture device")
			}
			continue
		}

		if backend.SampleRate() != audio.WhisperRate {
			if rs == nil || rs.InRate() != backend.SampleRate() {
				rs = resample.New(backend.SampleRate(), audio.WhisperRate, 0)
			}
			rs.Push(samples, func(chunk []float32) {
				window.Add(chunk)
			})
		} else {
			window.Add(samples)
		}

		segment := window.Cut()
		if segment == nil {
			continue
		}
		o.observeLevels(&tracker, segment)
		o.Submit(segment, "system-audio")
	}
}

// windowSleep pauses for whatever remains of the window interval after the
// work done since start, keeping the loop on a fixed cadence even when a
// transcription takes a while.
func (o *Orchestrator) windowSleep(start time.Time) {
	if d := o.windowInterval - time.Since(start); d > 0 {
		time.Sleep(d)
	}
}

func (o *Orchestrator) observeLevels(tracker *silenceTracker, segment []float32) {
	rms := audio.RMS(segment)
	peak := audio.Peak(segment)
	switch tracker.Observe(rms, time.Now()) {
	case SilenceBegan:
		diagf(o.events, "system audio went silent (rms=%.2e peak=%.2e)", rms, peak)
	case SilenceEnded:
		diagf(o.events, "system audio detected (rms=%.2e peak=%.2e)", rms, peak)
	case SilenceHint:
		diagf(o.events, "still no system audio; check that output is routed "+
			"through the capture device")
	}
}
