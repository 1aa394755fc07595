// Package recorder owns the single active capture session: the recording
// state machine, always-on versus on-demand mode switching, and the
// continuous sliding-window loop that feeds system audio to the
// transcription consumer.
package recorder

import (
	"errors"
	"strings"
	"sync"
	"time"

	"murmur/audio"
	"murmur/capture"
	"murmur/log"
	"murmur/transcriber"
	"murmur/vad"
)

type Mode int

const (
	OnDemand Mode = iota
	AlwaysOn
)

func (m Mode) String() string {
	switch m {
	case OnDemand:
		return "on-demand"
	case AlwaysOn:
		return "always-on"
	default:
		return "unknown"
	}
}

// State is the recording state machine: Idle, or Recording with the session
// id that started it.
type State struct {
	Recording bool
	SessionID uint64
}

const (
	// Segments shorter than a second are zero-padded to 1.25s before
	// transcription; models do poorly on very short buffers.
	minSegmentSamples = audio.WhisperRate
	paddedSamples     = audio.WhisperRate * 5 / 4

	defaultWindowInterval = 3 * time.Second
	defaultPumpInterval   = 100 * time.Millisecond
	defaultModelPoll      = 500 * time.Millisecond
	defaultModelWait      = 10 * time.Second

	// switchWait bounds how long a second device-switch caller waits for
	// an in-flight switch before giving up and re-checking state.
	switchWait = 2 * time.Second
)

var ErrClosed = errors.New("recorder closed")

// Options configures an Orchestrator. Selector and Consumer are required;
// zero durations take the defaults above.
type Options struct {
	Selector *capture.Selector
	Consumer transcriber.Consumer
	History  transcriber.HistorySink
	Events   EventSink

	Mode   Mode
	Source capture.Source

	// NewDetector builds the per-session voice detector. Defaults to the
	// WebRTC detector with an energy fallback.
	NewDetector func() *vad.Smoothed

	WindowInterval time.Duration
	PumpInterval   time.Duration
	ModelPoll      time.Duration
	ModelWait      time.Duration
}

// Orchestrator serializes all stream lifecycle changes: at most one capture
// backend is active at a time, and device switches go through a single
// in-flight guard.
type Orchestrator struct {
	selector *capture.Selector
	consumer transcriber.Consumer
	history  transcriber.HistorySink
	events   EventSink

	newDetector func() *vad.Smoothed

	windowInterval time.Duration
	pumpInterval   time.Duration
	modelPoll      time.Duration
	modelWait      time.Duration

	mu            sync.Mutex
	mode          Mode
	source        capture.Source
	backend       capture.Backend
	recording     bool
	sessionID     uint64
	session       *session
	switching     chan struct{}
	windowRunning bool
	closed        bool
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		selector:       opts.Selector,
		consumer:       opts.Consumer,
		history:        opts.History,
		events:         opts.Events,
		newDetector:    opts.NewDetector,
		mode:           opts.Mode,
		source:         opts.Source,
		windowInterval: opts.WindowInterval,
		pumpInterval:   opts.PumpInterval,
		modelPoll:      opts.ModelPoll,
		modelWait:      opts.ModelWait,
	}
	if o.events == nil {
		o.events = nopSink{}
	}
	if o.newDetector == nil {
		o.newDetector = defaultDetector
	}
	if o.windowInterval <= 0 {
		o.windowInterval = defaultWindowInterval
	}
	if o.pumpInterval <= 0 {
		o.pumpInterval = defaultPumpInterval
	}
	if o.modelPoll <= 0 {
		o.modelPoll = defaultModelPoll
	}
	if o.modelWait <= 0 {
		o.modelWait = defaultModelWait
	}
	return o
}

func defaultDetector() *vad.Smoothed {
	base, err := vad.NewWebRTC(2)
	if err != nil {
		log.Warnf("webrtc vad unavailable, falling back to energy detector: %v", err)
		return vad.NewSmoothed(vad.NewEnergy(0), vad.DefaultAttack, vad.DefaultRelease, vad.DefaultPreroll)
	}
	return vad.NewSmoothed(base, vad.DefaultAttack, vad.DefaultRelease, vad.DefaultPreroll)
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{Recording: o.recording, SessionID: o.sessionID}
}

func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

func (o *Orchestrator) Source() capture.Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// StreamOpen reports whether a capture backend is open and active.
func (o *Orchestrator) StreamOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backend != nil && o.backend.IsActive()
}

// Open applies the configured mode and source, opening the capture stream
// and starting the sliding-window loop as needed. Call it once after
// construction.
func (o *Orchestrator) Open() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.mu.Unlock()
	return o.reconcile()
}

// TryStart begins a recording session. Starting while already recording is
// a no-op success: the stream is open and a second backend is never opened.
func (o *Orchestrator) TryStart(id uint64) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.recording {
		o.mu.Unlock()
		diagf(o.events, "already recording (session %d), start ignored", o.sessionID)
		return nil
	}
	o.mu.Unlock()

	if err := o.ensureStream(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recording || o.backend == nil {
		return nil
	}
	// Discard anything buffered before this session so stale audio cannot
	// leak into it.
	o.backend.ReadAvailable()
	o.session = newSession(o.backend, o.newDetector(), o.events, o.pumpInterval)
	o.recording = true
	o.sessionID = id
	diagf(o.events, "recording started (session %d, %s)", id, o.backend.Name())
	return nil
}

// Stop ends the session with the matching id and returns the recorded
// segment, zero-padded to 1.25s when shorter than a second. A stale or
// mismatched id is ignored and returns nothing.
func (o *Orchestrator) Stop(id uint64) ([]float32, error) {
	o.mu.Lock()
	if !o.recording || o.sessionID != id {
		o.mu.Unlock()
		diagf(o.events, "stop for session %d ignored: nothing to stop", id)
		return nil, nil
	}
	sess := o.session
	o.session = nil
	o.recording = false
	mode := o.mode
	o.mu.Unlock()

	segment := sess.finish()
	if mode == OnDemand {
		o.closeStream()
	}
	if len(segment) == 0 {
		diagf(o.events, "recording stopped (session %d): no speech detected", id)
		return nil, nil
	}
	audio.Condition(segment, audio.WhisperRate)
	segment = PadShort(segment)
	diagf(o.events, "recording stopped (session %d): %.2fs of audio",
		id, float64(len(segment))/audio.WhisperRate)
	return segment, nil
}

// Cancel discards the active session without returning its audio.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	if !o.recording {
		o.mu.Unlock()
		return nil
	}
	sess := o.session
	o.session = nil
	o.recording = false
	mode := o.mode
	o.mu.Unlock()

	sess.finish()
	if mode == OnDemand {
		o.closeStream()
	}
	diagf(o.events, "recording cancelled")
	return nil
}

// SetMode switches between always-on and on-demand streaming. Always-on
// opens the stream immediately; on-demand closes it unless a session is
// running.
func (o *Orchestrator) SetMode(m Mode) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.mode == m {
		o.mu.Unlock()
		return nil
	}
	o.mode = m
	o.mu.Unlock()
	diagf(o.events, "microphone mode set to %s", m)
	return o.reconcile()
}

// SetSource switches between microphone and system audio. An active
// session is cancelled first; an open stream is rebuilt for the new source.
func (o *Orchestrator) SetSource(s capture.Source) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.source == s {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	o.Cancel()

	o.mu.Lock()
	o.source = s
	wasOpen := o.backend != nil
	o.mu.Unlock()
	diagf(o.events, "audio source set to %s", s)

	if wasOpen {
		o.closeStream()
	}
	return o.reconcile()
}

// UpdateSelectedDevice changes the preferred input device. If a stream is
// open it is stopped and restarted with the new configuration; concurrent
// switches are serialized through the in-flight guard, with late arrivals
// waiting briefly and re-checking instead of double-starting.
func (o *Orchestrator) UpdateSelectedDevice(name string) error {
	o.selector.SetMicrophone(name)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.backend == nil {
		// Nothing open; the next start picks up the new device.
		o.mu.Unlock()
		return nil
	}
	source := o.source
	o.mu.Unlock()

	if !o.acquireSwitch() {
		// A concurrent switch is still in flight past the wait bound; it
		// will finish with the selector's latest configuration.
		return nil
	}
	defer o.releaseSwitch()

	o.closeStream()

	backend, err := o.selector.Open(source)
	if err != nil {
		diagf(o.events, "device switch failed: %v", err)
		return err
	}
	o.mu.Lock()
	o.backend = backend
	o.mu.Unlock()
	diagf(o.events, "capture switched to %s", backend.Name())
	return nil
}

// Close stops everything: the active session, the stream, and (at its next
// tick) the sliding-window loop.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sess := o.session
	o.session = nil
	o.recording = false
	o.mu.Unlock()

	if sess != nil {
		sess.finish()
	}
	o.closeStream()
}

// PadShort zero-pads a segment shorter than one second out to 1.25 seconds.
// Longer segments pass through unchanged.
func PadShort(segment []float32) []float32 {
	if len(segment) == 0 || len(segment) >= minSegmentSamples {
		return segment
	}
	padded := make([]float32, paddedSamples)
	copy(padded, segment)
	return padded
}

// reconcile brings the stream and window loop in line with the current
// mode/source combination.
func (o *Orchestrator) reconcile() error {
	o.mu.Lock()
	mode, source, recording := o.mode, o.source, o.recording
	o.mu.Unlock()

	if mode == AlwaysOn || recording {
		if err := o.ensureStream(); err != nil {
			return err
		}
	} else {
		o.closeStream()
	}
	if mode == AlwaysOn && source == capture.SystemAudio {
		o.startWindowLoop()
	}
	return nil
}

// ensureStream opens the capture stream if none is open. Opening goes
// through the switch guard so two callers can never race a pair of
// backends into existence.
func (o *Orchestrator) ensureStream() error {
	o.mu.Lock()
	if o.backend != nil {
		o.mu.Unlock()
		return nil
	}
	source := o.source
	o.mu.Unlock()

	if !o.acquireSwitch() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.backend != nil {
			return nil
		}
		return errors.New("capture stream busy: concurrent switch in flight")
	}
	defer o.releaseSwitch()

	o.mu.Lock()
	if o.backend != nil {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	backend, err := o.selector.Open(source)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.backend = backend
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) closeStream() {
	o.mu.Lock()
	backend := o.backend
	o.backend = nil
	o.mu.Unlock()
	if backend != nil {
		backend.Stop()
	}
}

// acquireSwitch claims the single in-flight switch marker. A second caller
// waits up to switchWait for the current holder, then reports failure so
// the caller re-checks state instead of double-starting.
func (o *Orchestrator) acquireSwitch() bool {
	o.mu.Lock()
	if o.switching == nil {
		o.switching = make(chan struct{})
		o.mu.Unlock()
		return true
	}
	inflight := o.switching
	o.mu.Unlock()

	select {
	case <-inflight:
	case <-time.After(switchWait):
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.switching == nil {
		o.switching = make(chan struct{})
		return true
	}
	return false
}

func (o *Orchestrator) releaseSwitch() {
	o.mu.Lock()
	done := o.switching
	o.switching = nil
	o.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Submit hands a 16kHz segment to the transcription consumer, waiting for
// the model to load first. On success the transcript goes out as a caption
// update and to the history sink fire-and-forget.
func (o *Orchestrator) Submit(segment []float32, source string) {
	if len(segment) == 0 {
		return
	}
	if !o.waitModelReady() {
		diagf(o.events, "transcription model not ready after %s, segment skipped", o.modelWait)
		return
	}
	log.Segment(source, len(segment), audio.RMS(segment), audio.Peak(segment))
	text, err := o.consumer.Transcribe(segment)
	if err != nil {
		log.Errorf("transcription failed: %v", err)
		diagf(o.events, "transcription failed: %v", err)
		return
	}
	text = strings.TrimSpace(text)
	if text != "" {
		o.events.Caption(text)
	}
	if o.history != nil {
		entry := transcriber.Entry{
			Samples:    segment,
			SampleRate: audio.WhisperRate,
			Transcript: text,
			Source:     source,
			CreatedAt:  time.Now(),
		}
		go func() {
			if err := o.history.Save(entry); err != nil {
				log.Errorf("history save failed: %v", err)
			}
		}()
	}
}

func (o *Orchestrator) waitModelReady() bool {
	if o.consumer.IsModelLoaded() {
		return true
	}
	o.consumer.InitiateModelLoad()
	deadline := time.Now().Add(o.modelWait)
	for time.Now().Before(deadline) {
		time.Sleep(o.modelPoll)
		if o.consumer.IsModelLoaded() {
			return true
		}
	}
	return false
}
