// Package vad classifies fixed-size mono audio frames as speech or
// non-speech. Detectors operate on 20ms frames at 16kHz; the Smoothed
// wrapper adds attack/release hysteresis and pre-roll retention.
package vad

import (
	"encoding/binary"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"murmur/audio"
)

const (
	SampleRate = 16000
	FrameMs    = 20
	// FrameSize is the number of samples per detector frame.
	FrameSize = SampleRate * FrameMs / 1000
)

// Detector classifies one FrameSize mono frame. The confidence is in [0,1];
// binary classifiers report 0 or 1.
type Detector interface {
	IsSpeech(frame []float32) (bool, float32, error)
}

// WebRTC wraps the WebRTC voice activity detector.
type WebRTC struct {
	vad *webrtcvad.VAD
}

// NewWebRTC creates a detector with the given aggressiveness mode (0-3,
// higher filters more non-speech).
func NewWebRTC(mode int) (*WebRTC, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtcvad: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("webrtcvad mode %d: %w", mode, err)
	}
	return &WebRTC{vad: v}, nil
}

func (w *WebRTC) IsSpeech(frame []float32) (bool, float32, error) {
	if len(frame) != FrameSize {
		return false, 0, fmt.Errorf("frame has %d samples, want %d", len(frame), FrameSize)
	}

	// The WebRTC detector takes 16-bit little-endian PCM.
	pcm := make([]byte, FrameSize*2)
	for i, s := range frame {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}

	active, err := w.vad.Process(SampleRate, pcm)
	if err != nil {
		return false, 0, fmt.Errorf("webrtcvad process: %w", err)
	}
	if active {
		return true, 1, nil
	}
	return false, 0, nil
}

// Energy is an RMS-threshold detector. It serves tests and platforms where
// the native detector is unavailable.
type Energy struct {
	Threshold float64
}

func NewEnergy(threshold float64) *Energy {
	if threshold <= 0 {
		threshold = 0.01
	}
	return &Energy{Threshold: threshold}
}

func (e *Energy) IsSpeech(frame []float32) (bool, float32, error) {
	rms := audio.RMS(frame)
	conf := float32(rms / e.Threshold)
	if conf > 1 {
		conf = 1
	}
	return rms >= e.Threshold, conf, nil
}
