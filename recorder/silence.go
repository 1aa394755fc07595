package recorder

import "time"

const (
	// silenceRMS separates "device open but silent" from "receiving audio".
	silenceRMS = 1e-5

	silenceHintEvery = 30 * time.Second
)

type SilenceEvent int

const (
	SilenceNone SilenceEvent = iota
	SilenceBegan
	SilenceEnded // audio detected after silence
	SilenceHint  // rate-limited routing guidance while silent
)

// silenceTracker watches the RMS of emitted window segments and reports
// transitions between silent and active audio plus periodic hints while the
// source stays silent, so the log is not spammed every window.
type silenceTracker struct {
	observed bool
	silent   bool
	lastHint time.Time
}

func (t *silenceTracker) Observe(rms float64, now time.Time) SilenceEvent {
	silent := rms < silenceRMS

	if !t.observed {
		t.observed = true
		t.silent = silent
		t.lastHint = now
		if silent {
			return SilenceBegan
		}
		return SilenceNone
	}

	if silent != t.silent {
		t.silent = silent
		t.lastHint = now
		if silent {
			return SilenceBegan
		}
		return SilenceEnded
	}

	if silent && now.Sub(t.lastHint) >= silenceHintEvery {
		t.lastHint = now
		return SilenceHint
	}
	return SilenceNone
}
