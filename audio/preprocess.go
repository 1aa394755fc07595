package audio

import "math"

// Segment conditioning applied before audio is handed to the transcription
// consumer. Speech models degrade on DC-biased or very quiet input.

const (
	highPassCutoffHz = 80.0
	normalizeTarget  = 0.95
	quietFloor       = 0.0001 // below this peak, don't amplify noise
)

// RemoveDCOffset subtracts the mean from samples in place.
func RemoveDCOffset(samples []float32) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := float32(sum / float64(len(samples)))
	for i := range samples {
		samples[i] -= mean
	}
}

// HighPass applies a first-order IIR high-pass filter in place, removing
// rumble below ~80 Hz.
func HighPass(samples []float32, sampleRate int) {
	if len(samples) == 0 || sampleRate <= 0 {
		return
	}
	rc := 1.0 / (2.0 * math.Pi * highPassCutoffHz)
	dt := 1.0 / float64(sampleRate)
	alpha := float32(rc / (rc + dt))

	prevIn := samples[0]
	var prevOut float32
	for i, s := range samples {
		out := alpha * (prevOut + s - prevIn)
		samples[i] = out
		prevIn = s
		prevOut = out
	}
}

// Normalize scales samples in place so the peak sits at 0.95.
// Near-silent input is left untouched.
func Normalize(samples []float32) {
	peak := float32(Peak(samples))
	if peak < quietFloor {
		return
	}
	scale := float32(normalizeTarget) / peak
	for i := range samples {
		samples[i] *= scale
	}
}

// Condition runs the full chain: DC removal, high-pass, normalization.
func Condition(samples []float32, sampleRate int) {
	if len(samples) == 0 {
		return
	}
	RemoveDCOffset(samples)
	HighPass(samples, sampleRate)
	Normalize(samples)
}
