package audio

import "math"

// RMS returns the root-mean-square amplitude of samples, 0 for empty input.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude of samples.
func Peak(samples []float32) float64 {
	var max float64
	for _, s := range samples {
		abs := math.Abs(float64(s))
		if abs > max {
			max = abs
		}
	}
	return max
}
