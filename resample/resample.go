// Package resample converts PCM sample streams between rates using linear
// interpolation. A Resampler carries the fractional read position and the
// unconsumed input tail across calls, so output depends only on the total
// input sequence, never on how it was chunked.
package resample

import "time"

// DefaultChunk bounds the size of slices handed to the sink, keeping
// downstream latency at roughly 30ms of audio.
const DefaultChunk = 30 * time.Millisecond

type Resampler struct {
	inRate  int
	outRate int
	step    float64 // input samples advanced per output sample

	buf []float32 // unconsumed input
	pos float64   // fractional cursor into buf

	chunk int       // max output samples per sink call
	out   []float32 // pending output, len < chunk between calls to emit
}

// New creates a converter from inRate to outRate. chunk bounds the audio
// duration of each sink invocation; zero selects DefaultChunk.
func New(inRate, outRate int, chunk time.Duration) *Resampler {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	chunkSamples := int(chunk * time.Duration(outRate) / time.Second)
	if chunkSamples < 1 {
		chunkSamples = 1
	}
	return &Resampler{
		inRate:  inRate,
		outRate: outRate,
		step:    float64(inRate) / float64(outRate),
		chunk:   chunkSamples,
		out:     make([]float32, 0, chunkSamples),
	}
}

func (r *Resampler) InRate() int  { return r.inRate }
func (r *Resampler) OutRate() int { return r.outRate }

// Push consumes samples and invokes sink with every whole output sample now
// obtainable, in chunks of at most the configured size. The sink slice is
// reused between invocations; copy out anything retained. Empty input is a
// no-op. Equal rates pass samples through unchanged.
func (r *Resampler) Push(samples []float32, sink func([]float32)) {
	if len(samples) == 0 {
		return
	}
	if r.inRate == r.outRate {
		r.emitAll(samples, sink)
		r.flush(sink)
		return
	}

	r.buf = append(r.buf, samples...)

	// Interpolation needs the sample after the cursor, so the final input
	// sample is held until the next push supplies its neighbor.
	for int(r.pos)+1 < len(r.buf) {
		i := int(r.pos)
		frac := float32(r.pos - float64(i))
		y := r.buf[i]*(1-frac) + r.buf[i+1]*frac
		r.emit(y, sink)
		r.pos += r.step
	}

	// Drop consumed input, keeping the sample under the cursor.
	if n := int(r.pos); n > 0 {
		keep := n
		if keep > len(r.buf) {
			keep = len(r.buf)
		}
		r.buf = append(r.buf[:0], r.buf[keep:]...)
		r.pos -= float64(keep)
	}

	r.flush(sink)
}

func (r *Resampler) emit(s float32, sink func([]float32)) {
	r.out = append(r.out, s)
	if len(r.out) >= r.chunk {
		sink(r.out)
		r.out = r.out[:0]
	}
}

func (r *Resampler) emitAll(samples []float32, sink func([]float32)) {
	for _, s := range samples {
		r.emit(s, sink)
	}
}

func (r *Resampler) flush(sink func([]float32)) {
	if len(r.out) > 0 {
		sink(r.out)
		r.out = r.out[:0]
	}
}
