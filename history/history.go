// Package history archives finished transcriptions on disk: one FLAC file
// per segment plus an append-only transcript index.
package history

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"murmur/transcriber"
)

const (
	blockSize     = 4096
	bitsPerSample = 16

	indexFile = "transcripts.log"
)

type Archive struct {
	dir string
	mu  sync.Mutex
}

func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

func (a *Archive) Dir() string { return a.dir }

func (a *Archive) Save(e transcriber.Entry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	data, err := encodeFLAC(e.Samples, e.SampleRate)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name := created.Format("20060102-150405") + fmt.Sprintf("-%03d", created.Nanosecond()/1e6)
	if err := os.WriteFile(filepath.Join(a.dir, name+".flac"), data, 0o644); err != nil {
		return fmt.Errorf("writing flac: %w", err)
	}
	return a.appendIndex(created, name, e)
}

func (a *Archive) appendIndex(created time.Time, name string, e transcriber.Entry) error {
	f, err := os.OpenFile(filepath.Join(a.dir, indexFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening transcript index: %w", err)
	}
	defer f.Close()

	duration := float64(len(e.Samples)) / float64(e.SampleRate)
	transcript := strings.ReplaceAll(e.Transcript, "\n", " ")
	_, err = fmt.Fprintf(f, "%s\t%s\t%.2fs\t%s\t%s\n",
		created.Format(time.RFC3339), e.Source, duration, name+".flac", transcript)
	if err != nil {
		return fmt.Errorf("appending transcript index: %w", err)
	}
	return nil
}

// encodeFLAC writes mono float32 samples as 16-bit FLAC, verbatim
// subframes in fixed blocks.
func encodeFLAC(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: bitsPerSample,
		NSamples:      uint64(len(samples)),
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	for off := 0; off < len(samples); off += blockSize {
		end := min(off+blockSize, len(samples))
		block := make([]int32, end-off)
		for i, s := range samples[off:end] {
			block[i] = int32(clampToInt16(s))
		}
		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     uint16(len(block)),
				SampleRate:    uint32(sampleRate),
				Channels:      frame.ChannelsMono,
				BitsPerSample: bitsPerSample,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   block,
				NSamples:  len(block),
			}},
		}
		if err := enc.WriteFrame(f); err != nil {
			return nil, fmt.Errorf("writing flac frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing flac encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func clampToInt16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
