// Package transcriber defines the narrow contracts between the capture
// pipeline and its downstream collaborators: the speech-to-text engine and
// the transcript history store. Both are implemented outside this module.
package transcriber

import "time"

// Consumer is a speech-to-text engine. Transcribe expects mono float32
// samples at 16kHz. Model loading is asynchronous: callers check
// IsModelLoaded and may kick off a load with InitiateModelLoad, which must
// be safe to call repeatedly.
type Consumer interface {
	Transcribe(samples []float32) (string, error)
	IsModelLoaded() bool
	InitiateModelLoad()
}

// Null is a Consumer with no engine behind it: every transcript is empty.
type Null struct{}

func (Null) Transcribe([]float32) (string, error) { return "", nil }
func (Null) IsModelLoaded() bool                  { return true }
func (Null) InitiateModelLoad()                   {}

// Entry is one finished transcription with the audio that produced it.
type Entry struct {
	Samples    []float32
	SampleRate int
	Transcript string
	Source     string
	CreatedAt  time.Time
}

// HistorySink persists finished transcriptions. Save is invoked
// fire-and-forget: a failure is logged by the caller, never retried.
type HistorySink interface {
	Save(e Entry) error
}
