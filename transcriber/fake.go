package transcriber

import (
	"sync"
	"time"
)

// FakeConsumer records every Transcribe call and returns a fixed result.
// LoadDelay simulates asynchronous model loading: the model reports loaded
// that long after the first InitiateModelLoad call.
type FakeConsumer struct {
	Result    string
	Err       error
	LoadDelay time.Duration

	mu       sync.Mutex
	loadedAt time.Time
	loading  bool
	calls    [][]float32
}

func (f *FakeConsumer) Transcribe(samples []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	f.calls = append(f.calls, cp)
	return f.Result, f.Err
}

func (f *FakeConsumer) IsModelLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadDelay == 0 {
		return true
	}
	return f.loading && time.Now().After(f.loadedAt)
}

func (f *FakeConsumer) InitiateModelLoad() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loading {
		f.loading = true
		f.loadedAt = time.Now().Add(f.LoadDelay)
	}
}

// Calls returns the samples of every Transcribe invocation so far.
func (f *FakeConsumer) Calls() [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]float32, len(f.calls))
	copy(out, f.calls)
	return out
}

// FakeHistory collects saved entries in memory.
type FakeHistory struct {
	Err error

	mu      sync.Mutex
	entries []Entry
}

func (f *FakeHistory) Save(e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *FakeHistory) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}
