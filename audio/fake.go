package audio

import (
	"sync"
	"time"
)

const fakeChunkFrames = 1024

// FakeContext replays a fixed sample buffer through the CaptureDevice
// contract. With realtime set, chunks are paced at the configured sample
// rate; otherwise the whole buffer is delivered on Start and silence follows.
type FakeContext struct {
	pcm      []float32
	realtime bool
	devices  []DeviceInfo

	// StartErr, when set, is returned by Start on every capture the
	// context creates.
	StartErr error

	mu       sync.Mutex
	captures int
}

func NewFakeContext(pcm []float32, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

// SetDevices overrides the device list returned by Devices.
func (f *FakeContext) SetDevices(devices []DeviceInfo) { f.devices = devices }

func (f *FakeContext) Devices() ([]DeviceInfo, error)       { return f.devices, nil }
func (f *FakeContext) OutputDevices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                               {}

// Captures reports how many capture devices the context has created.
func (f *FakeContext) Captures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}

func (f *FakeContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	f.captures++
	f.mu.Unlock()
	name := "fake"
	if device != nil {
		name = device.Name
	}
	rate := config.SampleRate
	if rate == 0 {
		rate = WhisperRate
	}
	return &FakeCapture{
		pcm:      f.pcm,
		realtime: f.realtime,
		rate:     int(rate),
		name:     name,
		startErr: f.StartErr,
	}, nil
}

type FakeCapture struct {
	pcm      []float32
	realtime bool
	rate     int
	name     string
	startErr error

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return f.name }

func (f *FakeCapture) loadCallback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos int) int {
	end := min(pos+fakeChunkFrames, len(f.pcm))
	chunk := make([]float32, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk)
	return end
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	if !f.realtime {
		if cb := f.loadCallback(); cb != nil {
			for pos := 0; pos < len(f.pcm); {
				pos = f.feedChunk(cb, pos)
			}
		}
		close(f.feedDone)
		return nil
	}

	interval := time.Duration(fakeChunkFrames) * time.Second / time.Duration(f.rate)
	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]float32, fakeChunkFrames)
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			cb := f.loadCallback()
			if cb == nil {
				time.Sleep(time.Millisecond)
				continue
			}

			if pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos)
			} else {
				cb(silence)
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {}
