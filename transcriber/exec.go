package transcriber

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strings"
)

// ExecConsumer shells out to an external speech-to-text command. The
// segment is piped to stdin as a 16kHz mono 16-bit WAV; the transcript is
// whatever the command prints to stdout. The command is expected to hold
// its own model, so the model is always considered loaded.
type ExecConsumer struct {
	Path string
	Args []string

	SampleRate int // defaults to 16000
}

func (c *ExecConsumer) Transcribe(samples []float32) (string, error) {
	rate := c.SampleRate
	if rate == 0 {
		rate = 16000
	}
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(encodeWAV(samples, rate))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("running %s: %w", c.Path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *ExecConsumer) IsModelLoaded() bool { return true }

func (c *ExecConsumer) InitiateModelLoad() {}

// encodeWAV wraps mono float32 samples in a PCM16 WAV container.
func encodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		v := s * 32767
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.Write(buf, binary.LittleEndian, int16(v))
	}
	return buf.Bytes()
}
