package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != SourceMicrophone || cfg.Mode != ModeOnDemand {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
source: system-audio
mode: always-on
device: USB Mic
helper_path: /usr/local/bin/capture-helper
vad:
  attack: 10
  release: 20
  preroll: 3
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != SourceSystemAudio || cfg.Mode != ModeAlwaysOn {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Device != "USB Mic" || cfg.HelperPath != "/usr/local/bin/capture-helper" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.VAD.Attack != 10 || cfg.VAD.Release != 20 || cfg.VAD.Preroll != 3 {
		t.Fatalf("vad = %+v", cfg.VAD)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("sorce: microphone\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := Config{Source: "radio", Mode: "sometimes", VAD: VADConfig{Attack: 5, Preroll: 9}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"source", "mode", "preroll"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidatePartialVAD(t *testing.T) {
	cfg := Default()
	cfg.VAD.Preroll = 2 // attack left at zero means "use the default"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
