// Package config holds the YAML configuration schema and loader for murmur.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Source selects which audio family the capture selector targets.
type Source string

const (
	SourceMicrophone  Source = "microphone"
	SourceSystemAudio Source = "system-audio"
)

// IsValid reports whether s is a recognised audio source.
func (s Source) IsValid() bool {
	return s == SourceMicrophone || s == SourceSystemAudio
}

// Mode governs whether the capture stream stays open between recordings.
type Mode string

const (
	ModeOnDemand Mode = "on-demand"
	ModeAlwaysOn Mode = "always-on"
)

// IsValid reports whether m is a recognised microphone mode.
func (m Mode) IsValid() bool {
	return m == ModeOnDemand || m == ModeAlwaysOn
}

// Config is the root configuration, typically loaded from a YAML file with
// [Load] or [LoadFromReader].
type Config struct {
	// Source is the audio source to capture from.
	Source Source `yaml:"source"`

	// Mode selects always-on or on-demand streaming.
	Mode Mode `yaml:"mode"`

	// Device is the preferred input device name. Empty means the system
	// default; the name must match the enumerated device exactly.
	Device string `yaml:"device"`

	// HelperPath points at the external system-audio capture binary used
	// when no loopback device is available.
	HelperPath string `yaml:"helper_path"`

	// HistoryDir is where transcriptions and their audio are archived.
	// Empty disables the archive.
	HistoryDir string `yaml:"history_dir"`

	// LogDir overrides the platform default log directory.
	LogDir string `yaml:"log_dir"`

	VAD VADConfig `yaml:"vad"`
}

// VADConfig tunes the smoothed voice activity detector.
type VADConfig struct {
	// Attack is how many consecutive speech frames confirm an utterance.
	Attack int `yaml:"attack"`

	// Release is how many consecutive silent frames end one.
	Release int `yaml:"release"`

	// Preroll is how many frames of lead-in audio to keep before the
	// confirmed onset. Must not exceed Attack.
	Preroll int `yaml:"preroll"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Source: SourceMicrophone,
		Mode:   ModeOnDemand,
	}
}

// Load reads the YAML configuration at path. A missing file is not an
// error: the defaults are returned.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of the defaults and validates
// the result. Unknown fields are rejected.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns a joined error listing every problem found.
func (c Config) Validate() error {
	var errs []error
	if !c.Source.IsValid() {
		errs = append(errs, fmt.Errorf("source %q is invalid; valid values: %s, %s",
			c.Source, SourceMicrophone, SourceSystemAudio))
	}
	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: %s, %s",
			c.Mode, ModeOnDemand, ModeAlwaysOn))
	}
	if c.VAD.Attack < 0 || c.VAD.Release < 0 || c.VAD.Preroll < 0 {
		errs = append(errs, errors.New("vad counts must not be negative"))
	}
	if c.VAD.Attack > 0 && c.VAD.Preroll > c.VAD.Attack {
		errs = append(errs, fmt.Errorf("vad.preroll %d exceeds vad.attack %d",
			c.VAD.Preroll, c.VAD.Attack))
	}
	return errors.Join(errs...)
}
