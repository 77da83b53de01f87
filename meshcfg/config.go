// Package meshcfg holds the Mesh engine's ambient configuration surface:
// loudness/interpolation/block-size settings consumed via engine commands
// (§6), plus device and logging settings the engine itself never reads.
package meshcfg

/*------------------------------------------------------------------
 *
 * Purpose:	YAML-backed configuration, layered with command-line flag
 *		overrides, the way the teacher's cmd/*/main.go binaries
 *		layer pflag over file/default configuration.
 *
 * Description:	The engine intentionally does not read from the filesystem
 *		(§6); this package exists entirely for the cmd/meshd harness
 *		to assemble a LoudnessConfig, pick an interpolation method,
 *		and choose device/log settings before constructing the
 *		engine and pushing the result in as commands.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// InterpolationMethod mirrors engine.InterpolationMethod without importing
// the engine package, so meshcfg stays a leaf dependency.
type InterpolationMethod string

const (
	InterpolationLinear InterpolationMethod = "linear"
	InterpolationCubic  InterpolationMethod = "cubic"
	InterpolationSinc   InterpolationMethod = "sinc"
)

// LoudnessConfig is the §6 configuration surface for automatic gain.
type LoudnessConfig struct {
	AutoGainEnabled bool    `yaml:"auto_gain_enabled"`
	TargetLUFS      float64 `yaml:"target_lufs"`
}

// DeviceConfig selects the audio hardware cmd/meshd opens via PortAudio.
type DeviceConfig struct {
	OutputDeviceName string `yaml:"output_device"`
	CueDeviceName    string `yaml:"cue_device"`
	SampleRate       int    `yaml:"sample_rate"`
	BlockSize        int    `yaml:"block_size"`
	CommandQueueSize int    `yaml:"command_queue_size"`
}

// Config is the full YAML document cmd/meshd loads at startup.
type Config struct {
	Loudness      LoudnessConfig      `yaml:"loudness"`
	Interpolation InterpolationMethod `yaml:"interpolation"`
	Device        DeviceConfig        `yaml:"device"`
	LogLevel      string              `yaml:"log_level"`
	Autoload      [4]string           `yaml:"autoload"` // stem bundle path per deck, empty = none
}

// Default returns the configuration cmd/meshd falls back to when no config
// file is present.
func Default() Config {
	return Config{
		Loudness:      LoudnessConfig{AutoGainEnabled: true, TargetLUFS: -14},
		Interpolation: InterpolationSinc,
		Device: DeviceConfig{
			SampleRate:       48000,
			BlockSize:        512,
			CommandQueueSize: 64,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file, starting from Default() so a
// partial file only overrides the fields it specifies.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("meshcfg: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("meshcfg: parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks field ranges that a malformed YAML file could otherwise
// push silently into the engine as clamped nonsense.
func (c Config) Validate() error {
	if c.Device.SampleRate <= 0 {
		return fmt.Errorf("meshcfg: sample_rate must be positive, got %d", c.Device.SampleRate)
	}
	if c.Device.BlockSize <= 0 {
		return fmt.Errorf("meshcfg: block_size must be positive, got %d", c.Device.BlockSize)
	}
	switch c.Interpolation {
	case InterpolationLinear, InterpolationCubic, InterpolationSinc:
	default:
		return fmt.Errorf("meshcfg: unknown interpolation method %q", c.Interpolation)
	}
	return nil
}

// LinearGainFor computes the linear gain to apply to bring measuredLUFS to
// the configured target, per §6: linear_gain = 10^((target-measured)/20).
// This mirrors engine.LoudnessConfig.LinearGainFor; meshcfg carries its own
// copy so loader code that only has a meshcfg.LoudnessConfig (read before
// the engine exists) can compute it without importing engine.
func (c LoudnessConfig) LinearGainFor(measuredLUFS float64) float64 {
	if !c.AutoGainEnabled {
		return 1.0
	}
	return math.Pow(10, (c.TargetLUFS-measuredLUFS)/20.0)
}
