package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// ROI policies.
const (
	ROIPolicyBand = "band"
	ROIPolicyRSVR = "rsvr"
)

// Bandpass implementations.
const (
	BandpassButterworth   = "butterworth"
	BandpassMovingAverage = "moving_average"
)

// EnvPrefix prefixes every environment override read by ApplyEnv.
const EnvPrefix = "PULSECAM_"

// Config holds runtime configuration for the vitals pipeline and app behavior.
// Fields may be loaded from a JSON or YAML file, then overridden by environment
// variables and command-line flags. Pipeline fields are fixed once a
// controller has been constructed from the config.
type Config struct {
	Debug bool `json:"debug" yaml:"debug"`

	// Sampling and session timing
	TargetFPS                 int `json:"target_fps" yaml:"target_fps"`
	WindowSeconds             int `json:"window_seconds" yaml:"window_seconds"`
	TickIntervalMillis        int `json:"tick_interval_ms" yaml:"tick_interval_ms"`
	MeasurementDurationMillis int `json:"measurement_duration_ms" yaml:"measurement_duration_ms"`

	// Physiological bounds
	MinBPM float64 `json:"min_bpm" yaml:"min_bpm"`
	MaxBPM float64 `json:"max_bpm" yaml:"max_bpm"`

	// Signal filtering
	LowCutHz  float64 `json:"low_cut_hz" yaml:"low_cut_hz"`
	HighCutHz float64 `json:"high_cut_hz" yaml:"high_cut_hz"`
	Bandpass  string  `json:"bandpass" yaml:"bandpass"`

	// Face tracking and ROI
	RescanIntervalMillis int     `json:"rescan_interval_ms" yaml:"rescan_interval_ms"`
	ROIPolicy            string  `json:"roi_policy" yaml:"roi_policy"`
	RSVRAlpha            float64 `json:"rsvr_alpha" yaml:"rsvr_alpha"`
	CascadePath          string  `json:"cascade_path" yaml:"cascade_path"`

	// Frame source. A zero-sized selection captures the full screen.
	ReplayDir  string `json:"replay_dir" yaml:"replay_dir"`
	SelectionX int    `json:"selection_x" yaml:"selection_x"`
	SelectionY int    `json:"selection_y" yaml:"selection_y"`
	SelectionW int    `json:"selection_w" yaml:"selection_w"`
	SelectionH int    `json:"selection_h" yaml:"selection_h"`

	// Result outputs
	NATSURL         string `json:"nats_url" yaml:"nats_url"`
	ReadingsSubject string `json:"readings_subject" yaml:"readings_subject"`
	ResultsSubject  string `json:"results_subject" yaml:"results_subject"`
	HTTPAddr        string `json:"http_addr" yaml:"http_addr"`
	Once            bool   `json:"once" yaml:"once"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:                     false,
		TargetFPS:                 30,
		WindowSeconds:             8,
		TickIntervalMillis:        250,
		MeasurementDurationMillis: 15000,
		MinBPM:                    40,
		MaxBPM:                    200,
		LowCutHz:                  0.4,
		HighCutHz:                 4.0,
		Bandpass:                  BandpassButterworth,
		RescanIntervalMillis:      1000,
		ROIPolicy:                 ROIPolicyRSVR,
		RSVRAlpha:                 0.2,
		CascadePath:               "cascade/facefinder",
		ReadingsSubject:           "vitals.readings",
		ResultsSubject:            "vitals.results",
	}
}

// Validate rejects values the pipeline cannot run with and clamps the
// remaining ones to safe ranges.
func (c *Config) Validate() error {
	if c.TargetFPS <= 0 {
		return fmt.Errorf("config: target_fps must be positive, got %d", c.TargetFPS)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("config: window_seconds must be positive, got %d", c.WindowSeconds)
	}
	if c.TickIntervalMillis <= 0 {
		return fmt.Errorf("config: tick_interval_ms must be positive, got %d", c.TickIntervalMillis)
	}
	if c.MeasurementDurationMillis <= 0 {
		return fmt.Errorf("config: measurement_duration_ms must be positive, got %d", c.MeasurementDurationMillis)
	}
	if c.MinBPM <= 0 || c.MaxBPM <= c.MinBPM {
		return fmt.Errorf("config: invalid bpm bounds [%v, %v]", c.MinBPM, c.MaxBPM)
	}
	if c.RescanIntervalMillis <= 0 {
		c.RescanIntervalMillis = 1000
	}
	if c.RSVRAlpha <= 0 || c.RSVRAlpha > 1 {
		c.RSVRAlpha = 0.2
	}
	if c.LowCutHz <= 0 {
		c.LowCutHz = 0.4
	}
	nyquist := float64(c.TargetFPS) / 2
	if c.HighCutHz <= c.LowCutHz || c.HighCutHz >= nyquist {
		c.HighCutHz = min(4.0, nyquist*0.9)
		if c.HighCutHz <= c.LowCutHz {
			return fmt.Errorf("config: target_fps %d too low for a %v Hz low cut", c.TargetFPS, c.LowCutHz)
		}
	}
	switch c.Bandpass {
	case BandpassButterworth, BandpassMovingAverage:
	default:
		c.Bandpass = BandpassButterworth
	}
	switch c.ROIPolicy {
	case ROIPolicyBand, ROIPolicyRSVR:
	default:
		c.ROIPolicy = ROIPolicyRSVR
	}
	if c.SelectionW < 0 || c.SelectionH < 0 {
		c.SelectionW, c.SelectionH = 0, 0
	}
	return nil
}

// WindowCapacity is the number of samples held by the signal buffer.
func (c *Config) WindowCapacity() int { return c.TargetFPS * c.WindowSeconds }

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMillis) * time.Millisecond
}

func (c *Config) MeasurementDuration() time.Duration {
	return time.Duration(c.MeasurementDurationMillis) * time.Millisecond
}

func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.RescanIntervalMillis) * time.Millisecond
}

// Load attempts to read configuration from the given JSON or YAML file path.
// If the file does not exist it returns DefaultConfig(). On decode error it
// returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return DefaultConfig(), fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return DefaultConfig(), fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Save writes the configuration to the given path, in YAML when the
// extension asks for it and JSON otherwise.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from PULSECAM_* environment variables and
// re-validates the result.
func (c *Config) ApplyEnv() error {
	ints := map[string]*int{
		"TARGET_FPS":              &c.TargetFPS,
		"WINDOW_SECONDS":          &c.WindowSeconds,
		"TICK_INTERVAL_MS":        &c.TickIntervalMillis,
		"MEASUREMENT_DURATION_MS": &c.MeasurementDurationMillis,
		"RESCAN_INTERVAL_MS":      &c.RescanIntervalMillis,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	floats := map[string]*float64{
		"MIN_BPM":     &c.MinBPM,
		"MAX_BPM":     &c.MaxBPM,
		"LOW_CUT_HZ":  &c.LowCutHz,
		"HIGH_CUT_HZ": &c.HighCutHz,
		"RSVR_ALPHA":  &c.RSVRAlpha,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}
	strs := map[string]*string{
		"BANDPASS":         &c.Bandpass,
		"ROI_POLICY":       &c.ROIPolicy,
		"CASCADE_PATH":     &c.CascadePath,
		"REPLAY_DIR":       &c.ReplayDir,
		"NATS_URL":         &c.NATSURL,
		"READINGS_SUBJECT": &c.ReadingsSubject,
		"RESULTS_SUBJECT":  &c.ResultsSubject,
		"HTTP_ADDR":        &c.HTTPAddr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %sDEBUG: %w", EnvPrefix, err)
		}
		c.Debug = b
	}
	return c.Validate()
}
