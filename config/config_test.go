package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if c.WindowCapacity() != 240 {
		t.Fatalf("expected capacity 240, got %d", c.WindowCapacity())
	}
	if c.TickInterval() != 250*time.Millisecond || c.MeasurementDuration() != 15*time.Second {
		t.Fatalf("unexpected durations tick=%v duration=%v", c.TickInterval(), c.MeasurementDuration())
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero fps":        func(c *Config) { c.TargetFPS = 0 },
		"negative window": func(c *Config) { c.WindowSeconds = -1 },
		"zero tick":       func(c *Config) { c.TickIntervalMillis = 0 },
		"zero duration":   func(c *Config) { c.MeasurementDurationMillis = 0 },
		"inverted bpm":    func(c *Config) { c.MinBPM, c.MaxBPM = 120, 60 },
		"zero min bpm":    func(c *Config) { c.MinBPM = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidate_ClampsCosmeticValues(t *testing.T) {
	c := DefaultConfig()
	c.RSVRAlpha = 5
	c.RescanIntervalMillis = -3
	c.Bandpass = "bogus"
	c.ROIPolicy = ""
	c.HighCutHz = 50
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.RSVRAlpha != 0.2 || c.RescanIntervalMillis != 1000 {
		t.Fatalf("clamp failed alpha=%v rescan=%d", c.RSVRAlpha, c.RescanIntervalMillis)
	}
	if c.Bandpass != BandpassButterworth || c.ROIPolicy != ROIPolicyRSVR {
		t.Fatalf("enum defaults not applied: %q %q", c.Bandpass, c.ROIPolicy)
	}
	if c.HighCutHz != 4.0 {
		t.Fatalf("high cut should clamp below nyquist, got %v", c.HighCutHz)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TargetFPS != 30 {
		t.Fatalf("expected defaults, got fps=%d", c.TargetFPS)
	}
}

func TestSaveLoad_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cfg.json", "cfg.yaml"} {
		path := filepath.Join(dir, name)
		c := DefaultConfig()
		c.TargetFPS = 25
		c.WindowSeconds = 6
		c.ROIPolicy = ROIPolicyBand
		if err := c.Save(path); err != nil {
			t.Fatalf("%s save: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("%s load: %v", name, err)
		}
		if got.TargetFPS != 25 || got.WindowSeconds != 6 || got.ROIPolicy != ROIPolicyBand {
			t.Fatalf("%s round trip mismatch: %+v", name, got)
		}
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"target_fps": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for zero fps")
	}
}

func TestApplyEnv_OverridesFields(t *testing.T) {
	t.Setenv(EnvPrefix+"TARGET_FPS", "20")
	t.Setenv(EnvPrefix+"MAX_BPM", "180")
	t.Setenv(EnvPrefix+"ROI_POLICY", "band")
	t.Setenv(EnvPrefix+"DEBUG", "true")
	c := DefaultConfig()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.TargetFPS != 20 || c.MaxBPM != 180 || c.ROIPolicy != ROIPolicyBand || !c.Debug {
		t.Fatalf("env overrides not applied: %+v", c)
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Setenv(EnvPrefix+"WINDOW_SECONDS", "eight")
	if err := DefaultConfig().ApplyEnv(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadEnv_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(EnvPrefix+"TICK_INTERVAL_MS=500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPrefix+"TICK_INTERVAL_MS", "")
	os.Unsetenv(EnvPrefix + "TICK_INTERVAL_MS")
	if err := LoadEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("load env: %v", err)
	}
	c := DefaultConfig()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.TickIntervalMillis != 500 {
		t.Fatalf("expected tick 500 from .env, got %d", c.TickIntervalMillis)
	}
}
