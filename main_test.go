package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/soocke/pulse-cam-go/config"
)

func TestApplyFlags_OnlyExplicitFlagsWin(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ReplayDir = "from-file"
	cfg.NATSURL = "nats://file:4222"
	set := map[string]bool{"replay": true, "once": true}
	applyFlags(cfg, func(n string) bool { return set[n] }, true, "from-flag", "c", "", ":9", true)
	if cfg.ReplayDir != "from-flag" || !cfg.Once {
		t.Fatalf("explicit flags not applied: %+v", cfg)
	}
	if cfg.NATSURL != "nats://file:4222" || cfg.Debug || cfg.HTTPAddr != "" || cfg.CascadePath != "cascade/facefinder" {
		t.Fatalf("unset flags overrode config: %+v", cfg)
	}
}

func TestNewLogger_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, slog.LevelInfo).Debug("hidden")
	newLogger(&buf, slog.LevelInfo).Info("hello", "k", 1)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["msg"] != "hello" || rec["service"] != "pulse-cam" || rec["k"] != float64(1) {
		t.Fatalf("record = %v", rec)
	}
}
