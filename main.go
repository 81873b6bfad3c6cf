package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/pulse-cam-go/app"
	"github.com/soocke/pulse-cam-go/config"
)

func main() {
	var (
		cfgPath  = flag.String("config", "pulsecam.yaml", "config file (JSON or YAML)")
		envFile  = flag.String("env", ".env", "dotenv file loaded before PULSECAM_* overrides")
		debugLog = flag.Bool("debug", false, "debug logging and runtime stats")
		replay   = flag.String("replay", "", "replay PNG/JPEG frames from this directory instead of the screen")
		cascade  = flag.String("cascade", "", "pigo face cascade file")
		natsURL  = flag.String("nats", "", "NATS url for publishing readings and results")
		httpAddr = flag.String("http", "", "address serving /ws and /healthz")
		once     = flag.Bool("once", false, "exit after the first completed measurement")
		skip     = flag.Bool("skip", false, "report a synthetic result instead of measuring")
	)
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	applyFlags(cfg, func(name string) bool {
		set := false
		flag.Visit(func(f *flag.Flag) { set = set || f.Name == name })
		return set
	}, *debugLog, *replay, *cascade, *natsURL, *httpAddr, *once)

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := NewLogger(level)

	c, err := app.BuildContainer(cfg, logger, app.Overrides{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	application := app.NewApp(c)
	application.SkipMeasurement(*skip)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := application.Run(ctx); err != nil {
		logger.Error("run failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cfg *config.Config, set func(string) bool, debugLog bool, replay, cascade, natsURL, httpAddr string, once bool) {
	if set("debug") {
		cfg.Debug = debugLog
	}
	if set("replay") {
		cfg.ReplayDir = replay
	}
	if set("cascade") {
		cfg.CascadePath = cascade
	}
	if set("nats") {
		cfg.NATSURL = natsURL
	}
	if set("http") {
		cfg.HTTPAddr = httpAddr
	}
	if set("once") {
		cfg.Once = once
	}
}
