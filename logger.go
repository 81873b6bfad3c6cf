package main

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a JSON slog.Logger on stdout tagged with the service
// name.
func NewLogger(level slog.Leveler) *slog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "pulse-cam")
}
