package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/soocke/pulse-cam-go/debug"
	"github.com/soocke/pulse-cam-go/domain/vitals"
)

const shutdownTimeout = 5 * time.Second

// ErrSourceExhausted is returned in once mode when the frame source ends
// before a measurement completes.
var ErrSourceExhausted = errors.New("app: frame source exhausted before a result")

// App runs a headless measurement loop over a Container.
type App struct {
	c    *Container
	skip bool
}

func NewApp(c *Container) *App { return &App{c: c} }

// SkipMeasurement makes Run report a synthetic result immediately.
func (a *App) SkipMeasurement(v bool) { a.skip = v }

// Run starts capture and measurement and blocks until ctx is cancelled or,
// in once mode, the first result is reported. Completed sessions restart
// automatically otherwise.
func (a *App) Run(ctx context.Context) error {
	c := a.c
	cfg, logger := c.Config, c.Logger
	defer c.Close()

	if cfg.Debug {
		debug.StartGoroutineLogger(ctx, 5*time.Second, logger)
		debug.StartMemLogger(ctx, 5*time.Second, logger)
	}

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{Addr: cfg.HTTPAddr, Handler: a.routes(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "error", err)
			}
		}()
	}

	c.Worker.Start()
	c.Controller.Init()
	c.CaptureSvc.Start()
	defer func() {
		c.CaptureSvc.Stop()
		c.Controller.Stop()
		c.Worker.Stop()
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
		logger.Info("stopped", "frames", c.Worker.Processed(), "dropped", c.Worker.Dropped())
	}()

	if a.skip {
		c.Sink.MarkSynthetic()
		c.Controller.SkipWithSyntheticResult()
	}

	sourceDone := c.CaptureSvc.Done()
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-c.Sink.Results():
			logger.Info("result", "session", res.SessionID, "bpm", res.BPM, "spo2", res.SpO2, "condition", res.Condition, "synthetic", res.Synthetic)
			if cfg.Once {
				return nil
			}
			c.Controller.Restart()
		case <-sourceDone:
			sourceDone = nil
			logger.Info("frame source finished", "frames", c.CaptureSvc.Stats().Captures)
			if cfg.Once && c.Controller.State() != vitals.StateCompleted {
				return ErrSourceExhausted
			}
		}
	}
}

type statusResponse struct {
	State        string `json:"state"`
	SessionID    string `json:"session_id"`
	FaceDetected bool   `json:"face_detected"`
	Buffer       int    `json:"buffer"`
	BufferCap    int    `json:"buffer_cap"`
	Readings     int    `json:"readings"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	DurationMs   int64  `json:"duration_ms"`
	Frames       uint64 `json:"frames"`
	Dropped      uint64 `json:"dropped"`
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	if a.c.Hub != nil {
		mux.Handle("/ws", a.c.Hub)
	}
	mux.HandleFunc("/healthz", a.handleHealth)
	return mux
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := a.c.Controller.Status()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{
		State:        st.State.String(),
		SessionID:    st.SessionID,
		FaceDetected: st.FaceDetected,
		Buffer:       st.BufferLen,
		BufferCap:    st.BufferCap,
		Readings:     st.Readings,
		ElapsedMs:    st.Elapsed.Milliseconds(),
		DurationMs:   st.Duration.Milliseconds(),
		Frames:       a.c.Worker.Processed(),
		Dropped:      a.c.Worker.Dropped(),
	})
}
