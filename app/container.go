package app

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/soocke/pulse-cam-go/config"
	"github.com/soocke/pulse-cam-go/domain/capture"
	"github.com/soocke/pulse-cam-go/domain/facedetect"
	"github.com/soocke/pulse-cam-go/domain/vitals"
	"github.com/soocke/pulse-cam-go/stream"
)

// Overrides replaces collaborators BuildContainer would otherwise create.
// Zero fields select the configured defaults.
type Overrides struct {
	Detector  vitals.FaceDetector
	Grabber   capture.Grabber
	Publisher stream.MsgPublisher
	Estimator vitals.Estimator
	Options   []vitals.Option
}

// Container assembles the detector, controller, frame path and outputs.
type Container struct {
	Config     *config.Config
	Logger     *slog.Logger
	Detector   vitals.FaceDetector
	Extractor  *vitals.ROIExtractor
	Controller *vitals.Controller
	Worker     *FrameWorker
	CaptureSvc capture.CaptureService
	Sink       *ResultSink
	Hub        *stream.Hub
	Publisher  *stream.Publisher

	conn *nats.Conn
}

// BuildContainer constructs all components. Side effects are limited to
// loading the cascade, listing replay frames and dialing NATS.
func BuildContainer(cfg *config.Config, logger *slog.Logger, ov Overrides) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{Config: cfg, Logger: logger}

	c.Detector = ov.Detector
	if c.Detector == nil {
		det, err := facedetect.LoadPigo(cfg.CascadePath)
		if err != nil {
			return nil, fmt.Errorf("app: face detector: %w", err)
		}
		c.Detector = det
	}
	c.Extractor = vitals.NewROIExtractor(c.Detector, vitals.ROIOptionsFromConfig(cfg), logger.With("component", "roi"))

	pub := ov.Publisher
	if pub == nil && cfg.NATSURL != "" {
		nc, err := stream.Connect(cfg.NATSURL, "pulse-cam")
		if err != nil {
			return nil, fmt.Errorf("app: nats: %w", err)
		}
		c.conn = nc
		pub = nc
	}
	if pub != nil {
		c.Publisher = stream.NewPublisher(pub, cfg.ReadingsSubject, cfg.ResultsSubject, logger.With("component", "stream"))
	}

	var bc Broadcaster
	if cfg.HTTPAddr != "" {
		c.Hub = stream.NewHub(logger.With("component", "hub"))
		bc = c.Hub
	}
	c.Sink = NewResultSink(c.Publisher, bc, logger.With("component", "sink"))

	ctl, err := vitals.NewController(cfg, c.Extractor, ov.Estimator, c.Sink.Callbacks(), logger.With("component", "session"), ov.Options...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Controller = ctl
	c.Sink.sessionID = ctl.SessionID

	c.Worker = NewFrameWorker(ctl.ProcessFrame, logger.With("component", "worker"))

	capLogger := logger.With("component", "capture")
	switch {
	case ov.Grabber != nil:
		c.CaptureSvc = capture.NewCaptureService(capLogger, ov.Grabber, cfg.TargetFPS, c.Worker.Submit)
	case cfg.ReplayDir != "":
		svc, err := capture.NewReplayService(capLogger, cfg.ReplayDir, cfg.TargetFPS, c.Worker.Submit)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("app: replay: %w", err)
		}
		c.CaptureSvc = svc
	default:
		c.CaptureSvc = capture.NewScreenService(capLogger, selection(cfg), cfg.TargetFPS, c.Worker.Submit)
	}
	return c, nil
}

// selection returns the configured capture rectangle, or nil for the whole
// primary screen.
func selection(cfg *config.Config) func() *image.Rectangle {
	if cfg.SelectionW <= 0 || cfg.SelectionH <= 0 {
		return func() *image.Rectangle { return nil }
	}
	r := image.Rect(cfg.SelectionX, cfg.SelectionY, cfg.SelectionX+cfg.SelectionW, cfg.SelectionY+cfg.SelectionH)
	return func() *image.Rectangle { return &r }
}

// Close releases the NATS connection and websocket clients.
func (c *Container) Close() {
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.Logger.Warn("nats drain", "error", err)
		}
		c.conn = nil
	}
}
