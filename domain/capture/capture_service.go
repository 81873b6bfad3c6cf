package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const captureStatsLogInterval = 5 * time.Second

// CaptureStats summarises capture loop behaviour for instrumentation.
type CaptureStats struct {
	Captures         uint64
	Failed           uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
	LatestFrameAge   time.Duration
	Sequence         uint64
}

// CaptureService acquires frames from a Grabber at a bounded rate and hands
// each one to a FrameHandler. Use NewCaptureService, NewScreenService or
// NewReplayService to construct an instance.
type CaptureService interface {
	ServiceContract
	Stats() CaptureStats
	// Done is closed when the capture loop exits, either through Stop or
	// because the grabber ran out of frames.
	Done() <-chan struct{}
}

type captureService struct {
	grabber      Grabber
	handler      FrameHandler
	logger       *slog.Logger
	fps          int
	running      atomic.Bool
	captures     atomic.Uint64
	failed       atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	lastCapture  atomic.Int64 // unix nanos

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCaptureService constructs a capture service that grabs at most fps
// frames per second and delivers them to handler.
func NewCaptureService(logger *slog.Logger, grabber Grabber, fps int, handler FrameHandler) CaptureService {
	if fps <= 0 {
		fps = 30
	}
	done := make(chan struct{})
	close(done)
	return &captureService{grabber: grabber, handler: handler, logger: logger, fps: fps, done: done}
}

func (s *captureService) Running() bool { return s.running.Load() }

func (s *captureService) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *captureService) Stats() CaptureStats {
	captures := s.captures.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	age := time.Duration(0)
	if ns := s.lastCapture.Load(); ns > 0 {
		last = time.Unix(0, ns)
		age = time.Since(last)
	}
	return CaptureStats{
		Captures:         captures,
		Failed:           s.failed.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		LatestFrameAge:   age,
		Sequence:         s.sequence.Load(),
	}
}

func (s *captureService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.loop(ctx, s.done)
}

func (s *captureService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running.Store(false)
}

func (s *captureService) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.running.Store(false)
		}
		s.mu.Unlock()
	}()
	limiter := rate.NewLimiter(rate.Limit(s.fps), 1)
	logTicker := time.NewTicker(captureStatsLogInterval)
	defer logTicker.Stop()
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		start := time.Now()
		img, err := s.grabber.Grab()
		if errors.Is(err, io.EOF) {
			if s.logger != nil {
				s.logger.Info("capture source exhausted", "frames", s.captures.Load())
			}
			return
		}
		if err != nil || img == nil {
			s.failed.Add(1)
			if s.logger != nil && err != nil {
				s.logger.Debug("capture grab", "error", err)
			}
			continue
		}
		frame := pooledCopy(img)
		now := time.Now()
		s.captureNanos.Add(uint64(now.Sub(start).Nanoseconds()))
		s.captures.Add(1)
		s.lastCapture.Store(now.UnixNano())
		seq := s.sequence.Add(1)
		s.deliver(NewFrame(frame, now, seq))

		select {
		case <-logTicker.C:
			s.logStats()
		default:
		}
	}
}

func (s *captureService) deliver(f Frame) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("frame handler panic", "error", r, "sequence", f.Sequence)
		}
	}()
	if s.handler == nil {
		RecycleFrame(f)
		return
	}
	s.handler(f)
}

func (s *captureService) logStats() {
	if s.logger == nil {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failed", stats.Failed,
		"avg_capture", stats.AvgCapture,
		"age", stats.LatestFrameAge,
	)
}
