package app

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/soocke/pulse-cam-go/domain/capture"
)

// FrameWorker runs frame processing on a single goroutine behind a one-slot
// queue. A frame arriving while another is pending replaces it; the
// replaced frame is recycled. Every frame is recycled once its handler
// returns.
type FrameWorker struct {
	handler capture.FrameHandler
	logger  *slog.Logger

	slot chan capture.Frame
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	processed atomic.Uint64
	dropped   atomic.Uint64
}

func NewFrameWorker(handler capture.FrameHandler, logger *slog.Logger) *FrameWorker {
	return &FrameWorker{
		handler: handler,
		logger:  logger,
		slot:    make(chan capture.Frame, 1),
		quit:    make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *FrameWorker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Submit queues f, displacing any frame still waiting. It never blocks.
func (w *FrameWorker) Submit(f capture.Frame) {
	select {
	case <-w.quit:
		capture.RecycleFrame(f)
		return
	default:
	}
	for {
		select {
		case w.slot <- f:
			return
		default:
		}
		select {
		case old := <-w.slot:
			w.dropped.Add(1)
			capture.RecycleFrame(old)
		default:
		}
	}
}

// Stop terminates the worker and waits for the in-flight frame. Pending
// frames are recycled unprocessed.
func (w *FrameWorker) Stop() {
	w.once.Do(func() { close(w.quit) })
	w.wg.Wait()
	for {
		select {
		case f := <-w.slot:
			capture.RecycleFrame(f)
		default:
			return
		}
	}
}

func (w *FrameWorker) Processed() uint64 { return w.processed.Load() }
func (w *FrameWorker) Dropped() uint64   { return w.dropped.Load() }

func (w *FrameWorker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case f := <-w.slot:
			w.process(f)
		}
	}
}

func (w *FrameWorker) process(f capture.Frame) {
	defer capture.RecycleFrame(f)
	defer func() {
		if r := recover(); r != nil && w.logger != nil {
			w.logger.Error("frame worker panic", "error", r, "sequence", f.Sequence)
		}
	}()
	if w.handler != nil {
		w.handler(f)
	}
	w.processed.Add(1)
}
