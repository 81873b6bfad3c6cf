package vitals

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soocke/pulse-cam-go/config"
	"github.com/soocke/pulse-cam-go/domain/capture"
)

// StateListener observes controller state transitions.
type StateListener func(prev, next SessionState)

// Status is a point-in-time view of a controller.
type Status struct {
	State        SessionState
	SessionID    string
	FaceDetected bool
	BufferLen    int
	BufferCap    int
	Readings     int
	StartedAt    time.Time
	// Elapsed is the measured time since the first valid tick, capped at
	// Duration; zero before it.
	Elapsed  time.Duration
	Duration time.Duration
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for session timing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithManualTick disables the internal ticker; the owner drives Tick.
func WithManualTick() Option {
	return func(c *Controller) { c.manual = true }
}

// WithSyntheticSource sets the generator used by SkipWithSyntheticResult.
func WithSyntheticSource(s *SyntheticSource) Option {
	return func(c *Controller) {
		if s != nil {
			c.synthetic = s
		}
	}
}

// Controller owns one measurement session: it buffers samples from frames,
// runs the estimator on a periodic tick and reports the averaged result
// once the measurement duration has elapsed.
type Controller struct {
	mu        sync.Mutex
	frameMu   sync.Mutex
	cfg       *config.Config
	locator   SampleLocator
	estimator Estimator
	buffer    *SignalBuffer
	cb        Callbacks
	logger    *slog.Logger
	now       func() time.Time
	manual    bool
	synthetic *SyntheticSource

	state      SessionState
	generation uint64
	sessionID  string
	startedAt  time.Time
	bpmAcc     []float32
	spo2Acc    []float32
	ticker     *time.Ticker
	stopCh     chan struct{}
	listeners  []StateListener
}

// NewController validates cfg and returns an idle controller. A nil
// estimator selects the CHROM pipeline built from cfg.
func NewController(cfg *config.Config, locator SampleLocator, estimator Estimator, cb Callbacks, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("vitals: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if locator == nil {
		return nil, errors.New("vitals: nil sample locator")
	}
	logger = loggerOr(logger)
	if estimator == nil {
		estimator = NewPipeline(cfg, logger)
	}
	c := &Controller{
		cfg:       cfg,
		locator:   locator,
		estimator: estimator,
		buffer:    NewSignalBuffer(cfg.WindowCapacity()),
		cb:        cb,
		logger:    logger,
		now:       time.Now,
		state:     StateIdle,
	}
	for _, o := range opts {
		o(c)
	}
	if c.synthetic == nil {
		c.synthetic = NewSyntheticSource(uint64(time.Now().UnixNano()))
	}
	return c, nil
}

// AddListener registers l for state transitions. Listeners run outside the
// controller lock.
func (c *Controller) AddListener(l StateListener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Init starts a fresh streaming session. It is a no-op while streaming.
func (c *Controller) Init() {
	c.mu.Lock()
	if c.state == StateStreaming {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.initLocked()
	c.mu.Unlock()
	c.notify(prev, StateStreaming)
}

// Stop cancels the tick timer and discards the session. It is idempotent
// and safe from any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	prev := c.state
	c.stopLocked()
	c.state = StateIdle
	c.mu.Unlock()
	c.notify(prev, StateIdle)
}

// Restart discards all accumulated readings and starts a new session.
func (c *Controller) Restart() {
	c.mu.Lock()
	prev := c.state
	c.stopLocked()
	c.initLocked()
	c.mu.Unlock()
	c.notify(prev, StateStreaming)
}

// SkipWithSyntheticResult ends the current session and reports a
// pseudo-random plausible result without running the pipeline.
func (c *Controller) SkipWithSyntheticResult() (bpm, spo2 float32) {
	c.mu.Lock()
	prev := c.state
	c.stopLocked()
	c.state = StateCompleted
	bpm, spo2 = c.synthetic.Next()
	cb := c.cb.OnMeasurementComplete
	id := c.sessionID
	c.mu.Unlock()

	c.logger.Info("measurement skipped", "session", id, "bpm", bpm, "spo2", spo2, "synthetic", true)
	c.notify(prev, StateCompleted)
	if cb != nil {
		c.invoke("completion callback panic", func() { cb(bpm, spo2) })
	}
	return bpm, spo2
}

// ProcessFrame extracts a sample from frame and appends it to the window.
// A frame without a usable face clears the window. Frames are processed one
// at a time; the frame is not retained after return.
func (c *Controller) ProcessFrame(frame capture.Frame) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	c.mu.Lock()
	gen, streaming := c.generation, c.state == StateStreaming
	c.mu.Unlock()
	if !streaming {
		return
	}

	sample, ok := c.locator.Locate(frame)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.state != StateStreaming {
		return
	}
	if !ok {
		if n := c.buffer.Len(); n > 0 {
			c.buffer.Reset()
			c.logger.Debug("face lost, window cleared", "session", c.sessionID, "dropped", n)
		}
		return
	}
	if !c.buffer.Push(sample) {
		c.logger.Debug("out of order sample dropped", "session", c.sessionID, "ts", sample.TimestampMillis)
	}
}

// Tick runs one estimation step on the current session. The internal
// ticker calls it; with WithManualTick the owner does.
func (c *Controller) Tick() {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.tick(gen)
}

func (c *Controller) tick(gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tick panic", "error", r, "stack", string(debug.Stack()))
		}
	}()

	c.mu.Lock()
	if gen != c.generation || c.state != StateStreaming || !c.buffer.IsFull() {
		started := !c.startedAt.IsZero()
		c.mu.Unlock()
		if started {
			c.checkCompletion(gen)
		}
		return
	}
	window := c.buffer.Snapshot()
	c.mu.Unlock()

	reading := c.estimator.Estimate(window)

	c.mu.Lock()
	if gen != c.generation || c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	var update func(bpm, spo2 float32)
	if reading.Valid() {
		if c.startedAt.IsZero() {
			c.startedAt = c.now()
			c.logger.Info("measurement started", "session", c.sessionID)
		}
		c.bpmAcc = append(c.bpmAcc, reading.BPM)
		c.spo2Acc = append(c.spo2Acc, reading.SpO2)
		update = c.cb.OnVitalsUpdate
	}
	c.mu.Unlock()

	if update != nil {
		c.invoke("vitals update callback panic", func() { update(reading.BPM, reading.SpO2) })
	}
	c.checkCompletion(gen)
}

// checkCompletion finishes the session once the measurement duration has
// elapsed since the first valid tick.
func (c *Controller) checkCompletion(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateStreaming || c.startedAt.IsZero() {
		c.mu.Unlock()
		return
	}
	elapsed := c.now().Sub(c.startedAt)
	if elapsed < c.cfg.MeasurementDuration() {
		c.mu.Unlock()
		return
	}
	bpm, spo2 := average(c.bpmAcc), average(c.spo2Acc)
	readings := len(c.bpmAcc)
	id := c.sessionID
	c.stopLocked()
	c.state = StateCompleted
	cb := c.cb.OnMeasurementComplete
	c.mu.Unlock()

	c.logger.Info("measurement complete", "session", id, "bpm", bpm, "spo2", spo2, "readings", readings, "elapsed", elapsed.String())
	c.notify(StateStreaming, StateCompleted)
	if cb != nil {
		c.invoke("completion callback panic", func() { cb(bpm, spo2) })
	}
}

func (c *Controller) initLocked() {
	c.generation++
	c.resetSessionLocked()
	c.sessionID = uuid.NewString()
	c.state = StateStreaming
	c.logger.Info("session streaming", "session", c.sessionID, "window", c.buffer.Cap(), "tick", c.cfg.TickInterval().String())
	if c.manual {
		return
	}
	c.ticker = time.NewTicker(c.cfg.TickInterval())
	c.stopCh = make(chan struct{})
	go c.run(c.generation, c.ticker, c.stopCh)
}

// stopLocked cancels the ticker and invalidates in-flight work. The ticker
// goroutine exits on its next select.
func (c *Controller) stopLocked() {
	if c.ticker != nil {
		c.ticker.Stop()
		close(c.stopCh)
		c.ticker, c.stopCh = nil, nil
	}
	c.generation++
	c.resetSessionLocked()
}

func (c *Controller) resetSessionLocked() {
	c.buffer.Reset()
	c.locator.Invalidate()
	c.startedAt = time.Time{}
	c.bpmAcc = c.bpmAcc[:0]
	c.spo2Acc = c.spo2Acc[:0]
}

func (c *Controller) run(gen uint64, t *time.Ticker, stop <-chan struct{}) {
	defer recoverLog(c.logger, "ticker goroutine panic")
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.tick(gen)
		}
	}
}

func (c *Controller) notify(prev, next SessionState) {
	if prev == next {
		return
	}
	c.mu.Lock()
	ls := append([]StateListener(nil), c.listeners...)
	c.mu.Unlock()
	c.logger.Debug("session state transition", "from", prev.String(), "to", next.String())
	for _, l := range ls {
		c.invoke("state listener panic", func() { l(prev, next) })
	}
}

func (c *Controller) invoke(msg string, fn func()) {
	defer recoverLog(c.logger, msg)
	fn()
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID identifies the current or last session; empty before Init.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) FaceDetected() bool { return c.locator.FaceDetected() }

func (c *Controller) BufferLen() int { return c.buffer.Len() }

// Progress reports how far the current measurement has run and how long it
// lasts in total.
func (c *Controller) Progress() (elapsed, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

func (c *Controller) progressLocked() (elapsed, duration time.Duration) {
	duration = c.cfg.MeasurementDuration()
	if c.startedAt.IsZero() {
		return 0, duration
	}
	return min(max(c.now().Sub(c.startedAt), 0), duration), duration
}

// Status snapshots the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:     c.state,
		SessionID: c.sessionID,
		BufferLen: c.buffer.Len(),
		BufferCap: c.buffer.Cap(),
		Readings:  len(c.bpmAcc),
		StartedAt: c.startedAt,
	}
	st.Elapsed, st.Duration = c.progressLocked()
	c.mu.Unlock()
	st.FaceDetected = c.locator.FaceDetected()
	return st
}

func average(xs []float32) float32 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += float64(x)
	}
	return float32(s / float64(len(xs)))
}

func recoverLog(logger *slog.Logger, msg string) {
	if r := recover(); r != nil {
		logger.Error(msg, "error", r)
	}
}
