package vitals

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/soocke/pulse-cam-go/domain/capture"
)

// ColorSample is the spatial mean color over the skin ROI at one instant.
type ColorSample struct {
	R, G, B         float64
	TimestampMillis int64
}

// VitalsReading is one tick's instantaneous estimate.
type VitalsReading struct {
	BPM      float32
	SpO2     float32
	AtMillis int64
}

// Valid reports whether the reading carries a heart rate.
func (r VitalsReading) Valid() bool { return r.BPM > 0 }

// SessionState enumerates the states of a measurement session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateStreaming
	StateCompleted
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Callbacks externalize the consumers of controller output (UI, persistence).
// Both are optional.
type Callbacks struct {
	// OnVitalsUpdate fires on every valid tick with the instantaneous reading.
	OnVitalsUpdate func(bpm, spo2 float32)
	// OnMeasurementComplete fires exactly once per completed or skipped session.
	OnMeasurementComplete func(bpm, spo2 float32)
}

// DetectParams tunes one face detection pass. MinSize is expressed in pixels
// of the image handed to the detector.
type DetectParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// FaceDetector finds face rectangles in a grayscale image, best candidate
// first. Implementations need not be safe for concurrent use.
type FaceDetector interface {
	Detect(img *image.Gray, p DetectParams) ([]image.Rectangle, error)
}

// SampleLocator turns a frame into an averaged skin color sample.
type SampleLocator interface {
	Locate(frame capture.Frame) (ColorSample, bool)
	Invalidate()
	FaceDetected() bool
}

// Estimator turns a full signal window into one reading.
type Estimator interface {
	Estimate(window []ColorSample) VitalsReading
}

// ErrWindowNotFull is returned when a computation needs a full window.
var ErrWindowNotFull = errors.New("vitals: signal window not full")

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discardLogger
	}
	return l
}

func millis(t time.Time) int64 { return t.UnixMilli() }
