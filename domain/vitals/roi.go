package vitals

import (
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/soocke/pulse-cam-go/config"
	"github.com/soocke/pulse-cam-go/domain/capture"
)

// ROIPolicy selects which pixels of the forehead band are averaged.
type ROIPolicy int

const (
	// PolicyBand averages every pixel of the band.
	PolicyBand ROIPolicy = iota
	// PolicyRSVR keeps pixels whose HSV saturation lies near the band's
	// saturation mode (Relative Saturation Value Range).
	PolicyRSVR
)

func (p ROIPolicy) String() string {
	if p == PolicyRSVR {
		return config.ROIPolicyRSVR
	}
	return config.ROIPolicyBand
}

// ParsePolicy maps a config value to a policy; unknown values select RSVR.
func ParsePolicy(s string) ROIPolicy {
	if s == config.ROIPolicyBand {
		return PolicyBand
	}
	return PolicyRSVR
}

// DetectStrategy is one pass of the detection cascade. Downscale in (0,1)
// runs the detector on a reduced copy of the frame.
type DetectStrategy struct {
	Name      string
	Downscale float64
	Params    DetectParams
}

// DefaultStrategies go from standard thresholds to increasingly permissive
// ones; the first strategy returning a candidate wins.
var DefaultStrategies = []DetectStrategy{
	{Name: "standard", Downscale: 0.5, Params: DetectParams{ScaleFactor: 1.05, MinNeighbors: 2, MinSize: 50}},
	{Name: "lenient-downscaled", Downscale: 0.5, Params: DetectParams{ScaleFactor: 1.03, MinNeighbors: 1, MinSize: 30}},
	{Name: "lenient-full", Downscale: 1, Params: DetectParams{ScaleFactor: 1.03, MinNeighbors: 1, MinSize: 80}},
}

// FaceRegion is the cached face rectangle in frame coordinates.
type FaceRegion struct {
	Rect       image.Rectangle
	Valid      bool
	DetectedAt time.Time
}

// ROIOptions configures an ROIExtractor.
type ROIOptions struct {
	Policy         ROIPolicy
	Alpha          float64
	RescanInterval time.Duration
	Strategies     []DetectStrategy
}

// ROIOptionsFromConfig derives extractor options from cfg.
func ROIOptionsFromConfig(cfg *config.Config) ROIOptions {
	return ROIOptions{
		Policy:         ParsePolicy(cfg.ROIPolicy),
		Alpha:          cfg.RSVRAlpha,
		RescanInterval: cfg.RescanInterval(),
	}
}

// ROIExtractor locates the face in a frame and averages the color of a skin
// band inside it. Calls are serialized; the detector is never entered
// concurrently.
type ROIExtractor struct {
	mu       sync.Mutex
	detector FaceDetector
	opts     ROIOptions
	logger   *slog.Logger
	face     FaceRegion
	lastScan time.Time
}

// NewROIExtractor returns an extractor using detector. Zero option fields
// take their defaults.
func NewROIExtractor(detector FaceDetector, opts ROIOptions, logger *slog.Logger) *ROIExtractor {
	if opts.Alpha <= 0 {
		opts.Alpha = 0.2
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = time.Second
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultStrategies
	}
	return &ROIExtractor{detector: detector, opts: opts, logger: loggerOr(logger)}
}

// Locate returns the mean skin color of frame, or false when no face is
// currently valid or the frame could not be processed.
func (e *ROIExtractor) Locate(frame capture.Frame) (sample ColorSample, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("roi extraction panic", "error", r, "sequence", frame.Sequence)
			e.face.Valid = false
			sample, ok = ColorSample{}, false
		}
	}()

	rgba, err := capture.ToRGBA(frame.Image)
	if err != nil {
		e.logger.Debug("roi frame conversion", "error", err, "format", frame.Format.String())
		return ColorSample{}, false
	}
	now := frame.CapturedAt
	if now.IsZero() {
		now = time.Now()
	}
	if !e.face.Valid || now.Sub(e.lastScan) >= e.opts.RescanInterval {
		gray := grayscale(rgba)
		equalizeHist(gray)
		e.lastScan = now
		e.detect(gray, now)
	}
	if !e.face.Valid {
		return ColorSample{}, false
	}
	band := foreheadBand(e.face.Rect, rgba.Bounds())
	if band.Empty() {
		e.invalidateLocked()
		return ColorSample{}, false
	}
	var r, g, b float64
	var n int
	if e.opts.Policy == PolicyRSVR {
		r, g, b, n = rsvrMean(rgba, band, e.opts.Alpha)
	} else {
		r, g, b, n = bandMean(rgba, band)
	}
	if n == 0 {
		return ColorSample{}, false
	}
	return ColorSample{R: r, G: g, B: b, TimestampMillis: millis(now)}, true
}

// detect runs the strategy cascade on the equalized gray frame.
func (e *ROIExtractor) detect(gray *image.Gray, now time.Time) {
	if e.detector == nil {
		e.face.Valid = false
		return
	}
	var (
		small       *image.Gray
		smallFactor float64
	)
	for _, st := range e.opts.Strategies {
		img, scale := gray, 1.0
		if st.Downscale > 0 && st.Downscale < 1 {
			if small == nil || smallFactor != st.Downscale {
				small, smallFactor = downscale(gray, st.Downscale), st.Downscale
			}
			img, scale = small, st.Downscale
		}
		rects, err := e.detector.Detect(img, st.Params)
		if err != nil {
			e.logger.Debug("face detector", "strategy", st.Name, "error", err)
			continue
		}
		if len(rects) == 0 {
			continue
		}
		r := rects[0]
		if scale != 1 {
			r = image.Rect(
				int(float64(r.Min.X)/scale), int(float64(r.Min.Y)/scale),
				int(float64(r.Max.X)/scale), int(float64(r.Max.Y)/scale),
			)
		}
		r = r.Intersect(gray.Bounds())
		if r.Empty() {
			continue
		}
		e.face = FaceRegion{Rect: r, Valid: true, DetectedAt: now}
		e.logger.Debug("face detected", "strategy", st.Name, "rect", r.String())
		return
	}
	if e.face.Valid {
		e.logger.Debug("face lost")
	}
	e.face.Valid = false
}

// Invalidate drops the cached face so the next frame triggers detection.
func (e *ROIExtractor) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked()
}

func (e *ROIExtractor) invalidateLocked() {
	e.face.Valid = false
	e.lastScan = time.Time{}
}

func (e *ROIExtractor) FaceDetected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.face.Valid
}

// Face returns a copy of the cached face region.
func (e *ROIExtractor) Face() FaceRegion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.face
}

func bandMean(img *image.RGBA, band image.Rectangle) (r, g, b float64, n int) {
	var sr, sg, sb uint64
	for y := band.Min.Y; y < band.Max.Y; y++ {
		off := img.PixOffset(band.Min.X, y)
		row := img.Pix[off : off+band.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			sr += uint64(row[i])
			sg += uint64(row[i+1])
			sb += uint64(row[i+2])
		}
	}
	n = band.Dx() * band.Dy()
	if n == 0 {
		return 0, 0, 0, 0
	}
	fn := float64(n)
	return float64(sr) / fn, float64(sg) / fn, float64(sb) / fn, n
}

// rsvrMean averages the band pixels whose saturation lies within
// alpha*mode of the smoothed saturation histogram's mode. The mode is taken
// over occupied bins only, so a non-empty band always keeps its mode pixels.
func rsvrMean(img *image.RGBA, band image.Rectangle, alpha float64) (r, g, b float64, n int) {
	var hist [256]int
	for y := band.Min.Y; y < band.Max.Y; y++ {
		off := img.PixOffset(band.Min.X, y)
		row := img.Pix[off : off+band.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			hist[saturation(row[i], row[i+1], row[i+2])]++
		}
	}
	smoothed := medianSmooth(hist[:], 5)
	mode, peak := 0, -1
	for i, v := range smoothed {
		if hist[i] > 0 && v > peak {
			mode, peak = i, v
		}
	}
	thRange := int(alpha * float64(mode))
	lower := max(0, mode-thRange/2)
	upper := min(255, mode+thRange/2)

	var sr, sg, sb uint64
	for y := band.Min.Y; y < band.Max.Y; y++ {
		off := img.PixOffset(band.Min.X, y)
		row := img.Pix[off : off+band.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			s := int(saturation(row[i], row[i+1], row[i+2]))
			if s < lower || s > upper {
				continue
			}
			sr += uint64(row[i])
			sg += uint64(row[i+1])
			sb += uint64(row[i+2])
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0, 0
	}
	fn := float64(n)
	return float64(sr) / fn, float64(sg) / fn, float64(sb) / fn, n
}

// medianSmooth applies a running median of the given odd width, shrinking
// the window at the edges.
func medianSmooth(in []int, width int) []int {
	half := width / 2
	out := make([]int, len(in))
	win := make([]int, 0, width)
	for i := range in {
		lo, hi := max(0, i-half), min(len(in)-1, i+half)
		win = append(win[:0], in[lo:hi+1]...)
		slices.Sort(win)
		out[i] = win[len(win)/2]
	}
	return out
}
