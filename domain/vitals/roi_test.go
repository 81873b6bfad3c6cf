package vitals

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/soocke/pulse-cam-go/domain/capture"
)

// fakeDetector returns rect for calls accepted by match and records the
// size of every image it sees.
type fakeDetector struct {
	mu    sync.Mutex
	rect  image.Rectangle
	match func(DetectParams) bool
	err   error
	panic bool
	sizes []image.Point
}

func (d *fakeDetector) Detect(img *image.Gray, p DetectParams) ([]image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sizes = append(d.sizes, img.Bounds().Size())
	if d.panic {
		panic("detector exploded")
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.match != nil && !d.match(p) {
		return nil, nil
	}
	return []image.Rectangle{d.rect}, nil
}

func (d *fakeDetector) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sizes)
}

// skinFrame paints a w x h frame with a skin tone whose blue component
// varies slightly so the saturation histogram spans several bins.
func skinFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 150, B: uint8(118 + (x+y)%5), A: 255})
		}
	}
	return img
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestROIExtractor_RescalesDownscaledDetection(t *testing.T) {
	det := &fakeDetector{rect: image.Rect(20, 20, 80, 80)}
	e := NewROIExtractor(det, ROIOptions{Policy: PolicyBand}, discardLogger)
	s, ok := e.Locate(capture.NewFrame(skinFrame(200, 200), t0, 1))
	if !ok {
		t.Fatal("expected a sample")
	}
	if got := det.sizes[0]; got != (image.Point{X: 100, Y: 100}) {
		t.Fatalf("detector saw %v, want 100x100", got)
	}
	if got, want := e.Face().Rect, image.Rect(40, 40, 160, 160); got != want {
		t.Fatalf("face = %v, want %v", got, want)
	}
	if s.R != 200 || s.G != 150 {
		t.Fatalf("sample = %+v", s)
	}
	if s.TimestampMillis != t0.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", s.TimestampMillis, t0.UnixMilli())
	}
}

func TestROIExtractor_RescanInterval(t *testing.T) {
	det := &fakeDetector{rect: image.Rect(10, 10, 90, 90)}
	e := NewROIExtractor(det, ROIOptions{RescanInterval: time.Second}, discardLogger)
	frame := skinFrame(200, 200)
	steps := []struct {
		offset time.Duration
		calls  int
	}{
		{0, 1},
		{500 * time.Millisecond, 1},
		{999 * time.Millisecond, 1},
		{1000 * time.Millisecond, 2},
		{1500 * time.Millisecond, 2},
	}
	for i, st := range steps {
		if _, ok := e.Locate(capture.NewFrame(frame, t0.Add(st.offset), uint64(i))); !ok {
			t.Fatalf("step %d: expected sample", i)
		}
		if got := det.calls(); got != st.calls {
			t.Fatalf("step %d: detector calls = %d, want %d", i, got, st.calls)
		}
	}
	e.Invalidate()
	if e.FaceDetected() {
		t.Fatal("face still valid after Invalidate")
	}
	e.Locate(capture.NewFrame(frame, t0.Add(1600*time.Millisecond), 9))
	if got := det.calls(); got != 3 {
		t.Fatalf("detector calls after invalidate = %d, want 3", got)
	}
}

func TestROIExtractor_StrategyFallback(t *testing.T) {
	det := &fakeDetector{
		rect:  image.Rect(40, 40, 160, 160),
		match: func(p DetectParams) bool { return p.MinSize == 80 },
	}
	e := NewROIExtractor(det, ROIOptions{Policy: PolicyBand}, discardLogger)
	if _, ok := e.Locate(capture.NewFrame(skinFrame(200, 200), t0, 1)); !ok {
		t.Fatal("expected lenient-full strategy to find the face")
	}
	if det.calls() != 3 {
		t.Fatalf("detector calls = %d, want 3", det.calls())
	}
	if got := det.sizes[2]; got != (image.Point{X: 200, Y: 200}) {
		t.Fatalf("full-resolution pass saw %v", got)
	}
	if got, want := e.Face().Rect, image.Rect(40, 40, 160, 160); got != want {
		t.Fatalf("face = %v, want %v", got, want)
	}
}

func TestROIExtractor_Failures(t *testing.T) {
	cases := []struct {
		name string
		det  FaceDetector
		img  image.Image
	}{
		{"no face", &fakeDetector{match: func(DetectParams) bool { return false }}, skinFrame(64, 64)},
		{"detector error", &fakeDetector{err: errors.New("boom")}, skinFrame(64, 64)},
		{"detector panic", &fakeDetector{panic: true}, skinFrame(64, 64)},
		{"nil detector", nil, skinFrame(64, 64)},
		{"empty frame", &fakeDetector{rect: image.Rect(0, 0, 10, 10)}, nil},
		{"face outside frame", &fakeDetector{rect: image.Rect(500, 500, 600, 600)}, skinFrame(64, 64)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewROIExtractor(tc.det, ROIOptions{}, discardLogger)
			if _, ok := e.Locate(capture.NewFrame(tc.img, t0, 1)); ok {
				t.Fatal("expected no sample")
			}
			if e.FaceDetected() {
				t.Fatal("face reported after failure")
			}
		})
	}
}

func TestROIExtractor_RSVRRejectsOffSaturationPixels(t *testing.T) {
	img := skinFrame(200, 200)
	// face (40,40)-(160,160) gives band x 76..124, y 52..70; gray out its
	// left quarter
	for y := 0; y < 200; y++ {
		for x := 76; x < 88; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	rect := image.Rect(20, 20, 80, 80)

	rsvr := NewROIExtractor(&fakeDetector{rect: rect}, ROIOptions{Policy: PolicyRSVR, Alpha: 0.2}, discardLogger)
	s, ok := rsvr.Locate(capture.NewFrame(img, t0, 1))
	if !ok {
		t.Fatal("rsvr: expected sample")
	}
	if s.R != 200 || s.G != 150 || math.Abs(s.B-120) > 0.5 {
		t.Fatalf("rsvr kept gray pixels: %+v", s)
	}

	band := NewROIExtractor(&fakeDetector{rect: rect}, ROIOptions{Policy: PolicyBand}, discardLogger)
	s, ok = band.Locate(capture.NewFrame(img, t0, 1))
	if !ok {
		t.Fatal("band: expected sample")
	}
	if math.Abs(s.R-182) > 0.5 {
		t.Fatalf("band mean R = %v, want 182", s.R)
	}
}

func TestRSVRMean_UniformBandKeepsModePixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:], []byte{200, 150, 120, 255})
	}
	band := image.Rect(10, 5, 30, 15)
	// a single occupied bin smooths to zero everywhere
	r, g, b, n := rsvrMean(img, band, 0.2)
	if n != band.Dx()*band.Dy() {
		t.Fatalf("kept %d pixels, want %d", n, band.Dx()*band.Dy())
	}
	if r != 200 || g != 150 || b != 120 {
		t.Fatalf("mean = %v %v %v", r, g, b)
	}

	e := NewROIExtractor(&fakeDetector{rect: image.Rect(0, 0, 40, 40)}, ROIOptions{Policy: PolicyRSVR, Alpha: 0.2}, discardLogger)
	s, ok := e.Locate(capture.NewFrame(img, t0, 1))
	if !ok || s.R != 200 || s.G != 150 || s.B != 120 {
		t.Fatalf("sample = %+v ok=%v", s, ok)
	}
}

func TestForeheadBand(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 200)
	if got, want := foreheadBand(image.Rect(0, 0, 100, 100), bounds), image.Rect(30, 10, 70, 25); got != want {
		t.Fatalf("band = %v, want %v", got, want)
	}
	if got := foreheadBand(image.Rect(10, 10, 12, 12), bounds); got.Dx() < 1 || got.Dy() < 1 {
		t.Fatalf("tiny face band = %v", got)
	}
}

func TestEqualizeHist(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 2))
	for i := range g.Pix {
		g.Pix[i] = 10
		if i%2 == 1 {
			g.Pix[i] = 20
		}
	}
	equalizeHist(g)
	for i, v := range g.Pix {
		want := byte(0)
		if i%2 == 1 {
			want = 255
		}
		if v != want {
			t.Fatalf("pix %d = %d, want %d", i, v, want)
		}
	}
	flat := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range flat.Pix {
		flat.Pix[i] = 77
	}
	equalizeHist(flat)
	if flat.Pix[4] != 77 {
		t.Fatalf("flat image changed to %d", flat.Pix[4])
	}
}

func TestGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 0, 0, 255})
	g := grayscale(img)
	if g.Pix[0] != 255 || g.Pix[1] != 0 {
		t.Fatalf("gray = %v", g.Pix)
	}
}

func TestMedianSmooth(t *testing.T) {
	in := []int{0, 0, 9, 0, 0, 5, 5, 5, 0}
	want := []int{0, 0, 0, 0, 5, 5, 5, 5, 5}
	got := medianSmooth(in, 5)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("medianSmooth = %v, want %v", got, want)
		}
	}
}

func TestSaturation(t *testing.T) {
	cases := []struct {
		r, g, b uint8
		want    uint8
	}{
		{0, 0, 0, 0},
		{128, 128, 128, 0},
		{255, 0, 0, 255},
		{200, 150, 120, 102},
	}
	for _, tc := range cases {
		if got := saturation(tc.r, tc.g, tc.b); got != tc.want {
			t.Errorf("saturation(%d,%d,%d) = %d, want %d", tc.r, tc.g, tc.b, got, tc.want)
		}
	}
}
