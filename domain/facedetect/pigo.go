// Package facedetect adapts the pigo pixel-intensity-comparison cascade to
// the vitals.FaceDetector contract.
package facedetect

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"

	"github.com/soocke/pulse-cam-go/domain/vitals"
)

// ErrInvalidCascade is returned for cascade data pigo cannot unpack.
var ErrInvalidCascade = errors.New("facedetect: invalid cascade")

const (
	shiftFactor  = 0.1
	iouThreshold = 0.2

	// qualityPerNeighbor converts a neighbor count into a pigo score floor.
	qualityPerNeighbor = 2.5
)

// PigoDetector runs a frontal face cascade. Not safe for concurrent use.
type PigoDetector struct {
	classifier *pigo.Pigo
	scratch    []uint8
}

// LoadPigo reads and unpacks the cascade file at path.
func LoadPigo(path string) (*PigoDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("facedetect: read cascade: %w", err)
	}
	return NewPigoDetector(data)
}

// NewPigoDetector unpacks cascade data.
func NewPigoDetector(data []byte) (d *PigoDetector, err error) {
	// pigo indexes the header blindly; short input would panic
	if len(data) < 16 {
		return nil, ErrInvalidCascade
	}
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("%w: %v", ErrInvalidCascade, r)
		}
	}()
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCascade, err)
	}
	return &PigoDetector{classifier: classifier}, nil
}

// Detect implements vitals.FaceDetector. Candidates are clustered and
// returned best score first.
func (d *PigoDetector) Detect(img *image.Gray, p vitals.DetectParams) ([]image.Rectangle, error) {
	if img == nil {
		return nil, errors.New("facedetect: nil image")
	}
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()
	if cols == 0 || rows == 0 {
		return nil, nil
	}
	params := cascadeParams(p, rows, cols)
	params.ImageParams = pigo.ImageParams{
		Pixels: d.pixels(img),
		Rows:   rows,
		Cols:   cols,
		Dim:    cols,
	}
	dets := d.classifier.RunCascade(params, 0)
	dets = d.classifier.ClusterDetections(dets, iouThreshold)
	return toRects(dets, minQuality(p.MinNeighbors)), nil
}

// pixels returns the tightly packed luminance plane of img.
func (d *PigoDetector) pixels(img *image.Gray) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if img.Stride == w && b.Min == (image.Point{}) {
		return img.Pix[:w*h]
	}
	if cap(d.scratch) < w*h {
		d.scratch = make([]uint8, w*h)
	}
	buf := d.scratch[:w*h]
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf[y*w:(y+1)*w], img.Pix[off:off+w])
	}
	return buf
}

func cascadeParams(p vitals.DetectParams, rows, cols int) pigo.CascadeParams {
	scale := p.ScaleFactor
	if scale <= 1 {
		scale = 1.1
	}
	return pigo.CascadeParams{
		MinSize:     max(p.MinSize, 1),
		MaxSize:     min(rows, cols),
		ShiftFactor: shiftFactor,
		ScaleFactor: scale,
	}
}

func minQuality(neighbors int) float32 {
	return float32(qualityPerNeighbor * float64(max(neighbors, 0)))
}

// toRects keeps detections scoring at least minQ and converts their
// center/size form to rectangles, best first.
func toRects(dets []pigo.Detection, minQ float32) []image.Rectangle {
	kept := make([]pigo.Detection, 0, len(dets))
	for _, det := range dets {
		if det.Q >= minQ && det.Scale > 0 {
			kept = append(kept, det)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Q > kept[j].Q })
	out := make([]image.Rectangle, len(kept))
	for i, det := range kept {
		half := det.Scale / 2
		out[i] = image.Rect(det.Col-half, det.Row-half, det.Col-half+det.Scale, det.Row-half+det.Scale)
	}
	return out
}

var _ vitals.FaceDetector = (*PigoDetector)(nil)
