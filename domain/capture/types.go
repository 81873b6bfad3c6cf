package capture

import (
	"errors"
	"image"
	"time"

	"golang.org/x/image/draw"
)

// PixelFormat names the in-memory layout of a frame's image buffer.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatRGBA
	FormatNRGBA
	FormatYCbCr
	FormatGray
)

func (p PixelFormat) String() string {
	switch p {
	case FormatRGBA:
		return "rgba"
	case FormatNRGBA:
		return "nrgba"
	case FormatYCbCr:
		return "ycbcr"
	case FormatGray:
		return "gray"
	default:
		return "unknown"
	}
}

// FormatOf reports the pixel format of img.
func FormatOf(img image.Image) PixelFormat {
	switch img.(type) {
	case *image.RGBA:
		return FormatRGBA
	case *image.NRGBA:
		return FormatNRGBA
	case *image.YCbCr:
		return FormatYCbCr
	case *image.Gray:
		return FormatGray
	default:
		return FormatUnknown
	}
}

// Frame is one captured image plus metadata. The source owns the image
// buffer; consumers must not retain it after their call returns.
type Frame struct {
	Image      image.Image
	Format     PixelFormat
	CapturedAt time.Time
	Sequence   uint64
}

// NewFrame wraps img, deriving its pixel format.
func NewFrame(img image.Image, capturedAt time.Time, seq uint64) Frame {
	f := Frame{Image: img, CapturedAt: capturedAt, Sequence: seq}
	if img != nil {
		f.Format = FormatOf(img)
	}
	return f
}

func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// ErrEmptyFrame is returned when a frame carries no pixels.
var ErrEmptyFrame = errors.New("capture: empty frame")

// ToRGBA returns the frame as an *image.RGBA with its origin at (0,0).
// RGBA frames already anchored at the origin are returned without copying.
func ToRGBA(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, ErrEmptyFrame
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyFrame
	}
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba, nil
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, nil
}

// FrameHandler consumes frames produced by a capture service. Ownership of
// the frame passes to the handler, which releases it with RecycleFrame.
type FrameHandler func(Frame)

// Grabber produces one image per call. io.EOF ends the capture loop.
type Grabber interface {
	Grab() (image.Image, error)
}

// ServiceContract exposes basic lifecycle control for capture services.
type ServiceContract interface {
	Start()
	Stop()
	Running() bool
}
