package capture

import (
	"image"
	"log/slog"

	"github.com/vova616/screenshot"
)

// screenGrabber captures the selection rectangle when one is set and the
// full screen otherwise.
type screenGrabber struct {
	selFn func() *image.Rectangle
}

func (g screenGrabber) Grab() (image.Image, error) {
	if g.selFn != nil {
		if r := g.selFn(); r != nil && !r.Empty() {
			return screenshot.CaptureRect(*r)
		}
	}
	return screenshot.CaptureScreen()
}

// NewScreenService captures a screen region (for example a video call
// window showing the subject's face) at fps frames per second.
func NewScreenService(logger *slog.Logger, selectionFn func() *image.Rectangle, fps int, handler FrameHandler) CaptureService {
	return NewCaptureService(logger, screenGrabber{selFn: selectionFn}, fps, handler)
}
