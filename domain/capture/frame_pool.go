package capture

import (
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// Reusable frame pool. Grabbers return freshly allocated images; the capture
// loop copies them into pooled RGBA buffers so that a slow consumer does not
// keep many distinct backing slices alive. Consumers hand frames back with
// RecycleFrame once processing returns; frames that are never recycled are
// simply collected.

var framePool sync.Pool // stores *image.RGBA

// acquireFrame returns a reusable RGBA image sized w x h anchored at the
// origin. Pix length is exactly w*h*4 and Stride is w*4.
func acquireFrame(w, h int) *image.RGBA {
	rect := image.Rect(0, 0, w, h)
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

// pooledCopy copies src into a pooled RGBA buffer.
func pooledCopy(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := acquireFrame(b.Dx(), b.Dy())
	if len(dst.Pix) == 0 {
		return dst
	}
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// RecycleFrame returns the frame's RGBA buffer to the pool for potential
// reuse. The frame must no longer be accessed after invoking RecycleFrame.
// Non-RGBA frames are ignored.
func RecycleFrame(f Frame) {
	img, ok := f.Image.(*image.RGBA)
	if !ok || img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}
