package vitals

import (
	"image"

	"golang.org/x/image/draw"
)

// grayscale converts an RGBA frame to 8-bit luminance using the integer
// BT.601 weights.
func grayscale(frame *image.RGBA) *image.Gray {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			i := x * 4
			r, g, bb := row[i], row[i+1], row[i+2]
			dst[x] = byte((77*uint32(r) + 150*uint32(g) + 29*uint32(bb)) >> 8)
		}
	}
	return out
}

// equalizeHist spreads the gray-level histogram of img over the full 0..255
// range in place.
func equalizeHist(img *image.Gray) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	total := w * h
	if total == 0 {
		return
	}
	var hist [256]int
	for y := 0; y < h; y++ {
		for _, v := range img.Pix[y*img.Stride : y*img.Stride+w] {
			hist[v]++
		}
	}
	cdfMin := 0
	cdf := 0
	var lut [256]byte
	for i := 0; i < 256; i++ {
		if hist[i] == 0 && cdf == 0 {
			continue
		}
		cdf += hist[i]
		if cdfMin == 0 {
			cdfMin = cdf
		}
		if total == cdfMin {
			lut[i] = byte(i)
			continue
		}
		v := float64(cdf-cdfMin) * 255 / float64(total-cdfMin)
		lut[i] = byte(v + 0.5)
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			row[x] = lut[v]
		}
	}
}

// downscale resizes img by factor with bilinear interpolation.
func downscale(img *image.Gray, factor float64) *image.Gray {
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

// saturation returns the HSV saturation of an 8-bit RGB pixel on the
// 0..255 scale.
func saturation(r, g, b uint8) uint8 {
	hi := max(r, g, b)
	if hi == 0 {
		return 0
	}
	lo := min(r, g, b)
	return uint8((uint32(hi-lo)*255 + uint32(hi)/2) / uint32(hi))
}

// foreheadBand returns the forehead/upper-cheek strip of a face rectangle:
// the middle 40% of its width and 10%-25% of its height. The result is
// clamped to bounds and is at least 1x1 when the face intersects bounds.
func foreheadBand(face, bounds image.Rectangle) image.Rectangle {
	w, h := face.Dx(), face.Dy()
	x0 := face.Min.X + int(0.3*float64(w))
	x1 := face.Min.X + int(0.7*float64(w))
	y0 := face.Min.Y + int(0.10*float64(h))
	y1 := face.Min.Y + int(0.25*float64(h))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1).Intersect(bounds)
}
