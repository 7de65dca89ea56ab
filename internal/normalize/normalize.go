package normalize

import (
	"errors"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned for an input with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

const (
	// DefaultTargetWidth matches the width most recognition engines handle
	// well for receipt-sized documents.
	DefaultTargetWidth = 800

	smoothKernelSize    = 5
	thresholdWindowSize = 11
	thresholdOffset     = 2
)

// Normalizer conditions arbitrary input images into the binary single-channel
// form recognition engines work best with: fixed width, denoised, and
// binarized with a locally adaptive threshold so unevenly lit photos and
// scans survive.
type Normalizer struct {
	targetWidth int
}

// New creates a Normalizer that rescales inputs to targetWidth pixels. A
// targetWidth of zero disables rescaling.
func New(targetWidth int) *Normalizer {
	return &Normalizer{targetWidth: targetWidth}
}

// Normalize produces a new binary grayscale image from img. The input is
// never mutated. The only rejected input is one with no pixels.
func (n *Normalizer) Normalize(img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}

	// Box filtering is area averaging, which keeps shrunk text free of the
	// ringing artifacts sharper filters introduce. imaging preserves the
	// aspect ratio when the height is zero.
	if n.targetWidth > 0 && n.targetWidth != b.Dx() {
		img = imaging.Resize(img, n.targetWidth, 0, imaging.Box)
	}

	gray := toGray(img)
	smoothed := gaussianSmooth(gray, smoothKernelSize)
	return adaptiveThreshold(smoothed, thresholdWindowSize, thresholdOffset), nil
}

// toGray converts any image to single-channel luminance.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// gaussianKernel builds a normalized 1D Gaussian with sigma derived from the
// kernel size (sigma = 0.3*((size-1)*0.5 - 1) + 0.8).
func gaussianKernel(size int) []float64 {
	sigma := 0.3*((float64(size)-1)*0.5-1) + 0.8
	k := make([]float64, size)
	mid := float64(size-1) / 2
	var sum float64
	for i := range k {
		d := float64(i) - mid
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// convolve applies a separable 1D kernel horizontally then vertically.
// Samples past the border clamp to the edge pixel.
func convolve(src []float64, w, h int, k []float64) []float64 {
	r := len(k) / 2
	tmp := make([]float64, len(src))
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range k {
				sx := clamp(x+i-r, 0, w-1)
				acc += kv * src[row+sx]
			}
			tmp[row+x] = acc
		}
	}
	out := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range k {
				sy := clamp(y+i-r, 0, h-1)
				acc += kv * tmp[sy*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// gaussianSmooth suppresses acquisition noise ahead of thresholding.
func gaussianSmooth(src *image.Gray, size int) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := convolve(grayFloats(src), w, h, gaussianKernel(size))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range out {
		dst.Pix[i] = uint8(math.Round(v))
	}
	return dst
}

// adaptiveThreshold classifies each pixel against a Gaussian-weighted local
// mean minus a constant offset. A single global threshold fails on photos
// with uneven illumination; a local one does not.
func adaptiveThreshold(src *image.Gray, window, offset int) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	pix := grayFloats(src)
	mean := convolve(pix, w, h, gaussianKernel(window))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i := range pix {
		if pix[i] > mean[i]-float64(offset) {
			dst.Pix[i] = 255
		}
	}
	return dst
}

// grayFloats flattens a grayscale image into a float buffer, dropping any
// stride padding.
func grayFloats(src *image.Gray) []float64 {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			out[y*w+x] = float64(row[x])
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
