// Package analysis turns a frame bitmap into a perceptual brightness signal.
//
// Luminance follows the WCAG relative-luminance formula over linearized sRGB.
// Red saturation is the share of strongly red pixels. Both are computed over
// every fourth pixel, which is plenty for a frame already capped to 640x360.
package analysis

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	// SampleStride is the pixel stride of the subsample.
	SampleStride = 4

	// Saturated red: R above, G and B below.
	redMin   = 200
	otherMax = 100
)

// Frame is an RGBA bitmap captured at TimestampMs.
type Frame struct {
	TimestampMs int64
	Width       int
	Height      int
	Pix         []byte // 4 bytes per pixel, row-major
}

// Image views the frame as an *image.RGBA sharing Pix.
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{Pix: f.Pix, Stride: 4 * f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// Result is the per-frame signal. Both fields are within [0,1].
type Result struct {
	Luminance     float64 `json:"luminance"`
	RedSaturation float64 `json:"redSaturation"`
}

var linear [256]float64

func init() {
	for i := range linear {
		c := float64(i) / 255
		if c <= 0.03928 {
			linear[i] = c / 12.92
		} else {
			linear[i] = math.Pow((c+0.055)/1.055, 2.4)
		}
	}
}

// Linearize converts an 8-bit sRGB channel to linear light.
func Linearize(c uint8) float64 { return linear[c] }

// Analyze computes luminance and red saturation of f. Dimensions that
// disagree with the buffer are clamped to what the buffer holds.
func Analyze(f Frame) Result {
	n := 0
	if f.Width > 0 && f.Height > 0 {
		n = f.Width * f.Height
	}
	if avail := len(f.Pix) / 4; n > avail {
		n = avail
	}
	if n == 0 {
		return Result{}
	}

	var sum float64
	var sampled, red int
	for i := 0; i < n; i += SampleStride {
		p := f.Pix[i*4 : i*4+3]
		r, g, b := p[0], p[1], p[2]
		sum += 0.2126*linear[r] + 0.7152*linear[g] + 0.0722*linear[b]
		if r > redMin && g < otherMax && b < otherMax {
			red++
		}
		sampled++
	}

	return Result{
		Luminance:     clamp01(sum / float64(sampled)),
		RedSaturation: float64(red) / float64(sampled),
	}
}

// NewFrame converts img into a Frame no larger than maxW x maxH, keeping the
// aspect ratio. Images already inside the cap are copied as-is.
func NewFrame(img image.Image, ts int64, maxW, maxH int) Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Frame{TimestampMs: ts}
	}

	tw, th := fit(w, h, maxW, maxH)
	if tw == w && th == h {
		if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*w && b.Min == (image.Point{}) {
			return Frame{TimestampMs: ts, Width: w, Height: h, Pix: rgba.Pix[:4*w*h]}
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	if tw == w && th == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}
	return Frame{TimestampMs: ts, Width: tw, Height: th, Pix: dst.Pix}
}

// fit scales w x h down to fit inside maxW x maxH.
func fit(w, h, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	tw := max(1, int(math.Round(float64(w)*scale)))
	th := max(1, int(math.Round(float64(h)*scale)))
	return min(tw, maxW), min(th, maxH)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
