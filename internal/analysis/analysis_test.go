package analysis

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func solid(w, h int, c color.RGBA) Frame {
	pix := make([]byte, 4*w*h)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
	return Frame{Width: w, Height: h, Pix: pix}
}

func TestLinearize(t *testing.T) {
	tests := []struct {
		in   uint8
		want float64
	}{
		{0, 0},
		{255, 1},
		{10, 10.0 / 255 / 12.92},
		{128, math.Pow((128.0/255+0.055)/1.055, 2.4)},
	}
	for _, tt := range tests {
		if got := Linearize(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Linearize(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantLum float64
		wantRed float64
	}{
		{"white", solid(8, 8, color.RGBA{255, 255, 255, 255}), 1, 0},
		{"black", solid(8, 8, color.RGBA{0, 0, 0, 255}), 0, 0},
		{"pure red", solid(8, 8, color.RGBA{255, 0, 0, 255}), 0.2126, 1},
		{"dull red", solid(8, 8, color.RGBA{190, 0, 0, 255}), 0.2126 * Linearize(190), 0},
		{"green", solid(8, 8, color.RGBA{0, 255, 0, 255}), 0.7152, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.frame)
			if math.Abs(got.Luminance-tt.wantLum) > 1e-9 {
				t.Errorf("Luminance = %v, want %v", got.Luminance, tt.wantLum)
			}
			if math.Abs(got.RedSaturation-tt.wantRed) > 1e-9 {
				t.Errorf("RedSaturation = %v, want %v", got.RedSaturation, tt.wantRed)
			}
		})
	}
}

func TestAnalyzeSubsample(t *testing.T) {
	// 8 pixels: only indices 0 and 4 are sampled.
	f := solid(8, 1, color.RGBA{0, 0, 0, 255})
	copy(f.Pix[4*4:], []byte{255, 0, 0, 255})
	copy(f.Pix[1*4:], []byte{255, 255, 255, 255})

	got := Analyze(f)
	if got.RedSaturation != 0.5 {
		t.Errorf("RedSaturation = %v, want 0.5", got.RedSaturation)
	}
	if math.Abs(got.Luminance-0.2126/2) > 1e-9 {
		t.Errorf("Luminance = %v, want %v", got.Luminance, 0.2126/2)
	}
}

func TestAnalyzeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"empty", Frame{}},
		{"negative dims", Frame{Width: -3, Height: 4, Pix: make([]byte, 64)}},
		{"dims larger than buffer", Frame{Width: 640, Height: 360, Pix: []byte{255, 255, 255, 255}}},
		{"truncated pixel", Frame{Width: 2, Height: 1, Pix: []byte{255, 255, 255, 255, 1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.frame)
			if got.Luminance < 0 || got.Luminance > 1 || got.RedSaturation < 0 || got.RedSaturation > 1 {
				t.Errorf("out of range: %+v", got)
			}
		})
	}

	if got := Analyze(Frame{Width: 640, Height: 360, Pix: []byte{255, 255, 255, 255}}); got.Luminance != 1 {
		t.Errorf("clamped frame Luminance = %v, want 1", got.Luminance)
	}
}

func TestNewFrameDownscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	f := NewFrame(img, 42, 640, 360)
	if f.Width != 640 || f.Height != 360 {
		t.Fatalf("size = %dx%d, want 640x360", f.Width, f.Height)
	}
	if f.TimestampMs != 42 || len(f.Pix) != 4*640*360 {
		t.Errorf("frame = ts %d len %d", f.TimestampMs, len(f.Pix))
	}
	if got := Analyze(f); math.Abs(got.Luminance-1) > 1e-3 {
		t.Errorf("downscaled white Luminance = %v", got.Luminance)
	}
}

func TestNewFrameKeepsSmall(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	f := NewFrame(img, 0, 640, 360)
	if f.Width != 100 || f.Height != 50 {
		t.Errorf("size = %dx%d, want 100x50", f.Width, f.Height)
	}

	sub := img.SubImage(image.Rect(10, 10, 30, 20))
	f = NewFrame(sub, 0, 640, 360)
	if f.Width != 20 || f.Height != 10 || len(f.Pix) != 4*20*10 {
		t.Errorf("subimage frame = %dx%d len %d", f.Width, f.Height, len(f.Pix))
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, mw, mh int
		ww, wh       int
	}{
		{1280, 720, 640, 360, 640, 360},
		{1000, 1000, 640, 360, 360, 360},
		{320, 200, 640, 360, 320, 200},
		{4000, 10, 640, 360, 640, 2},
		{500, 500, 0, 0, 500, 500},
	}
	for _, tt := range tests {
		w, h := fit(tt.w, tt.h, tt.mw, tt.mh)
		if w != tt.ww || h != tt.wh {
			t.Errorf("fit(%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.ww, tt.wh)
		}
	}
}
