// Package screen captures the primary display as a frame source.
package screen

import (
	"bytes"
	"context"
	"crypto/md5"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"
	"sync"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
)

// backend implements platform-specific raw capture
type backend interface {
	captureRaw(ctx context.Context) ([]byte, error)
}

// Capturer decodes screenshots and reuses the last decode when the encoded
// bytes have not changed.
type Capturer struct {
	backend
	tempDir string

	mu       sync.Mutex
	lastHash [16]byte
	lastImg  image.Image
}

func newCapturer(b backend, tempDir string) *Capturer {
	return &Capturer{backend: b, tempDir: tempDir}
}

// Capture grabs the display.
func (c *Capturer) Capture(ctx context.Context) (image.Image, error) {
	data, err := c.captureRaw(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "screen capture")
	}

	// Quick change detection: hash first 4KB
	hash := md5.Sum(data[:min(len(data), 4096)])
	c.mu.Lock()
	defer c.mu.Unlock()
	if hash == c.lastHash && c.lastImg != nil {
		return c.lastImg, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "decode screenshot")
	}
	c.lastHash, c.lastImg = hash, img
	return img, nil
}

// Close removes the capture scratch directory.
func (c *Capturer) Close() {
	if c.tempDir != "" {
		os.RemoveAll(c.tempDir)
	}
}

func newTempDir() string {
	dir, err := os.MkdirTemp("", "flashguard-screen-*")
	if err != nil {
		return os.TempDir()
	}
	return dir
}
