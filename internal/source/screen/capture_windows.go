//go:build windows

package screen

import (
	"context"
	"errors"
)

type windowsBackend struct{}

func (windowsBackend) captureRaw(context.Context) ([]byte, error) {
	// TODO: Implement using Windows GDI or DXGI
	return nil, errors.New("windows screen capture not implemented")
}

// NewCapturer creates a platform-specific screen capturer
func NewCapturer() *Capturer {
	return newCapturer(windowsBackend{}, "")
}
