//go:build darwin

package screen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type darwinBackend struct{ tempDir string }

func (d *darwinBackend) captureRaw(ctx context.Context) ([]byte, error) {
	tmpFile := filepath.Join(d.tempDir, "screenshot.jpg")
	// -x: no sound, -t jpg: JPEG format, -m: main display only
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "jpg", "-m", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screencapture: %w: %s", err, stderr.String())
	}
	defer os.Remove(tmpFile)
	return os.ReadFile(tmpFile)
}

// NewCapturer creates a platform-specific screen capturer
func NewCapturer() *Capturer {
	dir := newTempDir()
	return newCapturer(&darwinBackend{tempDir: dir}, dir)
}
