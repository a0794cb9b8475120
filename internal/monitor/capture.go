package monitor

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// FrameCapturer writes one raw capture of the screen into dir and returns the
// file path. Implementations are opaque sensors; a failed capture skips the
// cycle rather than killing the loop.
type FrameCapturer interface {
	CaptureFrame(dir string) (string, error)
}

// NewPlatformCapturer returns a screen capturer for the current OS.
func NewPlatformCapturer() FrameCapturer {
	if runtime.GOOS == "darwin" {
		return &darwinCapturer{}
	}
	return unsupportedCapturer{}
}

func framePath(dir string) string {
	timestamp := time.Now().UTC().Format("20060102_150405.000000")
	return filepath.Join(dir, fmt.Sprintf("frame_%s.png", timestamp))
}

// darwinCapturer shells out to the system screencapture utility. -x silences
// the shutter sound.
type darwinCapturer struct{}

func (darwinCapturer) CaptureFrame(dir string) (string, error) {
	path := framePath(dir)
	if out, err := exec.Command("screencapture", "-x", path).CombinedOutput(); err != nil {
		return "", fmt.Errorf("screencapture failed: %v (%s)", err, string(out))
	}
	return path, nil
}

type unsupportedCapturer struct{}

func (unsupportedCapturer) CaptureFrame(string) (string, error) {
	return "", fmt.Errorf("screen capture is not supported on %s", runtime.GOOS)
}
