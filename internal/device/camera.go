package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

var DefaultCameraArgs = []string{"--nopreview", "-t", "2000", "-e", "jpg", "-o", "-"}

// Camera captures stills by running a capture tool (rpicam-still by default)
// that writes an encoded image to stdout. The tool's -t warm-up replaces the
// start/sleep/stop dance of the sensor.
type Camera struct {
	command string
	args    []string
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewCamera(command string, args []string) *Camera {
	if command == "" {
		command = "rpicam-still"
	}
	if len(args) == 0 {
		args = DefaultCameraArgs
	}
	return &Camera{command: command, args: args, run: runOutput}
}

func (c *Camera) Capture(ctx context.Context) (image.Image, error) {
	out, err := c.run(ctx, c.command, c.args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.command, err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out, nil
}

// SavePhoto writes img as photo_<unix>.jpg under dir and returns the file name.
func SavePhoto(dir string, img image.Image, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("photo dir: %w", err)
	}

	name := fmt.Sprintf("photo_%d.jpg", now.Unix())
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode photo: %w", err)
	}
	return name, f.Close()
}
