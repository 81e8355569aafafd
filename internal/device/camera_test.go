package device

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func TestCamera_Capture(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testFrame(8, 6)))

	cam := NewCamera("", nil)
	cam.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "rpicam-still", name)
		assert.Equal(t, DefaultCameraArgs, args)
		return buf.Bytes(), nil
	}

	img, err := cam.Capture(t.Context())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
}

func TestCamera_CaptureErrors(t *testing.T) {
	cam := NewCamera("snap", []string{"-o", "-"})

	cam.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("no camera")
	}
	_, err := cam.Capture(t.Context())
	assert.ErrorContains(t, err, "snap: no camera")

	cam.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not an image"), nil
	}
	_, err = cam.Capture(t.Context())
	assert.ErrorContains(t, err, "decode frame")
}

func TestSavePhoto(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	now := time.Unix(1700000000, 0)

	name, err := SavePhoto(dir, testFrame(4, 4), now)
	require.NoError(t, err)
	assert.Equal(t, "photo_1700000000.jpg", name)

	info, err := os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
