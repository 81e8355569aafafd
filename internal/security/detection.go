package security

import (
	"image"
)

const PersonLabel = "person"

// BBox is a detector box in frame pixel coordinates, corners (X1,Y1)-(X2,Y2).
type BBox struct {
	X1, Y1, X2, Y2 int
}

func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

type Detection struct {
	Label      string
	Box        BBox
	Confidence float64
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop cuts box out of frame, clipped to the frame bounds. It returns nil for
// inverted boxes, empty clipped regions and image types that cannot be cropped.
func Crop(frame image.Image, box BBox) image.Image {
	if box.X2 <= box.X1 || box.Y2 <= box.Y1 {
		return nil
	}

	r := box.Rect().Intersect(frame.Bounds())
	if r.Empty() {
		return nil
	}

	si, ok := frame.(subImager)
	if !ok {
		return nil
	}
	return si.SubImage(r)
}
