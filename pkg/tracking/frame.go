package tracking

import (
	"errors"
	"image"
	"time"

	"github.com/disintegration/gift"
)

// ErrEmptyFrame is returned for frames without pixels.
var ErrEmptyFrame = errors.New("tracking: empty frame")

// Frame is one video frame as the tracker consumes it. Both rasters share
// the same size and have their origin at (0, 0).
//
// The tracker keeps Gray as the reference for the next optical flow step,
// so callers must not modify a frame after passing it to Process.
type Frame struct {
	Color     *image.RGBA
	Gray      *image.Gray
	Timestamp time.Time
}

// NewFrame converts an arbitrary image into a Frame, deriving the
// grayscale raster. Images already in RGBA at the origin are used as is.
func NewFrame(img image.Image, ts time.Time) (Frame, error) {
	if img == nil || img.Bounds().Empty() {
		return Frame{}, ErrEmptyFrame
	}

	color, ok := img.(*image.RGBA)
	if !ok || color.Bounds().Min != (image.Point{}) {
		color = image.NewRGBA(image.Rectangle{Max: img.Bounds().Size()})
		gift.New().Draw(color, img)
	}

	gray := image.NewGray(color.Bounds())
	gift.New(gift.Grayscale()).Draw(gray, color)

	return Frame{Color: color, Gray: gray, Timestamp: ts}, nil
}

// Bounds returns the frame rectangle.
func (f Frame) Bounds() image.Rectangle {
	if f.Color == nil {
		return image.Rectangle{}
	}
	return f.Color.Bounds()
}
