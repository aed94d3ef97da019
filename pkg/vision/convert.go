// Package vision adapts OpenCV (via gocv) to the tracker's detector and
// optical flow boundaries, and renders debug frames.
package vision

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/gift"
	"gocv.io/x/gocv"
)

// ErrModelNotFound is returned when a model or cascade file is missing.
var ErrModelNotFound = errors.New("vision: model file not found")

// toRGBA returns img as a tightly packed RGBA raster at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) && rgba.Stride == 4*rgba.Bounds().Dx() {
		return rgba
	}
	dst := image.NewRGBA(image.Rectangle{Max: img.Bounds().Size()})
	gift.New().Draw(dst, img)
	return dst
}

// matFromImage converts img into an OpenCV matrix with the given color
// conversion applied to the RGBA source (for example gocv.ColorRGBAToBGR).
// The caller owns the returned Mat.
func matFromImage(img image.Image, code gocv.ColorConversionCode) (gocv.Mat, error) {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("vision: wrap image: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, code)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), errors.New("vision: color conversion produced an empty image")
	}
	return dst, nil
}

// matFromGray copies a grayscale image into a single channel matrix.
func matFromGray(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	pix := img.Pix
	if img.Stride != b.Dx() || b.Min != (image.Point{}) {
		pix = make([]byte, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			pix = append(pix, img.Pix[off:off+b.Dx()]...)
		}
	}
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("vision: wrap gray image: %w", err)
	}
	return m, nil
}
