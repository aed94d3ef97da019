package tracking

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// histogramCell is the edge length in pixels of one histogram bin when
// rendered.
const histogramCell = 10

// RenderProbability draws values (row-major over size) as a grayscale
// image, stretched so the smallest value is black and the largest white.
func RenderProbability(values []float64, size image.Point) *image.Gray {
	img := image.NewGray(image.Rectangle{Max: size})
	if len(values) != size.X*size.Y || len(values) == 0 {
		return img
	}

	lo, hi := floats.Min(values), floats.Max(values)
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	for i, v := range values {
		img.Pix[i] = uint8(math.Round((v - lo) * scale))
	}
	return img
}

// RenderHistogram draws a hue by saturation histogram with hue along x
// and saturation along y, each bin a square cell.
func RenderHistogram(hist *mat.Dense) *image.Gray {
	rows, cols := hist.Dims()
	img := image.NewGray(image.Rect(0, 0, rows*histogramCell, cols*histogramCell))

	hi := mat.Max(hist)
	lo := mat.Min(hist)
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	for h := 0; h < rows; h++ {
		for s := 0; s < cols; s++ {
			c := color.Gray{Y: uint8(math.Round((hist.At(h, s) - lo) * scale))}
			for y := s * histogramCell; y < (s+1)*histogramCell-1; y++ {
				for x := h * histogramCell; x < (h+1)*histogramCell-1; x++ {
					img.SetGray(x, y, c)
				}
			}
		}
	}
	return img
}
