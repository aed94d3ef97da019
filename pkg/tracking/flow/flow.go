// Package flow defines the dense optical flow boundary used for gesture
// scoring.
package flow

import (
	"errors"
	"fmt"
	"image"
)

// ErrSizeMismatch is returned when the two input images differ in size.
var ErrSizeMismatch = errors.New("flow: image size mismatch")

// Field is a dense displacement field. DX and DY hold one value per pixel
// in row-major order.
type Field struct {
	Width, Height int
	DX, DY        []float64
}

// NewField allocates a zero field of the given size.
func NewField(w, h int) *Field {
	return &Field{
		Width:  w,
		Height: h,
		DX:     make([]float64, w*h),
		DY:     make([]float64, w*h),
	}
}

// Check reports whether the field matches a w x h image.
func (f *Field) Check(w, h int) error {
	if f == nil {
		return errors.New("flow: nil field")
	}
	if f.Width != w || f.Height != h || len(f.DX) != w*h || len(f.DY) != w*h {
		return fmt.Errorf("%w: field %dx%d, image %dx%d", ErrSizeMismatch, f.Width, f.Height, w, h)
	}
	return nil
}

// Estimator computes dense optical flow from prev to next. Both images
// have the same size and their origin at (0, 0).
type Estimator interface {
	Estimate(prev, next *image.Gray) (*Field, error)
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(prev, next *image.Gray) (*Field, error)

// Estimate calls fn.
func (fn EstimatorFunc) Estimate(prev, next *image.Gray) (*Field, error) {
	return fn(prev, next)
}

// SameSize checks that prev and next can be compared.
func SameSize(prev, next *image.Gray) error {
	if prev.Bounds().Size() != next.Bounds().Size() {
		return fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, prev.Bounds().Size(), next.Bounds().Size())
	}
	return nil
}
