package tracking

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/gift"
	"gonum.org/v1/gonum/floats"

	"github.com/teslashibe/go-human/pkg/tracking/flow"
)

// biasFloor is the displacement below which a flow vector is treated as
// missing and excluded from bias estimation.
const biasFloor = 0.01

// MotionResult is the outcome of one gesture scoring step.
type MotionResult struct {
	ROI     image.Rectangle             // Flow ROI in frame coordinates
	Regions [NumRegions]image.Rectangle // Gesture regions in frame coordinates
	Scores  [NumRegions]float64         // Summed normalized flow per region

	// Magnitude is the normalized flow magnitude over ROI, row-major.
	// It is nil when no flow was computed.
	Magnitude []float64
}

// MotionScorer measures arm-gesture activity around the subject. It
// removes the platform's own motion by subtracting the median flow of the
// region and scores what is left in the quadrants beside the face.
//
// The previous grayscale frame is kept between calls; the first call after
// construction or Reset only stores it.
type MotionScorer struct {
	estimator flow.Estimator
	minFlow   float64
	prev      *image.Gray
}

// NewMotionScorer returns a scorer that ignores raw flow magnitudes at or
// below minFlow. A nil estimator disables scoring.
func NewMotionScorer(est flow.Estimator, minFlow float64) *MotionScorer {
	return &MotionScorer{estimator: est, minFlow: minFlow}
}

// Reset forgets the previous frame.
func (m *MotionScorer) Reset() {
	m.prev = nil
}

// Primed reports whether a previous frame is available.
func (m *MotionScorer) Primed() bool {
	return m.prev != nil
}

// Score computes gesture scores between the stored frame and gray. w and
// h are the estimated subject size from the filter. gray always becomes
// the stored frame, even when scoring fails; on failure the scores are
// zero and the error describes why.
func (m *MotionScorer) Score(gray *image.Gray, belief image.Rectangle, w, h float64) (MotionResult, error) {
	prev := m.prev
	m.prev = gray

	var res MotionResult
	if prev == nil {
		return res, nil
	}
	if prev.Bounds() != gray.Bounds() {
		return res, fmt.Errorf("motion: %w: %v vs %v", flow.ErrSizeMismatch, prev.Bounds(), gray.Bounds())
	}

	bounds := gray.Bounds()
	res.ROI = FlowROI(belief, w, h, bounds)
	res.Regions = GestureRegions(res.ROI, belief)
	if res.ROI.Empty() || m.estimator == nil {
		return res, nil
	}

	field, err := m.estimator.Estimate(crop(prev, res.ROI), crop(gray, res.ROI))
	if err != nil {
		return res, fmt.Errorf("motion: estimate flow: %w", err)
	}
	if err := field.Check(res.ROI.Dx(), res.ROI.Dy()); err != nil {
		return res, fmt.Errorf("motion: %w", err)
	}

	cancelBias(field.DX)
	cancelBias(field.DY)
	res.Magnitude = magnitude(field, m.minFlow)

	for i := 0; i < scoredRegions; i++ {
		res.Scores[i] = regionSum(res.Magnitude, res.ROI, res.Regions[i].Intersect(bounds))
	}
	return res, nil
}

// crop copies r out of img into an image with its origin at (0, 0).
func crop(img *image.Gray, r image.Rectangle) *image.Gray {
	g := gift.New(gift.Crop(r))
	dst := image.NewGray(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// cancelBias subtracts the median of the significant values in v from
// those values. Platform egomotion shows up as a shift shared by most of
// the field, which the median captures.
func cancelBias(v []float64) {
	mask := make([]bool, len(v))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, x := range v {
		if math.Abs(x) > biasFloor {
			mask[i] = true
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
	}
	if math.IsInf(lo, 1) {
		return
	}

	med := HistogramMedian(v, mask, medianBins, lo, hi)
	for i := range v {
		if mask[i] {
			v[i] -= med
		}
	}
}

// magnitude returns the per-pixel flow magnitude with values at or below
// floor zeroed, min-max normalized to [0, 1]. A flat field is all zero.
func magnitude(f *flow.Field, floor float64) []float64 {
	mag := make([]float64, len(f.DX))
	for i := range mag {
		m := math.Hypot(f.DX[i], f.DY[i])
		if m > floor {
			mag[i] = m
		}
	}
	if len(mag) == 0 {
		return mag
	}

	lo, hi := floats.Min(mag), floats.Max(mag)
	if hi-lo <= 0 {
		for i := range mag {
			mag[i] = 0
		}
		return mag
	}
	floats.AddConst(-lo, mag)
	floats.Scale(1/(hi-lo), mag)
	return mag
}

// regionSum sums mag over region. mag covers roi row-major; the part of
// region outside roi is ignored and an empty region sums to zero.
func regionSum(mag []float64, roi, region image.Rectangle) float64 {
	r := region.Intersect(roi)
	if r.Empty() || mag == nil {
		return 0
	}
	r = r.Sub(roi.Min)
	w := roi.Dx()

	var sum float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := mag[y*w+r.Min.X : y*w+r.Max.X]
		sum += floats.Sum(row)
	}
	return sum
}
