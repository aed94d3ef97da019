package tracking

import (
	"math"

	"github.com/teslashibe/go-human/pkg/tracking/detection"
)

// saturationVotes is the vote count at which a candidate is treated as a
// noise-free measurement.
const saturationVotes = 40.0

// MeasurementNoise maps a candidate's vote count to the measurement noise
// variance: 1 for no votes, falling linearly to 0 at 40 votes.
func MeasurementNoise(votes int) float64 {
	return 1 - math.Min(math.Max(float64(votes)/saturationVotes, 0), 1)
}

func measurementOf(c detection.Candidate) [measDim]float64 {
	return [measDim]float64{float64(c.X), float64(c.Y), float64(c.W), float64(c.H)}
}

// EvaluateCandidate returns the positional covariance norm f would have
// after correcting with c. f must already hold this frame's prediction and
// is left untouched. A candidate that cannot be applied scores +Inf.
func EvaluateCandidate(f *Filter, c detection.Candidate) float64 {
	scratch := f.Clone()
	if err := scratch.Correct(measurementOf(c), MeasurementNoise(c.Votes)); err != nil {
		return math.Inf(1)
	}
	return scratch.PositionCovNorm()
}

// SelectCandidate returns the index of the maximum-likelihood candidate,
// the one minimizing the post-correction positional covariance norm, and
// that norm. Ties go to the earliest candidate. It returns -1 when cands
// is empty.
func SelectCandidate(f *Filter, cands []detection.Candidate) (int, float64) {
	best, bestNorm := -1, math.Inf(1)
	for i, c := range cands {
		n := EvaluateCandidate(f, c)
		if best < 0 || n < bestNorm {
			best, bestNorm = i, n
		}
	}
	return best, bestNorm
}
