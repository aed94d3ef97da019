package tracking

import (
	"image"
	"time"

	"github.com/teslashibe/go-human/pkg/tracking/detection"
)

// Timings records how long each stage of a frame took.
type Timings struct {
	Detect time.Duration `json:"detect"`
	Skin   time.Duration `json:"skin"`
	Flow   time.Duration `json:"flow"`
	Total  time.Duration `json:"total"`
}

// DebugImages holds the optional visual products of a frame. Each field
// is nil unless the matching output was requested and could be computed.
type DebugImages struct {
	Skin      *image.Gray // Skin posterior over the frame
	Histogram *image.Gray // Hue (x) by saturation (y) histogram
	Flow      *image.Gray // Normalized flow magnitude over the flow ROI
}

// Output is the tracker's result for one frame. It is a value copy and
// safe to hand to other goroutines.
type Output struct {
	Frame     uint64
	Timestamp time.Time
	FrameSize image.Point

	State   State
	TrackID string

	Belief      image.Rectangle // Estimated face rectangle
	Score       int             // Votes of the last matched candidate
	NumFaces    int             // Accepted candidates this frame
	Uncertainty float64         // Norm of position and size variances
	CovNorm     float64         // Norm of position variances

	Candidates []detection.Candidate
	Selected   int // Index of the matched candidate, -1 if none

	SearchROI  image.Rectangle // Detector window for the next frame
	FlowROI    image.Rectangle
	Regions    [NumRegions]image.Rectangle
	FlowScores [NumRegions]float64

	Timings Timings
	Debug   *DebugImages
}

// Valid reports whether the output describes a tracked subject and may be
// published.
func (o Output) Valid() bool {
	return o.State.Tracking()
}
