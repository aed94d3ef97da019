package vision

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-human/pkg/tracking/flow"
)

// FarnebackConfig holds the dense optical flow parameters.
type FarnebackConfig struct {
	PyrScale   float64 // Pyramid scale between levels
	Levels     int     // Pyramid levels
	WinSize    int     // Averaging window
	Iterations int     // Iterations per level
	PolyN      int     // Pixel neighborhood for polynomial expansion
	PolySigma  float64 // Gaussian sigma for polynomial expansion
}

// DefaultFarnebackConfig returns parameters tuned for arm motion around a
// face at small image sizes.
func DefaultFarnebackConfig() FarnebackConfig {
	return FarnebackConfig{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    5,
		Iterations: 3,
		PolyN:      9,
		PolySigma:  1.9,
	}
}

// Farneback estimates dense optical flow with OpenCV.
type Farneback struct {
	config FarnebackConfig
	mu     sync.Mutex
}

// NewFarneback returns a flow estimator.
func NewFarneback(cfg FarnebackConfig) *Farneback {
	return &Farneback{config: cfg}
}

// Estimate implements flow.Estimator.
func (f *Farneback) Estimate(prev, next *image.Gray) (*flow.Field, error) {
	if err := flow.SameSize(prev, next); err != nil {
		return nil, err
	}

	a, err := matFromGray(prev)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	b, err := matFromGray(next)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	out := gocv.NewMat()
	defer out.Close()

	f.mu.Lock()
	gocv.CalcOpticalFlowFarneback(a, b, &out,
		f.config.PyrScale, f.config.Levels, f.config.WinSize,
		f.config.Iterations, f.config.PolyN, f.config.PolySigma, 0)
	f.mu.Unlock()

	w, h := a.Cols(), a.Rows()
	if out.Cols() != w || out.Rows() != h {
		return nil, fmt.Errorf("%w: flow %dx%d for %dx%d input", flow.ErrSizeMismatch, out.Cols(), out.Rows(), w, h)
	}

	// CV_32FC2: interleaved dx, dy
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("vision: read flow: %w", err)
	}
	field := flow.NewField(w, h)
	for i := range field.DX {
		field.DX[i] = float64(data[2*i])
		field.DY[i] = float64(data[2*i+1])
	}
	return field, nil
}
