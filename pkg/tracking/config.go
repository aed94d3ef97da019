package tracking

import (
	"errors"
	"fmt"
)

// Config holds all tunable parameters for the human tracker. It is fixed
// when the tracker is built.
type Config struct {
	// Detection
	MinCandidateVotes int // Candidates with this many detector votes or fewer are ignored

	// State machine
	MinDetectFrames int     // Consecutive detections needed beyond this to enter TRACK
	MinRejectFrames int     // Consecutive misses needed beyond this before a reset is possible
	MaxRejectCov    float64 // Positional covariance norm above which a coasting track is dropped

	// Motion
	MinFlow float64 // Flow magnitudes at or below this are treated as still

	// Appearance
	SkinEnabled  bool // Maintain the skin histogram and posterior map
	SkinValueMin int  // Pixels must have HSV value strictly above this to be sampled
	SkinValueMax int  // ...and strictly below this

	// Optional outputs
	Outputs Outputs // Debug products to compute each frame
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		MinCandidateVotes: 5,

		MinDetectFrames: 6,
		MinRejectFrames: 6,
		MaxRejectCov:    6.0,

		MinFlow: 10,

		SkinEnabled:  false,
		SkinValueMin: 50,
		SkinValueMax: 150,

		Outputs: OutputOverlay,
	}
}

// PatientConfig returns a configuration for cluttered scenes: slower to
// acquire, slower to give up.
func PatientConfig() Config {
	cfg := DefaultConfig()
	cfg.MinCandidateVotes = 8
	cfg.MinDetectFrames = 10
	cfg.MinRejectFrames = 15
	cfg.MaxRejectCov = 12.0
	return cfg
}

// AggressiveConfig returns a configuration that locks on and drops tracks
// quickly. Useful on fast platforms with a clean view.
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.MinCandidateVotes = 3
	cfg.MinDetectFrames = 3
	cfg.MinRejectFrames = 3
	cfg.MaxRejectCov = 4.0
	return cfg
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("tracking: invalid config")

// Validate checks the configuration for values the tracker cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.MinCandidateVotes < 0 {
		errs = append(errs, fmt.Errorf("min candidate votes must be >= 0, got %d", c.MinCandidateVotes))
	}
	if c.MinDetectFrames < 0 {
		errs = append(errs, fmt.Errorf("min detect frames must be >= 0, got %d", c.MinDetectFrames))
	}
	if c.MinRejectFrames < 0 {
		errs = append(errs, fmt.Errorf("min reject frames must be >= 0, got %d", c.MinRejectFrames))
	}
	if c.MaxRejectCov <= 0 {
		errs = append(errs, fmt.Errorf("max reject covariance must be > 0, got %g", c.MaxRejectCov))
	}
	if c.MinFlow < 0 {
		errs = append(errs, fmt.Errorf("min flow must be >= 0, got %g", c.MinFlow))
	}
	if c.SkinValueMin < 0 || c.SkinValueMax > 255 || c.SkinValueMin >= c.SkinValueMax {
		errs = append(errs, fmt.Errorf("skin value band (%d, %d) is not a valid 8-bit range", c.SkinValueMin, c.SkinValueMax))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
