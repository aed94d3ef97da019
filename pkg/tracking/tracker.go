// Package tracking follows a single human face through a video stream.
//
// The Tracker fuses per-frame detector candidates through a Kalman filter,
// gated by a LOST/DETECT/TRACK/REJECT state machine. While a track is
// held it also maintains a skin color model and scores optical flow in
// four regions around the face for gesture input.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/tracking/detection"
	"github.com/teslashibe/go-human/pkg/tracking/flow"
)

// ErrFrameSize is returned when a frame's size differs from the size the
// tracker was initialized with.
var ErrFrameSize = errors.New("tracking: frame size changed")

// Tracker is the single-subject tracking pipeline.
//
// Process must be called from one goroutine at a time. Latest may be
// called concurrently from any goroutine.
type Tracker struct {
	cfg      Config
	detector detection.Detector
	logger   *slog.Logger

	size       image.Point
	machine    stateMachine
	filter     *Filter
	appearance *AppearanceModel
	motion     *MotionScorer
	searchROI  image.Rectangle
	lastStamp  time.Time
	score      int
	trackID    string
	frames     uint64

	mu     sync.RWMutex
	latest Output
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// New builds a tracker. det is required; est may be nil to disable
// gesture scoring.
func New(cfg Config, det detection.Detector, est flow.Estimator, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if det == nil {
		return nil, errors.New("tracking: detector is required")
	}

	t := &Tracker{
		cfg:        cfg,
		detector:   det,
		machine:    newStateMachine(cfg),
		filter:     NewFilter(),
		appearance: NewAppearanceModel(cfg.SkinValueMin, cfg.SkinValueMax),
		motion:     NewMotionScorer(est, cfg.MinFlow),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = log.OrDefault(t.logger).With("component", "tracker")
	t.latest = Output{State: StateLost, Selected: -1}
	return t, nil
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Reset drops any track and returns to LOST. The frame size is kept.
func (t *Tracker) Reset() {
	t.reset()
	t.publish(Output{Frame: t.frames, FrameSize: t.size, State: StateLost, SearchROI: t.searchROI, Selected: -1})
}

func (t *Tracker) reset() {
	t.machine.state = StateLost
	t.machine.counter = 0
	t.filter.Reset()
	t.appearance.Reset(t.size)
	t.motion.Reset()
	t.searchROI = image.Rectangle{Max: t.size}
	t.score = 0
	t.trackID = ""
}

// Latest returns the most recent output.
func (t *Tracker) Latest() Output {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}

func (t *Tracker) publish(out Output) {
	t.mu.Lock()
	t.latest = out
	t.mu.Unlock()
}

// Process runs one frame through the pipeline. Frames must arrive in
// capture order and keep the size of the first frame.
//
// On error the frame is skipped and no tracker state changes.
func (t *Tracker) Process(ctx context.Context, frame Frame) (Output, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	bounds := frame.Bounds()
	if bounds.Empty() {
		return Output{}, ErrEmptyFrame
	}
	if frame.Gray == nil || frame.Gray.Bounds() != bounds {
		f, err := NewFrame(frame.Color, frame.Timestamp)
		if err != nil {
			return Output{}, err
		}
		frame = f
	}
	if t.size != (image.Point{}) && bounds.Size() != t.size {
		return Output{}, fmt.Errorf("%w: got %v, want %v", ErrFrameSize, bounds.Size(), t.size)
	}

	roi := t.searchROI
	if roi.Empty() {
		roi = bounds
	}
	cands, err := t.detector.Detect(ctx, frame.Color, roi)
	if err != nil {
		return Output{}, fmt.Errorf("tracking: detect: %w", err)
	}
	cands = detection.Filter(cands, t.cfg.MinCandidateVotes)

	var timings Timings
	timings.Detect = time.Since(start)

	// Nothing above this point mutates the tracker.
	if t.size == (image.Point{}) {
		t.size = bounds.Size()
		t.reset()
	}
	t.frames++

	dt := 0.0
	if !t.lastStamp.IsZero() {
		dt = max(frame.Timestamp.Sub(t.lastStamp).Seconds(), 0)
	}
	t.lastStamp = frame.Timestamp

	prev := t.machine.state
	if t.machine.step(len(cands) > 0, t.filter.PositionCovNorm()) {
		t.logger.Info("track lost, resetting", "frame", t.frames, "trackId", t.trackID)
		t.reset()
	}
	state := t.machine.state
	if state != prev {
		if state == StateTrack && t.trackID == "" {
			t.trackID = uuid.NewString()
		}
		t.logger.Info("state changed", "from", prev, "to", state, "frame", t.frames, "trackId", t.trackID)
	}

	out := Output{
		Frame:      t.frames,
		Timestamp:  frame.Timestamp,
		FrameSize:  t.size,
		State:      state,
		NumFaces:   len(cands),
		Candidates: cands,
		Selected:   -1,
	}

	if state.Tracking() {
		t.estimate(frame, cands, dt, &out, &timings)
	} else {
		t.searchROI = bounds
	}

	out.TrackID = t.trackID
	out.Score = t.score
	out.SearchROI = t.searchROI
	out.CovNorm = t.filter.PositionCovNorm()
	if state.Tracking() {
		out.Uncertainty = t.filter.Uncertainty()
	}
	if t.cfg.Outputs.Has(OutputHistogram) {
		out.debug().Histogram = RenderHistogram(t.appearance.Histogram())
	}

	timings.Total = time.Since(start)
	out.Timings = timings
	t.publish(out)
	return out, nil
}

// estimate runs the filter, appearance and motion stages for a frame in
// TRACK or REJECT.
func (t *Tracker) estimate(frame Frame, cands []detection.Candidate, dt float64, out *Output, timings *Timings) {
	bounds := frame.Bounds()
	t.filter.Predict(dt)

	var matched *detection.Candidate
	if len(cands) > 0 {
		i, _ := SelectCandidate(t.filter, cands)
		c := cands[i]
		if err := t.filter.Correct(measurementOf(c), MeasurementNoise(c.Votes)); err != nil {
			t.logger.Warn("correction skipped", "frame", t.frames, "error", err)
		} else {
			matched = &cands[i]
			out.Selected = i
			t.score = c.Votes
		}
	}

	s := t.filter.State()
	out.Belief = beliefRect(s, bounds)
	t.searchROI = SearchROI(out.Belief, s[4], s[5], bounds)

	if t.cfg.SkinEnabled {
		skinStart := time.Now()
		if matched != nil {
			t.appearance.Update(frame.Color, samplingWindow(matched.Rect(), bounds))
		}
		if t.cfg.Outputs.Has(OutputSkin) {
			post := t.appearance.Posterior(frame.Color)
			out.debug().Skin = RenderProbability(post, bounds.Size())
		}
		timings.Skin = time.Since(skinStart)
	}

	flowStart := time.Now()
	res, err := t.motion.Score(frame.Gray, out.Belief, s[4], s[5])
	if err != nil {
		t.logger.Warn("gesture scoring failed", "frame", t.frames, "error", err)
	}
	out.FlowROI = res.ROI
	out.Regions = res.Regions
	out.FlowScores = res.Scores
	if t.cfg.Outputs.Has(OutputFlow) && res.Magnitude != nil {
		out.debug().Flow = RenderProbability(res.Magnitude, res.ROI.Size())
	}
	timings.Flow = time.Since(flowStart)
}

func (o *Output) debug() *DebugImages {
	if o.Debug == nil {
		o.Debug = &DebugImages{}
	}
	return o.Debug
}
