// Package pipeline drives a tracker from a frame source and publishes its
// outputs at a fixed rate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/internal/observability"
	"github.com/teslashibe/go-human/pkg/protocol"
	"github.com/teslashibe/go-human/pkg/tracking"
	"github.com/teslashibe/go-human/pkg/video"
)

// ErrSourceExhausted is returned by Run when the source stops producing
// frames.
var ErrSourceExhausted = errors.New("pipeline: source exhausted")

// Publisher receives the tracked subject while a track is held.
type Publisher interface {
	Publish(ctx context.Context, h protocol.HumanData) error
}

// Config configures a Runner.
type Config struct {
	// FrameBudget is the processing time above which a frame counts as an
	// overrun. Zero disables the check.
	FrameBudget time.Duration
	// PublishRate is the publish loop frequency in Hz. Zero disables it.
	PublishRate float64
	// MaxMissedFrames is how many consecutive source misses end the run.
	MaxMissedFrames int
}

// DefaultConfig returns a 10 fps budget and a 50 Hz publish loop.
func DefaultConfig() Config {
	return Config{
		FrameBudget:     100 * time.Millisecond,
		PublishRate:     50,
		MaxMissedFrames: 100,
	}
}

// Stats are the runner counters.
type Stats struct {
	Frames    uint64 `json:"frames"`
	Errors    uint64 `json:"errors"`
	Missed    uint64 `json:"missed"`
	Overruns  uint64 `json:"overruns"`
	Published uint64 `json:"published"`
	Late      uint64 `json:"late_ticks"`
}

// Runner owns the frame loop: it is the only caller of Process.
type Runner struct {
	config    Config
	source    video.Source
	tracker   *tracking.Tracker
	publisher Publisher
	logger    *slog.Logger

	// OnFrame is called after each processed frame with the source image.
	OnFrame func(img image.Image, out tracking.Output)

	resetRequested atomic.Bool

	frames, failed, missed, overruns, published, late atomic.Uint64
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(cfg Config, src video.Source, t *tracking.Tracker, pub Publisher, logger *slog.Logger) *Runner {
	logger = log.OrDefault(logger)
	return &Runner{
		config:    cfg,
		source:    src,
		tracker:   t,
		publisher: pub,
		logger:    logger.With("component", "pipeline"),
	}
}

// Reset asks the frame loop to reset the tracker before the next frame.
// Safe to call from any goroutine.
func (r *Runner) Reset() {
	r.resetRequested.Store(true)
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Frames:    r.frames.Load(),
		Errors:    r.failed.Load(),
		Missed:    r.missed.Load(),
		Overruns:  r.overruns.Load(),
		Published: r.published.Load(),
		Late:      r.late.Load(),
	}
}

// Run processes frames until ctx is done or the source gives out. A done
// context is not an error.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if r.publisher != nil && r.config.PublishRate > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.publishLoop(ctx)
		}()
	}

	err := r.frameLoop(ctx)
	cancel()
	wg.Wait()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (r *Runner) frameLoop(ctx context.Context) error {
	missed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, ts, err := r.source.Next(ctx)
		switch {
		case err == nil:
			missed = 0
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, video.ErrClosed):
			return ErrSourceExhausted
		default:
			missed++
			r.missed.Add(1)
			observability.FramesProcessed.WithLabelValues("missed").Inc()
			if r.config.MaxMissedFrames > 0 && missed >= r.config.MaxMissedFrames {
				return fmt.Errorf("%w: %d consecutive misses: %w", ErrSourceExhausted, missed, err)
			}
			r.logger.Debug("no frame", "error", err)
			continue
		}

		if r.resetRequested.Swap(false) {
			r.tracker.Reset()
			r.logger.Info("tracker reset")
		}

		r.step(ctx, img, ts)
	}
}

// step runs one frame through the tracker and accounts for it.
func (r *Runner) step(ctx context.Context, img image.Image, ts time.Time) {
	start := time.Now()
	prev := r.tracker.Latest().State

	frame, err := tracking.NewFrame(img, ts)
	var out tracking.Output
	if err == nil {
		out, err = r.tracker.Process(ctx, frame)
	}
	elapsed := time.Since(start)

	if err != nil {
		r.failed.Add(1)
		observability.FramesProcessed.WithLabelValues("error").Inc()
		r.logger.Warn("frame skipped", "error", err)
		return
	}

	r.frames.Add(1)
	observability.FramesProcessed.WithLabelValues("ok").Inc()
	observability.FrameDuration.Observe(elapsed.Seconds())
	observability.StageDuration.WithLabelValues("detect").Observe(out.Timings.Detect.Seconds())
	if out.Timings.Skin > 0 {
		observability.StageDuration.WithLabelValues("skin").Observe(out.Timings.Skin.Seconds())
	}
	if out.Timings.Flow > 0 {
		observability.StageDuration.WithLabelValues("flow").Observe(out.Timings.Flow.Seconds())
	}
	observability.FacesDetected.Add(float64(out.NumFaces))
	observability.TrackerState.Set(float64(out.State))
	if out.State != prev {
		observability.StateTransitions.WithLabelValues(out.State.String()).Inc()
	}
	for i, name := range regionNames {
		observability.FlowScore.WithLabelValues(name).Set(out.FlowScores[i])
	}

	if r.config.FrameBudget > 0 && elapsed > r.config.FrameBudget {
		r.overruns.Add(1)
		observability.Overruns.WithLabelValues("frame").Inc()
		r.logger.Warn("frame took too long",
			"elapsed", elapsed,
			"budget", r.config.FrameBudget,
			"detect", out.Timings.Detect,
			"skin", out.Timings.Skin,
			"flow", out.Timings.Flow)
	}

	if r.OnFrame != nil {
		r.OnFrame(img, out)
	}
}

var regionNames = [tracking.NumRegions]string{"top_left", "top_right", "bottom_left", "bottom_right"}

// publishLoop sends the latest valid output at the configured rate. It
// only reads the tracker.
func (r *Runner) publishLoop(ctx context.Context) {
	period := time.Duration(float64(time.Second) / r.config.PublishRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if gap := now.Sub(last); gap > 2*period {
				r.late.Add(1)
				observability.Overruns.WithLabelValues("publish").Inc()
				r.logger.Warn("publish loop running late", "gap", gap, "period", period)
			}
			last = now
			r.publishLatest(ctx)
		}
	}
}

func (r *Runner) publishLatest(ctx context.Context) {
	out := r.tracker.Latest()
	if !out.Valid() {
		return
	}
	if err := r.publisher.Publish(ctx, protocol.HumanFromOutput(out)); err != nil {
		r.logger.Warn("publish failed", "error", err)
		return
	}
	r.published.Add(1)
}
