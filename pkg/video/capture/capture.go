// Package capture reads frames from cameras, files and streams through
// OpenCV.
package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/video"
)

// Config selects and sizes an OpenCV capture.
type Config struct {
	// Target is a device index ("0"), a file path or a stream URL.
	Target string
	Width  int // Requested width, 0 keeps the device default
	Height int
	FPS    float64
}

// Source reads frames through OpenCV's VideoCapture.
type Source struct {
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	logger *slog.Logger

	// Files and streams are stamped with their own position so replays keep
	// their original timing.
	file  bool
	start time.Time

	mu     sync.Mutex
	closed bool
}

// Open opens a device, file or URL.
func Open(cfg Config, logger *slog.Logger) (*Source, error) {
	logger = log.OrDefault(logger)

	var (
		vc   *gocv.VideoCapture
		err  error
		file bool
	)
	if id, convErr := strconv.Atoi(cfg.Target); convErr == nil {
		vc, err = gocv.VideoCaptureDevice(id)
	} else {
		vc, err = gocv.VideoCaptureFile(cfg.Target)
		file = true
	}
	if err != nil {
		return nil, fmt.Errorf("video: open %q: %w", cfg.Target, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video: open %q: %w", cfg.Target, video.ErrNoFrame)
	}

	if !file {
		if cfg.Width > 0 && cfg.Height > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
			vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		}
		if cfg.FPS > 0 {
			vc.Set(gocv.VideoCaptureFPS, cfg.FPS)
		}
	}

	logger.Info("capture opened",
		"target", cfg.Target,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
		"fps", vc.Get(gocv.VideoCaptureFPS))

	return &Source{
		vc:     vc,
		mat:    gocv.NewMat(),
		logger: logger,
		file:   file,
		start:  time.Now(),
	}, nil
}

// Next implements video.Source.
func (s *Source) Next(ctx context.Context) (image.Image, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, time.Time{}, video.ErrClosed
	}

	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, time.Time{}, video.ErrNoFrame
	}
	ts := time.Now()
	if s.file {
		pos := s.vc.Get(gocv.VideoCapturePosMsec)
		ts = s.start.Add(time.Duration(pos * float64(time.Millisecond)))
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("video: convert frame: %w", err)
	}
	return img, ts, nil
}

// Close releases the capture device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	s.vc.Close()
	return nil
}
