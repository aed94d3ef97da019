package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/tracking/detection"
)

// Haar cascade flags, as in OpenCV's objdetect module.
const (
	cascadeDoCannyPruning = 1
	cascadeScaleImage     = 2
)

// CascadeConfig holds Haar cascade detector configuration.
type CascadeConfig struct {
	Path         string      // Path to the cascade XML
	ScaleFactor  float64     // Image pyramid step
	MinNeighbors int         // Clusters with this many hits or fewer are dropped
	MinSize      image.Point // Smallest face searched
	MaxSize      image.Point // Largest face searched
}

// DefaultCascadeConfig returns defaults for frontal faces on a small
// airborne camera.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		Path:         "models/haarcascade_frontalface_alt.xml",
		ScaleFactor:  1.2,
		MinNeighbors: 0,
		MinSize:      image.Pt(20, 25),
		MaxSize:      image.Pt(100, 100),
	}
}

// CascadeDetector finds faces with an OpenCV Haar cascade. Raw hits are
// grouped in Go so every candidate carries its neighbor vote count.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	config     CascadeConfig
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewCascade loads the cascade at cfg.Path.
func NewCascade(cfg CascadeConfig, logger *slog.Logger) (*CascadeDetector, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.Path)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.Path) {
		classifier.Close()
		return nil, fmt.Errorf("vision: load cascade %s", cfg.Path)
	}

	logger = log.OrDefault(logger)
	return &CascadeDetector{
		classifier: classifier,
		config:     cfg,
		logger:     logger.With("component", "cascade"),
	}, nil
}

// Detect implements detection.Detector.
func (d *CascadeDetector) Detect(ctx context.Context, img image.Image, roi image.Rectangle) ([]detection.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	roi = roi.Intersect(img.Bounds())
	if roi.Empty() {
		return nil, nil
	}

	gray, err := matFromImage(img, gocv.ColorRGBAToGray)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	region := gray.Region(roi.Sub(img.Bounds().Min))
	defer region.Close()

	d.mu.Lock()
	hits := d.classifier.DetectMultiScaleWithParams(
		region,
		d.config.ScaleFactor,
		0, // raw hits, grouped below
		cascadeDoCannyPruning|cascadeScaleImage,
		d.config.MinSize,
		d.config.MaxSize,
	)
	d.mu.Unlock()

	grouped := detection.GroupRectangles(hits, d.config.MinNeighbors, detection.DefaultGroupEps)
	for i := range grouped {
		grouped[i] = grouped[i].Offset(roi.Min)
	}

	if len(grouped) > 0 {
		d.logger.Debug("faces found", "hits", len(hits), "candidates", len(grouped))
	}
	return grouped, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classifier.Close()
	return nil
}
