package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/tracking/detection"
)

// yunetVoteScale maps a YuNet confidence in [0, 1] onto the cascade vote
// scale, where 40 votes means a noise-free measurement.
const yunetVoteScale = 40

// YuNetConfig holds YuNet detector configuration.
type YuNetConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	NMSThresh        float64 // Non-maximum suppression IoU threshold
	InputWidth       int     // Initial model input width
	InputHeight      int     // Initial model input height
}

// DefaultYuNetConfig returns production defaults for YuNet.
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   YuNetConfig
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a YuNet face detector using GoCV's built-in FaceDetectorYN.
func NewYuNet(cfg YuNetConfig, logger *slog.Logger) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	// Input size is updated per image
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	logger = log.OrDefault(logger)
	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		logger:   logger.With("component", "yunet"),
	}, nil
}

// Detect implements detection.Detector. Faces are returned in descending
// confidence order as produced by the network.
func (d *YuNetDetector) Detect(ctx context.Context, img image.Image, roi image.Rectangle) ([]detection.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	roi = roi.Intersect(img.Bounds())
	if roi.Empty() {
		return nil, nil
	}

	bgr, err := matFromImage(img, gocv.ColorRGBAToBGR)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	region := bgr.Region(roi.Sub(img.Bounds().Min))
	defer region.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(region.Cols(), region.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(region, &faces)

	var out []detection.Candidate
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		c := detection.Candidate{X: x, Y: y, W: w, H: h, Votes: ScoreToVotes(score)}
		out = append(out, c.Offset(roi.Min))
	}

	if len(out) > 0 {
		d.logger.Debug("faces found", "count", len(out))
	}
	return out, nil
}

// ScoreToVotes converts a detector confidence into a vote count.
func ScoreToVotes(score float64) int {
	return int(math.Round(math.Max(score, 0) * yunetVoteScale))
}

// Close releases the detector resources.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
