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

// cocoPerson is the COCO class index of "person".
const cocoPerson = 0

// YOLOConfig holds YOLO person detector configuration.
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultYOLOConfig returns production defaults for YOLOv8n.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// PersonDetector finds people with YOLOv8 and reports the expected head
// area of each as a face candidate. It keeps a subject trackable when the
// face is too small or turned away for the face detectors.
type PersonDetector struct {
	net       gocv.Net
	config    YOLOConfig
	logger    *slog.Logger
	mu        sync.Mutex
	inputSize image.Point
}

// NewPersonDetector loads the YOLO model at cfg.ModelPath.
func NewPersonDetector(cfg YOLOConfig, logger *slog.Logger) (*PersonDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("vision: load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	logger = log.OrDefault(logger)
	return &PersonDetector{
		net:       net,
		config:    cfg,
		logger:    logger.With("component", "yolo"),
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect implements detection.Detector.
func (d *PersonDetector) Detect(ctx context.Context, img image.Image, roi image.Rectangle) ([]detection.Candidate, error) {
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

	blob := gocv.BlobFromImage(region, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	boxes, scores := d.parsePeople(output, float32(region.Cols()), float32(region.Rows()))
	if len(boxes) == 0 {
		return nil, nil
	}

	var out []detection.Candidate
	for _, idx := range gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh) {
		head := HeadRegion(boxes[idx])
		out = append(out, detection.FromRect(head, ScoreToVotes(float64(scores[idx]))).Offset(roi.Min))
	}

	if len(out) > 0 {
		d.logger.Debug("people found", "count", len(out))
	}
	return out, nil
}

// parsePeople extracts person boxes from a YOLOv8 output tensor of shape
// [1, 84, N]: 4 box values (center x, center y, w, h) then 80 class scores.
func (d *PersonDetector) parsePeople(output gocv.Mat, imgW, imgH float32) ([]image.Rectangle, []float32) {
	rows := output.Cols() // detections
	cols := output.Rows() // 4 + classes

	data, err := output.DataPtrFloat32()
	if err != nil {
		d.logger.Warn("unreadable YOLO output", "error", err)
		return nil, nil
	}

	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i < rows; i++ {
		best, bestClass := float32(0), -1
		for c := 4; c < cols; c++ {
			if s := data[c*rows+i]; s > best {
				best, bestClass = s, c-4
			}
		}
		if bestClass != cocoPerson || best < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[0*rows+i], data[1*rows+i]
		w, h := data[2*rows+i], data[3*rows+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, best)
	}
	return boxes, scores
}

// HeadRegion estimates where the head sits inside a person box: the
// middle 40% horizontally and the top fifth vertically.
func HeadRegion(person image.Rectangle) image.Rectangle {
	w, h := person.Dx(), person.Dy()
	x := person.Min.X + w*3/10
	return image.Rect(x, person.Min.Y, x+w*4/10, person.Min.Y+h/5)
}

// Close releases the detector resources.
func (d *PersonDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}
