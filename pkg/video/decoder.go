package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"sync"
	"time"
)

var jpegSOI = []byte{0xFF, 0xD8, 0xFF}

// Decoder turns an H.264 Annex-B stream into its latest picture by piping
// it through ffmpeg.
type Decoder struct {
	timeout time.Duration

	// Decode rate limiting
	lastDecode  time.Time
	minInterval time.Duration
	mu          sync.Mutex
}

// NewDecoder creates a decoder. decodeInterval caps how often ffmpeg runs
// (e.g., 50ms = 20 FPS max).
func NewDecoder(decodeInterval, timeout time.Duration) *Decoder {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Decoder{
		minInterval: decodeInterval,
		timeout:     timeout,
	}
}

// Decode returns the last picture in stream. ErrNoFrame means the call was
// rate limited or ffmpeg produced nothing usable.
func (d *Decoder) Decode(ctx context.Context, stream []byte) (image.Image, error) {
	if len(stream) < 100 {
		return nil, ErrNoFrame
	}

	d.mu.Lock()
	if time.Since(d.lastDecode) < d.minInterval {
		d.mu.Unlock()
		return nil, ErrNoFrame
	}
	d.lastDecode = time.Now()
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-f", "h264", // Input format
		"-i", "pipe:0", // Read from stdin
		"-f", "image2pipe", // Output as pipe
		"-vcodec", "mjpeg", // Output as JPEG
		"-q:v", "3", // Quality (1-31, lower is better)
		"pipe:1", // Write to stdout
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stream)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// ffmpeg exits non-zero on a truncated tail but still emits the pictures
	// before it
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("video: ffmpeg: %w", ctx.Err())
	}

	jpg := lastJPEG(stdout.Bytes())
	if jpg == nil {
		if runErr != nil {
			return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrNoFrame, runErr, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, ErrNoFrame
	}

	img, err := jpeg.Decode(bytes.NewReader(jpg))
	if err != nil {
		return nil, fmt.Errorf("video: decode jpeg: %w", err)
	}
	if isBlankFrame(img) {
		return nil, ErrNoFrame
	}
	return img, nil
}

// lastJPEG returns the last JPEG of an MJPEG stream.
func lastJPEG(data []byte) []byte {
	i := bytes.LastIndex(data, jpegSOI)
	if i < 0 || len(data)-i < 4 {
		return nil
	}
	return data[i:]
}

// isBlankFrame checks if a decoded picture is likely gray/corrupt, as
// decoders emit before the first keyframe settles.
func isBlankFrame(img image.Image) bool {
	bounds := img.Bounds()
	if bounds.Dx() < 100 || bounds.Dy() < 100 {
		return true
	}

	// Sample pixels to check variance
	var rSum, gSum, bSum int
	samples := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += bounds.Dy() / 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += bounds.Dx() / 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(b >> 8)
			samples++
		}
	}

	avgR := rSum / samples
	avgG := gSum / samples
	avgB := bSum / samples

	// Gray frames have R ≈ G ≈ B with low values
	if avgR < 30 && avgG < 30 && avgB < 30 {
		return true
	}

	// Check for uniform gray (R = G = B)
	colorDiff := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return colorDiff < 15 && avgR > 100 && avgR < 150
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
