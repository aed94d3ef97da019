package vision

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-human/pkg/protocol"
	"github.com/teslashibe/go-human/pkg/tracking"
)

var (
	candidateColors = []color.RGBA{
		{0, 0, 255, 0},
		{0, 128, 255, 0},
		{0, 255, 255, 0},
		{0, 255, 0, 0},
		{255, 128, 0, 0},
		{255, 255, 0, 0},
		{255, 0, 0, 0},
		{255, 0, 255, 0},
	}

	red     = color.RGBA{255, 0, 0, 0}
	yellow  = color.RGBA{255, 255, 0, 0}
	magenta = color.RGBA{255, 0, 255, 0}
	green   = color.RGBA{0, 255, 0, 0}
	black   = color.RGBA{0, 0, 0, 0}
	white   = color.RGBA{255, 255, 255, 0}
)

// RenderOverlay draws the tracker's view of a frame: candidates with their
// votes, the belief with its uncertainty rings, the search window, the
// gesture regions with their scores and the state. It returns a JPEG.
func RenderOverlay(frame image.Image, out tracking.Output) ([]byte, error) {
	img, err := matFromImage(frame, gocv.ColorRGBAToBGR)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	for i, c := range out.Candidates {
		col := candidateColors[i%len(candidateColors)]
		gocv.Rectangle(&img, c.Rect(), col, 1)
		cx, cy := c.Center()
		gocv.PutText(&img, fmt.Sprintf("   N:%d S:%dx%d", c.Votes, c.W, c.H),
			image.Pt(int(cx), int(cy)), gocv.FontHersheyPlain, 1, col, 1)
	}

	if out.Valid() {
		b := out.Belief
		center := image.Pt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
		radius := math.Hypot(float64(b.Dx()), float64(b.Dy())) / 2
		unc := out.Uncertainty

		gocv.Circle(&img, center, int(radius), red, 1)
		gocv.Circle(&img, center, int(math.Max(radius-unc, 0)), yellow, 1)
		gocv.Circle(&img, center, int(radius+unc), magenta, 1)
		gocv.PutText(&img, fmt.Sprintf("P:%.3g S:%dx%d", unc, b.Dx(), b.Dy()),
			center.Add(image.Pt(0, 50)), gocv.FontHersheyPlain, 1.5, red, 1)

		for i, r := range out.Regions {
			if r.Empty() {
				continue
			}
			gocv.Rectangle(&img, r, green, 1)
			gocv.PutText(&img, fmt.Sprintf("%.0f", out.FlowScores[i]),
				image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2), gocv.FontHersheyPlain, 1, green, 1)
		}
	}

	gocv.Rectangle(&img, out.SearchROI, black, 1)

	label := fmt.Sprintf("%s (%.1fms)", out.State, float64(out.Timings.Total.Microseconds())/1000)
	gocv.PutText(&img, label, image.Pt(10, img.Rows()-10), gocv.FontHersheyPlain, 1.5, white, 1)

	return encodeJPEG(img)
}

// DebugFrames encodes the debug products selected by outputs as JPEG
// frames: the overlay and whichever debug images the tracker produced.
func DebugFrames(img image.Image, out tracking.Output, outputs tracking.Outputs) ([]protocol.FrameData, error) {
	var frames []protocol.FrameData
	add := func(kind string, size image.Point, data []byte) {
		frames = append(frames, protocol.FrameData{
			Kind:    kind,
			Width:   size.X,
			Height:  size.Y,
			Format:  "jpeg",
			Data:    base64.StdEncoding.EncodeToString(data),
			FrameID: out.Frame,
		})
	}

	if outputs.Has(tracking.OutputOverlay) {
		data, err := RenderOverlay(img, out)
		if err != nil {
			return nil, err
		}
		add(tracking.OutputOverlay.String(), img.Bounds().Size(), data)
	}

	if out.Debug == nil {
		return frames, nil
	}
	for _, d := range []struct {
		kind tracking.Outputs
		img  *image.Gray
	}{
		{tracking.OutputSkin, out.Debug.Skin},
		{tracking.OutputHistogram, out.Debug.Histogram},
		{tracking.OutputFlow, out.Debug.Flow},
	} {
		if d.img == nil {
			continue
		}
		data, err := EncodeGray(d.img)
		if err != nil {
			return nil, err
		}
		add(d.kind.String(), d.img.Bounds().Size(), data)
	}
	return frames, nil
}

// EncodeGray encodes a grayscale debug image as JPEG.
func EncodeGray(img *image.Gray) ([]byte, error) {
	m, err := matFromGray(img)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return encodeJPEG(m)
}

func encodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("vision: encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close
	return append([]byte(nil), buf.GetBytes()...), nil
}
