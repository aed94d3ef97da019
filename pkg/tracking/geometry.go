package tracking

import "image"

// Gesture region indices, from the platform's point of view with the
// subject's face at the center.
const (
	RegionTopLeft = iota
	RegionTopRight
	RegionBottomLeft
	RegionBottomRight
	NumRegions
)

// scoredRegions is the number of gesture regions that receive a flow score.
// The bottom two are computed for reporting only.
const scoredRegions = 2

// rectXYWH builds a rectangle from origin and size. Unlike image.Rect it
// does not canonicalize, so a negative size yields an empty rectangle.
func rectXYWH(x, y, w, h int) image.Rectangle {
	return image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x+w, y+h)}
}

// beliefRect derives the reported belief from the filter state. The origin
// is truncated and kept non-negative; the size is cut so the rectangle
// does not leave the frame.
func beliefRect(state [stateDim]float64, bounds image.Rectangle) image.Rectangle {
	x := max(int(state[0]), 0)
	y := max(int(state[1]), 0)
	w := max(min(int(state[4]), bounds.Dx()-x), 0)
	h := max(min(int(state[5]), bounds.Dy()-y), 0)
	return rectXYWH(x, y, w, h)
}

// center returns the integer center of r.
func center(r image.Rectangle) image.Point {
	return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2)
}

// aroundCenter returns the rectangle spanning left/right/up/down pixels
// from c, clipped to bounds.
func aroundCenter(c image.Point, left, up, right, down float64, bounds image.Rectangle) image.Rectangle {
	r := image.Rectangle{
		Min: image.Pt(int(float64(c.X)-left), int(float64(c.Y)-up)),
		Max: image.Pt(int(float64(c.X)+right), int(float64(c.Y)+down)),
	}
	return r.Intersect(bounds)
}

// SearchROI returns the detector search window for the next frame: the
// belief center extended by twice the estimated width and height in every
// direction. An empty result falls back to the full frame.
func SearchROI(belief image.Rectangle, w, h float64, bounds image.Rectangle) image.Rectangle {
	r := aroundCenter(center(belief), 2*w, 2*h, 2*w, 2*h, bounds)
	if r.Empty() {
		return bounds
	}
	return r
}

// FlowROI returns the area over which optical flow is computed: four
// estimated widths to each side, three heights above the belief center
// and two below.
func FlowROI(belief image.Rectangle, w, h float64, bounds image.Rectangle) image.Rectangle {
	return aroundCenter(center(belief), 4*w, 3*h, 4*w, 2*h, bounds)
}

// GestureRegions splits the flow ROI into four quadrants around the
// belief. The top pair spans from the ROI top to one and a half belief
// heights below the belief center; the bottom pair starts one belief
// height further down and runs to the ROI bottom.
func GestureRegions(flowROI, belief image.Rectangle) [NumRegions]image.Rectangle {
	c := center(belief)
	bh := belief.Dy()

	topH := c.Y - flowROI.Min.Y + int(1.5*float64(bh))
	leftW := c.X - flowROI.Min.X
	rightW := flowROI.Max.X - c.X
	botY := flowROI.Min.Y + topH + bh
	botH := flowROI.Max.Y - botY

	var regions [NumRegions]image.Rectangle
	regions[RegionTopLeft] = rectXYWH(flowROI.Min.X, flowROI.Min.Y, leftW, topH)
	regions[RegionTopRight] = rectXYWH(c.X, flowROI.Min.Y, rightW, topH)
	regions[RegionBottomLeft] = rectXYWH(flowROI.Min.X, botY, leftW, botH)
	regions[RegionBottomRight] = rectXYWH(c.X, botY, rightW, botH)
	return regions
}

// samplingWindow is the part of a matched face used to sample skin color:
// the middle half horizontally, skipping the top tenth.
func samplingWindow(face image.Rectangle, bounds image.Rectangle) image.Rectangle {
	w, h := float64(face.Dx()), float64(face.Dy())
	x := float64(face.Min.X) + 0.25*w
	y := float64(face.Min.Y) + 0.10*h
	return rectXYWH(int(x), int(y), int(0.5*w), int(0.9*h)).Intersect(bounds)
}
