// Package detection defines face candidates and the detector boundary used
// by the tracker.
package detection

import (
	"context"
	"image"
)

// Candidate is a single-frame detector proposal in full-frame pixels.
type Candidate struct {
	X, Y  int // Top-left corner
	W, H  int // Size
	Votes int // Neighbor votes (higher = more confident)
}

// Rect returns the candidate as an image rectangle.
func (c Candidate) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.W, c.Y+c.H)
}

// Center returns the center point of the candidate.
func (c Candidate) Center() (x, y float64) {
	return float64(c.X) + float64(c.W)/2, float64(c.Y) + float64(c.H)/2
}

// Offset returns the candidate translated by p. Detectors use it to map
// hits inside a search window back to frame coordinates.
func (c Candidate) Offset(p image.Point) Candidate {
	c.X += p.X
	c.Y += p.Y
	return c
}

// FromRect builds a candidate from a rectangle and vote count.
func FromRect(r image.Rectangle, votes int) Candidate {
	return Candidate{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy(), Votes: votes}
}

// Detector is the interface for face detection backends.
type Detector interface {
	// Detect finds faces inside roi and returns them in full-frame
	// coordinates. Candidate order is stable for a given input.
	Detect(ctx context.Context, img image.Image, roi image.Rectangle) ([]Candidate, error)

	// Close releases resources
	Close() error
}

// Filter returns the candidates with more than minVotes votes, keeping
// order. The threshold matches GroupRectangles and OpenCV's minNeighbors.
func Filter(cands []Candidate, minVotes int) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Votes > minVotes {
			out = append(out, c)
		}
	}
	return out
}
