package detection

import (
	"context"
	"image"
	"sync"
)

// Scripted replays a fixed sequence of per-frame results. After the script
// runs out it keeps returning the last entry. It is meant for tests and
// replay tooling.
type Scripted struct {
	mu     sync.Mutex
	frames [][]Candidate
	next   int
	rois   []image.Rectangle
	err    error
}

// NewScripted returns a detector that yields frames[i] on the i-th call.
func NewScripted(frames ...[]Candidate) *Scripted {
	return &Scripted{frames: frames}
}

// Repeat returns a detector that yields cands for n calls and nothing after.
func Repeat(n int, cands ...Candidate) *Scripted {
	frames := make([][]Candidate, n+1)
	for i := 0; i < n; i++ {
		frames[i] = cands
	}
	return NewScripted(frames...)
}

// FailWith makes every following call return err.
func (s *Scripted) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Detect returns the next scripted frame.
func (s *Scripted) Detect(ctx context.Context, img image.Image, roi image.Rectangle) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	s.rois = append(s.rois, roi)
	if len(s.frames) == 0 {
		return nil, nil
	}
	i := min(s.next, len(s.frames)-1)
	s.next++
	return append([]Candidate(nil), s.frames[i]...), nil
}

// ROIs returns the search windows seen so far.
func (s *Scripted) ROIs() []image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]image.Rectangle(nil), s.rois...)
}

// Close implements Detector.
func (s *Scripted) Close() error { return nil }
