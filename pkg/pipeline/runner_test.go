package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-human/pkg/protocol"
	"github.com/teslashibe/go-human/pkg/tracking"
	"github.com/teslashibe/go-human/pkg/tracking/detection"
	"github.com/teslashibe/go-human/pkg/video"
)

var (
	t0   = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	face = detection.Candidate{X: 140, Y: 100, W: 40, H: 40, Votes: 20}
)

// fakeSource yields n blank frames 33ms apart, then either closes or
// blocks until cancelled.
type fakeSource struct {
	mu    sync.Mutex
	n     int
	next  int
	size  image.Point
	block bool
	gaps  map[int]error // frame index -> error returned instead
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, time.Time, error) {
	s.mu.Lock()
	i := s.next
	s.next++
	s.mu.Unlock()

	if err, ok := s.gaps[i]; ok {
		return nil, time.Time{}, err
	}
	if i >= s.n {
		if s.block {
			<-ctx.Done()
			return nil, time.Time{}, ctx.Err()
		}
		return nil, time.Time{}, video.ErrClosed
	}
	size := s.size
	if size == (image.Point{}) {
		size = image.Pt(320, 240)
	}
	return image.NewRGBA(image.Rectangle{Max: size}), t0.Add(time.Duration(i) * 33 * time.Millisecond), nil
}

func (s *fakeSource) Close() error { return nil }

type recorder struct {
	mu  sync.Mutex
	got []protocol.HumanData
	err error
}

func (r *recorder) Publish(_ context.Context, h protocol.HumanData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, h)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func newTracker(t *testing.T, det detection.Detector) *tracking.Tracker {
	t.Helper()
	tr, err := tracking.New(tracking.DefaultConfig(), det, nil)
	require.NoError(t, err)
	return tr
}

func TestRunner_ProcessesUntilSourceCloses(t *testing.T) {
	tr := newTracker(t, detection.Repeat(100, face))
	src := &fakeSource{n: 10}

	var states []tracking.State
	r := NewRunner(Config{}, src, tr, nil, nil)
	r.OnFrame = func(_ image.Image, out tracking.Output) { states = append(states, out.State) }

	err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceExhausted)

	require.Len(t, states, 10)
	assert.Equal(t, tracking.StateDetect, states[5])
	assert.Equal(t, tracking.StateTrack, states[6])
	assert.Equal(t, tracking.StateTrack, tr.Latest().State)
	assert.Equal(t, Stats{Frames: 10}, r.Stats())
}

func TestRunner_SkipsBadFrames(t *testing.T) {
	det := detection.Repeat(100, face)
	tr := newTracker(t, det)
	src := &fakeSource{n: 4, gaps: map[int]error{1: video.ErrNoFrame}}

	r := NewRunner(Config{MaxMissedFrames: 5}, src, tr, nil, nil)
	require.ErrorIs(t, r.Run(context.Background()), ErrSourceExhausted)

	st := r.Stats()
	assert.Equal(t, uint64(3), st.Frames)
	assert.Equal(t, uint64(1), st.Missed)

	// A detector fault skips the frame without touching the tracker
	before := tr.Latest()
	det.FailWith(errors.New("boom"))
	r = NewRunner(Config{}, &fakeSource{n: 2}, tr, nil, nil)
	require.ErrorIs(t, r.Run(context.Background()), ErrSourceExhausted)
	assert.Equal(t, uint64(2), r.Stats().Errors)
	assert.Equal(t, before.Frame, tr.Latest().Frame)
}

func TestRunner_GivesUpAfterMisses(t *testing.T) {
	gaps := map[int]error{}
	for i := 0; i < 10; i++ {
		gaps[i] = video.ErrNoFrame
	}
	r := NewRunner(Config{MaxMissedFrames: 3}, &fakeSource{n: 20, gaps: gaps}, newTracker(t, detection.NewScripted()), nil, nil)

	err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceExhausted)
	assert.ErrorIs(t, err, video.ErrNoFrame)
	assert.Equal(t, uint64(3), r.Stats().Missed)
}

func TestRunner_Reset(t *testing.T) {
	tr := newTracker(t, detection.Repeat(100, face))
	r := NewRunner(Config{}, &fakeSource{n: 8}, tr, nil, nil)

	var states []tracking.State
	r.OnFrame = func(_ image.Image, out tracking.Output) {
		states = append(states, out.State)
		if len(states) == 7 {
			r.Reset()
		}
	}
	require.ErrorIs(t, r.Run(context.Background()), ErrSourceExhausted)

	require.Len(t, states, 8)
	assert.Equal(t, tracking.StateTrack, states[6])
	// Reset before frame 8: the track starts over
	assert.Equal(t, tracking.StateDetect, states[7])
}

func TestRunner_PublishLoop(t *testing.T) {
	tr := newTracker(t, detection.Repeat(100, face))
	pub := &recorder{}
	r := NewRunner(Config{PublishRate: 200}, &fakeSource{n: 8, block: true}, tr, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, h := range pub.got {
		assert.Equal(t, "TRACK", h.State)
		assert.Equal(t, 20, h.Score)
		assert.NotEmpty(t, h.TrackID)
	}
	assert.GreaterOrEqual(t, r.Stats().Published, uint64(3))
}

func TestRunner_NothingPublishedWithoutTrack(t *testing.T) {
	tr := newTracker(t, detection.NewScripted())
	pub := &recorder{}
	r := NewRunner(Config{PublishRate: 500}, &fakeSource{n: 3, block: true}, tr, pub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 0, pub.count())
}
