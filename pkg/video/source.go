// Package video provides frame sources for the tracker. This package holds
// the robot's WebRTC stream; OpenCV capture lives in video/capture.
package video

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrNoFrame is returned when a source has no frame to deliver, e.g. at
	// the end of a file or after a failed grab.
	ErrNoFrame = errors.New("video: no frame")

	// ErrClosed is returned by sources used after Close.
	ErrClosed = errors.New("video: source closed")
)

// Source delivers frames with their capture timestamps.
type Source interface {
	// Next blocks until a frame is available or ctx is done.
	Next(ctx context.Context) (image.Image, time.Time, error)
	Close() error
}
