package publish

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/protocol"
)

// Log writes each message as a structured debug record.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a log publisher.
func NewLog(logger *slog.Logger) *Log {
	logger = log.OrDefault(logger)
	return &Log{logger: logger.With("component", "publish")}
}

// Name implements Publisher.
func (l *Log) Name() string { return "log" }

// Publish implements Publisher.
func (l *Log) Publish(ctx context.Context, h protocol.HumanData) error {
	l.logger.DebugContext(ctx, "human",
		"state", h.State,
		"track_id", h.TrackID,
		"x", h.X, "y", h.Y, "w", h.W, "h", h.H,
		"score", h.Score,
		"faces", h.NumFaces,
		"flow", h.Flow,
		"uncertainty", h.Uncertainty)
	return nil
}
