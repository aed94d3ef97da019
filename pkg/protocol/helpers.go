package protocol

import (
	"encoding/base64"

	"github.com/teslashibe/go-human/pkg/tracking"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// HumanFromOutput converts a tracker output into its published form.
func HumanFromOutput(out tracking.Output) HumanData {
	b := out.Belief
	return HumanData{
		X:           b.Min.X,
		Y:           b.Min.Y,
		W:           b.Dx(),
		H:           b.Dy(),
		Score:       out.Score,
		NumFaces:    out.NumFaces,
		Flow:        out.FlowScores,
		State:       out.State.String(),
		TrackID:     out.TrackID,
		Uncertainty: out.Uncertainty,
		FrameWidth:  out.FrameSize.X,
		FrameHeight: out.FrameSize.Y,
		Frame:       out.Frame,
		Timestamp:   out.Timestamp.UnixMilli(),
	}
}

// NewHumanMessage creates a human message
func NewHumanMessage(h HumanData) (*Message, error) {
	return NewMessage(TypeHuman, h)
}

// NewStateMessage creates a state transition message
func NewStateMessage(from, to tracking.State, trackID string, frame uint64) (*Message, error) {
	return NewMessage(TypeState, StateData{
		From:    from.String(),
		To:      to.String(),
		TrackID: trackID,
		Frame:   frame,
	})
}

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(kind string, width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Kind:    kind,
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewLogMessage creates a log message
func NewLogMessage(level, msg string, attrs map[string]any) (*Message, error) {
	return NewMessage(TypeLog, LogData{
		Level:   level,
		Message: msg,
		Attrs:   attrs,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string, ts int64) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: ts,
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetHumanData extracts human data from a message
func (m *Message) GetHumanData() (*HumanData, error) {
	var data HumanData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetLogData extracts log data from a message
func (m *Message) GetLogData() (*LogData, error) {
	var data LogData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
