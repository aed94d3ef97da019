// Package protocol defines the messages the tracker emits to dashboards and
// downstream consumers over WebSocket and NATS.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Tracker → consumer messages
	TypeHuman MessageType = "human" // Tracked subject
	TypeState MessageType = "state" // Tracker state change
	TypeFrame MessageType = "frame" // Debug image
	TypeLog   MessageType = "log"   // Log line

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Tracker → Consumer Message Types
// =============================================================================

// HumanData is the per-cycle control output for a tracked subject.
type HumanData struct {
	X int `json:"x"` // Belief rectangle, pixels
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`

	Score    int        `json:"score"`     // Detector votes of the last match
	NumFaces int        `json:"num_faces"` // Accepted candidates this frame
	Flow     [4]float64 `json:"flow"`      // TL, TR, BL, BR gesture scores

	State       string  `json:"state"` // "TRACK" or "REJECT"
	TrackID     string  `json:"track_id,omitempty"`
	Uncertainty float64 `json:"uncertainty"`

	FrameWidth  int    `json:"frame_width"`
	FrameHeight int    `json:"frame_height"`
	Frame       uint64 `json:"frame"`
	Timestamp   int64  `json:"ts"` // Frame capture time, Unix milliseconds
}

// StateData announces a tracker state transition
type StateData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TrackID string `json:"track_id,omitempty"`
	Frame   uint64 `json:"frame"`
}

// FrameData contains a debug image
type FrameData struct {
	Kind    string `json:"kind"` // "overlay", "skin", "histogram", "flow"
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// LogData contains a single log record
type LogData struct {
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
