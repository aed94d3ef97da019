package publish

import (
	"context"

	"github.com/teslashibe/go-human/pkg/hub"
	"github.com/teslashibe/go-human/pkg/protocol"
)

// Hub broadcasts messages to websocket clients.
type Hub struct {
	hub *hub.Hub
}

// NewHub wraps a websocket hub.
func NewHub(h *hub.Hub) *Hub {
	return &Hub{hub: h}
}

// Name implements Publisher.
func (h *Hub) Name() string { return "web" }

// Publish implements Publisher. Clients that are not connected miss the
// message; the hub never blocks.
func (h *Hub) Publish(_ context.Context, data protocol.HumanData) error {
	if h.hub.ClientCount() == 0 {
		return nil
	}
	msg, err := protocol.NewHumanMessage(data)
	if err != nil {
		return err
	}
	return h.hub.BroadcastMessage(msg)
}
