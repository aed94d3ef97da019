package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/protocol"
)

const (
	// HumanSubjectBase prefixes the per-node output subject.
	HumanSubjectBase = "human"
	// ControlSubject carries commands to the tracker.
	ControlSubject = "human.control"
)

// Command is a control request received over NATS.
type Command struct {
	Action string `json:"action"` // "reset"
}

type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	IsConnected() bool
	Close()
}

// NATS publishes human messages on core NATS. At control rates the stream
// is fire-and-forget, so JetStream is not used.
type NATS struct {
	nc      natsConn
	subject string
	logger  *slog.Logger
}

// NewNATS connects to url and publishes on human.<node>.
func NewNATS(url, node string, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("humantrack-"+node),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newNATS(nc, node, logger), nil
}

func newNATS(nc natsConn, node string, logger *slog.Logger) *NATS {
	logger = log.OrDefault(logger)
	return &NATS{
		nc:      nc,
		subject: fmt.Sprintf("%s.%s", HumanSubjectBase, node),
		logger:  logger.With("component", "nats"),
	}
}

// Name implements Publisher.
func (n *NATS) Name() string { return "nats" }

// Subject returns the output subject.
func (n *NATS) Subject() string { return n.subject }

// Publish implements Publisher.
func (n *NATS) Publish(_ context.Context, h protocol.HumanData) error {
	msg, err := protocol.NewHumanMessage(h)
	if err != nil {
		return err
	}
	payload, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("marshal human: %w", err)
	}
	if err := n.nc.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publish human: %w", err)
	}
	return nil
}

// OnCommand subscribes handler to control commands.
func (n *NATS) OnCommand(handler func(Command)) error {
	_, err := n.nc.Subscribe(ControlSubject, func(msg *nats.Msg) {
		cmd, err := ParseCommand(msg.Data)
		if err != nil {
			n.logger.Error("parse command", "error", err)
			return
		}
		n.logger.Info("received command", "action", cmd.Action)
		handler(cmd)
	})
	if err != nil {
		return fmt.Errorf("subscribe to control: %w", err)
	}
	return nil
}

// Ping reports whether the connection is up.
func (n *NATS) Ping() error {
	if !n.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close drops the connection.
func (n *NATS) Close() {
	n.nc.Close()
}
