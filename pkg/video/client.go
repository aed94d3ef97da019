package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-human/internal/log"
)

// ClientConfig configures the WebRTC source.
type ClientConfig struct {
	// SignallingURL of the GStreamer webrtcsink signalling server,
	// e.g. ws://robot.local:8443.
	SignallingURL string
	// Producer is the meta name the robot's producer advertises.
	Producer string
	// DecodeInterval caps the decode rate.
	DecodeInterval time.Duration
	// ConnectTimeout bounds the wait for the first video track.
	ConnectTimeout time.Duration
}

// DefaultClientConfig returns settings for a robot at host.
func DefaultClientConfig(host string) ClientConfig {
	return ClientConfig{
		SignallingURL:  fmt.Sprintf("ws://%s:8443", host),
		Producer:       "reachymini",
		DecodeInterval: 50 * time.Millisecond,
		ConnectTimeout: 15 * time.Second,
	}
}

type frame struct {
	img image.Image
	ts  time.Time
}

// Client connects to a WebRTC video stream via GStreamer signalling and
// implements Source.
type Client struct {
	config  ClientConfig
	logger  *slog.Logger
	decoder *Decoder

	ws      *websocket.Conn
	pc      *webrtc.PeerConnection
	wsMutex sync.Mutex

	myPeerID   string
	producerID string
	sessionMu  sync.RWMutex
	sessionID  string

	trackReady chan struct{}
	frames     chan frame

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new WebRTC video client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	logger = log.OrDefault(logger)
	return &Client{
		config:     cfg,
		logger:     logger.With("component", "webrtc"),
		decoder:    NewDecoder(cfg.DecodeInterval, 0),
		trackReady: make(chan struct{}, 1),
		frames:     make(chan frame, 1),
		done:       make(chan struct{}),
	}
}

// Connect establishes the WebRTC connection and waits for the video track.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("connecting to signalling server", "url", c.config.SignallingURL)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	var err error
	c.ws, _, err = dialer.DialContext(ctx, c.config.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}

	if err := c.waitForWelcome(); err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	c.logger.Debug("got peer id", "peer", c.myPeerID)

	if err := c.findProducer(); err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}
	c.logger.Debug("found producer", "producer", c.producerID)

	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}

	if err := c.startSession(); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}

	go c.handleSignalling()

	timeout := c.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	select {
	case <-c.trackReady:
		c.logger.Info("video connected")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return errors.New("timeout waiting for video")
	}
}

func (c *Client) waitForWelcome() error {
	c.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := c.ws.ReadMessage()
	c.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	c.myPeerID = welcome.PeerID
	return nil
}

func (c *Client) findProducer() error {
	if err := c.writeJSON(map[string]string{"type": "list"}); err != nil {
		return err
	}

	c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.ws.ReadMessage()
	c.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	id, err := producerFromList(msg, c.config.Producer)
	if err != nil {
		return err
	}
	c.producerID = id
	return nil
}

// producerFromList picks the producer advertising name from a list reply.
func producerFromList(msg []byte, name string) (string, error) {
	var listResp struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(msg, &listResp); err != nil {
		return "", err
	}

	for _, p := range listResp.Producers {
		if p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%s producer not found in %d producers", name, len(listResp.Producers))
}

func (c *Client) createPeerConnection() error {
	var err error
	c.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}

	// We want to receive video
	if _, err = c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.handleVideoTrack(track)
		}
	})

	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICECandidate(candidate)
		}
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Info("connection state", "state", state.String())
	})

	return nil
}

func (c *Client) startSession() error {
	return c.writeJSON(map[string]string{
		"type":   "startSession",
		"peerId": c.producerID,
	})
}

func (c *Client) handleSignalling() {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("signalling error", "error", err)
			}
			return
		}

		var baseMsg struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg, &baseMsg); err != nil {
			c.logger.Debug("bad signalling message", "error", err)
			continue
		}

		switch baseMsg.Type {
		case "sessionStarted":
			c.sessionMu.Lock()
			c.sessionID = baseMsg.SessionID
			c.sessionMu.Unlock()

		case "peer":
			if err := c.handlePeerMessage(msg); err != nil {
				c.logger.Warn("peer message", "error", err)
			}

		case "endSession":
			c.logger.Info("session ended by producer")
			return
		}
	}
}

type peerMessage struct {
	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp"`
	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice"`
}

func (c *Client) handlePeerMessage(msg []byte) error {
	var peerMsg peerMessage
	if err := json.Unmarshal(msg, &peerMsg); err != nil {
		return err
	}

	if sdp := peerMsg.SDP; sdp != nil && sdp.Type == "offer" {
		offer := webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sdp.SDP,
		}
		if err := c.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}

		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		if err := c.sendSDP(answer); err != nil {
			return fmt.Errorf("send answer: %w", err)
		}
	}

	if ice := peerMsg.ICE; ice != nil {
		return c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     ice.Candidate,
			SDPMid:        ice.SDPMid,
			SDPMLineIndex: ice.SDPMLineIndex,
		})
	}
	return nil
}

func (c *Client) session() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

func (c *Client) sendSDP(sdp webrtc.SessionDescription) error {
	return c.writeJSON(map[string]any{
		"type":      "peer",
		"sessionId": c.session(),
		"sdp": map[string]string{
			"type": sdp.Type.String(),
			"sdp":  sdp.SDP,
		},
	})
}

func (c *Client) sendICECandidate(candidate *webrtc.ICECandidate) {
	session := c.session()
	if session == "" {
		return
	}

	init := candidate.ToJSON()
	err := c.writeJSON(map[string]any{
		"type":      "peer",
		"sessionId": session,
		"ice": map[string]any{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
	if err != nil {
		c.logger.Warn("send ice candidate", "error", err)
	}
}

func (c *Client) writeJSON(v any) error {
	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Client) handleVideoTrack(track *webrtc.TrackRemote) {
	select {
	case c.trackReady <- struct{}{}:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var gop gopAssembler
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		stream, err := gop.push(pkt)
		if err != nil {
			c.logger.Debug("depacketize", "error", err)
			continue
		}
		if stream == nil {
			continue
		}

		img, err := c.decoder.Decode(ctx, stream)
		if err != nil {
			if !errors.Is(err, ErrNoFrame) {
				c.logger.Debug("decode", "error", err)
			}
			continue
		}
		c.deliver(frame{img: img, ts: time.Now()})
	}
}

// deliver keeps only the newest frame.
func (c *Client) deliver(f frame) {
	for {
		select {
		case c.frames <- f:
			return
		default:
		}
		select {
		case <-c.frames:
		default:
		}
	}
}

// Next implements Source.
func (c *Client) Next(ctx context.Context) (image.Image, time.Time, error) {
	select {
	case f := <-c.frames:
		return f.img, f.ts, nil
	case <-c.done:
		return nil, time.Time{}, ErrClosed
	case <-ctx.Done():
		return nil, time.Time{}, ctx.Err()
	}
}

// Close closes the WebRTC connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.pc != nil {
			err = c.pc.Close()
		}
		if c.ws != nil {
			c.ws.Close()
		}
	})
	return err
}
