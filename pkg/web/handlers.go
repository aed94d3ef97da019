package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-human/internal/observability"
	"github.com/teslashibe/go-human/pkg/hub"
	"github.com/teslashibe/go-human/pkg/protocol"
	"github.com/teslashibe/go-human/pkg/tracking"
)

// Status is the body of GET /api/status
type Status struct {
	State   string              `json:"state"`
	TrackID string              `json:"track_id,omitempty"`
	Frame   uint64              `json:"frame"`
	Human   *protocol.HumanData `json:"human,omitempty"`
	Timings map[string]float64  `json:"timings_ms"`
	Clients map[string]int      `json:"clients"`
	Uptime  string              `json:"uptime"`
	Stats   any                 `json:"stats,omitempty"`
}

// ConfigView is the body of GET /api/config
type ConfigView struct {
	MinCandidateVotes int      `json:"min_candidate_votes"`
	MinDetectFrames   int      `json:"min_detect_frames"`
	MinRejectFrames   int      `json:"min_reject_frames"`
	MaxRejectCov      float64  `json:"max_reject_cov"`
	MinFlow           float64  `json:"min_flow"`
	SkinEnabled       bool     `json:"skin_enabled"`
	SkinValueMin      int      `json:"skin_value_min"`
	SkinValueMax      int      `json:"skin_value_max"`
	Outputs           []string `json:"outputs"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if len(s.Checks) == 0 {
		return c.JSON(fiber.Map{"status": "ok"})
	}

	status, code := "ok", fiber.StatusOK
	checks := make(fiber.Map, len(s.Checks))
	for name, check := range s.Checks {
		if err := check(); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "checks": checks})
}

// handleStatus returns the latest tracker output
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.tracker == nil {
		return errNoTracker(c)
	}
	out := s.tracker.Latest()
	status := Status{
		State:   out.State.String(),
		TrackID: out.TrackID,
		Frame:   out.Frame,
		Timings: map[string]float64{
			"detect": ms(out.Timings.Detect),
			"skin":   ms(out.Timings.Skin),
			"flow":   ms(out.Timings.Flow),
			"total":  ms(out.Timings.Total),
		},
		Clients: map[string]int{
			"human": s.humanHub.ClientCount(),
			"debug": s.debugHub.ClientCount(),
			"logs":  s.logHub.ClientCount(),
		},
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if out.Valid() {
		h := protocol.HumanFromOutput(out)
		status.Human = &h
	}
	if s.OnStats != nil {
		status.Stats = s.OnStats()
	}
	return c.JSON(status)
}

// handleConfig returns the tracker configuration
func (s *Server) handleConfig(c *fiber.Ctx) error {
	if s.tracker == nil {
		return errNoTracker(c)
	}
	cfg := s.tracker.Config()
	var outputs []string
	for _, o := range []tracking.Outputs{tracking.OutputOverlay, tracking.OutputSkin, tracking.OutputHistogram, tracking.OutputFlow} {
		if cfg.Outputs.Has(o) {
			outputs = append(outputs, o.String())
		}
	}
	return c.JSON(ConfigView{
		MinCandidateVotes: cfg.MinCandidateVotes,
		MinDetectFrames:   cfg.MinDetectFrames,
		MinRejectFrames:   cfg.MinRejectFrames,
		MaxRejectCov:      cfg.MaxRejectCov,
		MinFlow:           cfg.MinFlow,
		SkinEnabled:       cfg.SkinEnabled,
		SkinValueMin:      cfg.SkinValueMin,
		SkinValueMax:      cfg.SkinValueMax,
		Outputs:           outputs,
	})
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleReset drops the current track
func (s *Server) handleReset(c *fiber.Ctx) error {
	if s.OnReset == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "reset not configured",
		})
	}
	s.OnReset()
	s.logger.Info("tracker reset from dashboard")
	return c.JSON(fiber.Map{"status": "reset"})
}

// replayLogs sends the buffered log entries to a new client
func (s *Server) replayLogs(c *websocket.Conn) {
	s.logsMu.RLock()
	logs := append([]protocol.LogData(nil), s.logs...)
	s.logsMu.RUnlock()

	for _, entry := range logs {
		msg, err := protocol.NewMessage(protocol.TypeLog, entry)
		if err != nil {
			continue
		}
		if err := c.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveHub attaches a websocket connection to a hub until it closes
func (s *Server) serveHub(h *hub.Hub, stream string, greet func(*websocket.Conn)) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		gauge := observability.WSConnections.WithLabelValues(stream)
		gauge.Inc()
		defer gauge.Dec()

		if greet != nil {
			greet(c)
		}
		hub.NewClient(h, c).Run()
	}
}

func errNoTracker(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "tracker not attached",
	})
}
