// Package web serves the tracker dashboard: REST status, Prometheus metrics
// and live websocket streams of outputs, debug images and logs.
package web

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	accesslog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/hub"
	"github.com/teslashibe/go-human/pkg/protocol"
	"github.com/teslashibe/go-human/pkg/tracking"
)

const maxLogs = 500

// Tracker is the view of the tracker the dashboard reads.
type Tracker interface {
	Latest() tracking.Output
	Config() tracking.Config
}

// Config configures the dashboard server.
type Config struct {
	Addr      string // e.g. ":8080"
	StaticDir string // Optional dashboard assets
	AccessLog bool   // Log every request
}

// Server is the web dashboard server
type Server struct {
	app     *fiber.App
	config  Config
	tracker Tracker
	logger  *slog.Logger
	started time.Time

	// Log buffer (last 500 entries)
	logs   []protocol.LogData
	logsMu sync.RWMutex

	lastState tracking.State
	stateMu   sync.Mutex

	// Hubs for websocket broadcast
	humanHub *hub.Hub
	debugHub *hub.Hub
	logHub   *hub.Hub

	// Render produces debug images for a processed frame. Called only
	// while debug clients are connected.
	Render func(img image.Image, out tracking.Output) ([]protocol.FrameData, error)

	// OnStats supplies runner counters for /api/status.
	OnStats func() any

	// OnReset is invoked by POST /api/reset.
	OnReset func()

	// Checks are named dependency probes reported by /health. Any failure
	// turns the response into 503.
	Checks map[string]func() error
}

// NewServer creates a new web dashboard server. tracker may be nil and
// attached later with SetTracker, so that components built after the
// server can log through LogHandler.
func NewServer(cfg Config, tracker Tracker, logger *slog.Logger) *Server {
	logger = log.OrDefault(logger)
	logger = logger.With("component", "web")

	s := &Server{
		config:   cfg,
		tracker:  tracker,
		logger:   logger,
		started:  time.Now(),
		logs:     make([]protocol.LogData, 0, maxLogs),
		humanHub: hub.New("human", logger),
		debugHub: hub.New("debug", logger),
		logHub:   hub.New("logs", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Human Tracker",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(accesslog.New())
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleConfig)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/reset", s.handleReset)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/human", websocket.New(s.serveHub(s.humanHub, "human", nil)))
	app.Get("/ws/debug", websocket.New(s.serveHub(s.debugHub, "debug", nil)))
	app.Get("/ws/logs", websocket.New(s.serveHub(s.logHub, "logs", s.replayLogs)))

	s.app = app
	return s
}

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("web dashboard listening", "addr", s.config.Addr)

	go s.humanHub.Run(ctx)
	go s.debugHub.Run(ctx)
	go s.logHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(s.config.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Observe is called with every processed frame. It announces state
// changes and streams debug images.
func (s *Server) Observe(img image.Image, out tracking.Output) {
	s.stateMu.Lock()
	prev := s.lastState
	s.lastState = out.State
	s.stateMu.Unlock()

	if prev != out.State {
		if msg, err := protocol.NewStateMessage(prev, out.State, out.TrackID, out.Frame); err == nil {
			s.humanHub.BroadcastMessage(msg)
		}
	}

	if s.Render == nil || s.debugHub.ClientCount() == 0 {
		return
	}
	frames, err := s.Render(img, out)
	if err != nil {
		s.logger.Warn("render debug frames", "error", err)
		return
	}
	for _, f := range frames {
		msg, err := protocol.NewMessage(protocol.TypeFrame, f)
		if err != nil {
			continue
		}
		s.debugHub.BroadcastMessage(msg)
	}
}

// AddLog records a log entry and broadcasts it to clients
func (s *Server) AddLog(entry protocol.LogData) {
	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	if s.logHub.ClientCount() == 0 {
		return
	}
	if msg, err := protocol.NewMessage(protocol.TypeLog, entry); err == nil {
		s.logHub.BroadcastMessage(msg)
	}
}

// SetTracker attaches the tracker read by /api/status and /api/config.
// Call it before Start.
func (s *Server) SetTracker(t Tracker) {
	s.tracker = t
}

// HumanHub returns the hub streaming human messages
func (s *Server) HumanHub() *hub.Hub {
	return s.humanHub
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
