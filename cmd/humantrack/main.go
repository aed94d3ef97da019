// humantrack: follows a single person in a video stream and publishes
// their face position and gesture scores.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-human/internal/config"
	"github.com/teslashibe/go-human/internal/log"
	"github.com/teslashibe/go-human/pkg/pipeline"
	"github.com/teslashibe/go-human/pkg/protocol"
	"github.com/teslashibe/go-human/pkg/publish"
	"github.com/teslashibe/go-human/pkg/tracking"
	"github.com/teslashibe/go-human/pkg/tracking/detection"
	"github.com/teslashibe/go-human/pkg/video"
	"github.com/teslashibe/go-human/pkg/video/capture"
	"github.com/teslashibe/go-human/pkg/vision"
	"github.com/teslashibe/go-human/pkg/web"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to YAML config")
	source     = flag.String("source", "", "Capture target (device index, file or URL)")
	port       = flag.Int("port", 0, "Dashboard port (enables the dashboard)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Source.Kind = "capture"
		cfg.Source.Target = *source
	}
	if *port != 0 {
		cfg.Web.Enabled = true
		cfg.Web.Port = *port
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	log.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := log.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("humantrack stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	trackerCfg, err := cfg.TrackerConfig()
	if err != nil {
		return err
	}

	var server *web.Server
	if cfg.Web.Enabled {
		server = web.NewServer(web.Config{
			Addr:      fmt.Sprintf(":%d", cfg.Web.Port),
			StaticDir: cfg.Web.StaticDir,
			AccessLog: *debug,
		}, nil, logger)

		// Everything built from here on also logs to the dashboard.
		logger = slog.New(server.LogHandler(logger.Handler(), slog.LevelInfo))
		slog.SetDefault(logger)
	}

	det, err := newDetector(cfg.Detector, logger)
	if err != nil {
		return err
	}
	defer det.Close()

	est := vision.NewFarneback(vision.FarnebackConfig{
		PyrScale:   cfg.Flow.PyrScale,
		Levels:     cfg.Flow.Levels,
		WinSize:    cfg.Flow.WinSize,
		Iterations: cfg.Flow.Iterations,
		PolyN:      cfg.Flow.PolyN,
		PolySigma:  cfg.Flow.PolySigma,
	})

	tracker, err := tracking.New(trackerCfg, det, est, tracking.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("humantrack starting",
		"version", version,
		"source", cfg.Source.Kind,
		"detector", cfg.Detector.Kind,
		"preset", cfg.Tracking.Preset,
		"outputs", trackerCfg.Outputs.String())

	src, err := openSource(ctx, cfg.Source, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	pubs := publish.Multi{}
	if cfg.Publish.Log {
		pubs = append(pubs, publish.NewLog(logger))
	}
	var nc *publish.NATS
	if cfg.Publish.NATSURL != "" {
		nc, err = publish.NewNATS(cfg.Publish.NATSURL, cfg.Publish.Node, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		pubs = append(pubs, nc)
		logger.Info("publishing to nats", "url", cfg.Publish.NATSURL, "subject", nc.Subject())
		if server != nil {
			server.Checks = map[string]func() error{"nats": nc.Ping}
		}
	}
	if server != nil {
		pubs = append(pubs, publish.NewHub(server.HumanHub()))
	}

	runner := pipeline.NewRunner(pipeline.Config{
		FrameBudget:     cfg.Pipeline.FrameBudget,
		PublishRate:     cfg.Pipeline.PublishRate,
		MaxMissedFrames: cfg.Pipeline.MaxMissedFrames,
	}, src, tracker, pubs, logger)

	if nc != nil {
		err := nc.OnCommand(func(cmd publish.Command) {
			if cmd.Action == publish.ActionReset {
				logger.Info("reset requested over nats")
				runner.Reset()
			}
		})
		if err != nil {
			return err
		}
	}

	if server != nil {
		server.SetTracker(tracker)
		outputs := trackerCfg.Outputs
		server.Render = func(img image.Image, out tracking.Output) ([]protocol.FrameData, error) {
			return vision.DebugFrames(img, out, outputs)
		}
		server.OnStats = func() any { return runner.Stats() }
		server.OnReset = runner.Reset
		runner.OnFrame = server.Observe

		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("web server failed", "error", err)
			}
		}()
	}

	start := time.Now()
	err = runner.Run(ctx)
	stats := runner.Stats()
	logger.Info("humantrack finished",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"frames", stats.Frames,
		"published", stats.Published,
		"overruns", stats.Overruns)

	if errors.Is(err, pipeline.ErrSourceExhausted) {
		return nil
	}
	return err
}

type closingDetector interface {
	detection.Detector
	Close() error
}

func newDetector(cfg config.DetectorConfig, logger *slog.Logger) (closingDetector, error) {
	switch cfg.Kind {
	case "haar":
		c := vision.DefaultCascadeConfig()
		if cfg.ModelPath != "" {
			c.Path = cfg.ModelPath
		}
		c.ScaleFactor = cfg.ScaleFactor
		c.MinNeighbors = cfg.MinNeighbors
		c.MinSize = image.Pt(cfg.MinSize[0], cfg.MinSize[1])
		c.MaxSize = image.Pt(cfg.MaxSize[0], cfg.MaxSize[1])
		return vision.NewCascade(c, logger)
	case "yunet":
		c := vision.DefaultYuNetConfig()
		if cfg.ModelPath != "" {
			c.ModelPath = cfg.ModelPath
		}
		c.ConfidenceThresh = cfg.Confidence
		c.NMSThresh = cfg.NMS
		return vision.NewYuNet(c, logger)
	case "yolo":
		c := vision.DefaultYOLOConfig()
		if cfg.ModelPath != "" {
			c.ModelPath = cfg.ModelPath
		}
		c.ConfidenceThresh = float32(cfg.Confidence)
		return vision.NewPersonDetector(c, logger)
	default:
		return nil, fmt.Errorf("unknown detector %q", cfg.Kind)
	}
}

func openSource(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (video.Source, error) {
	switch cfg.Kind {
	case "webrtc":
		cc := video.DefaultClientConfig(cfg.RobotIP)
		cc.Producer = cfg.Producer
		cc.DecodeInterval = cfg.DecodeInterval
		client := video.NewClient(cc, logger)
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to robot %s: %w", cfg.RobotIP, err)
		}
		return client, nil
	default:
		return capture.Open(capture.Config{
			Target: cfg.Target,
			Width:  cfg.Width,
			Height: cfg.Height,
			FPS:    cfg.FPS,
		}, logger)
	}
}
