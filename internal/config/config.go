// Package config loads the humantrack application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-human/pkg/tracking"
)

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Detector DetectorConfig `yaml:"detector"`
	Flow     FlowConfig     `yaml:"flow"`
	Tracking TrackingConfig `yaml:"tracking"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Publish  PublishConfig  `yaml:"publish"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type SourceConfig struct {
	Kind   string  `yaml:"kind"`   // "capture" or "webrtc"
	Target string  `yaml:"target"` // Device index, file or URL for capture
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`

	RobotIP        string        `yaml:"robot_ip"` // WebRTC signalling host
	Producer       string        `yaml:"producer"`
	DecodeInterval time.Duration `yaml:"decode_interval"`
}

type DetectorConfig struct {
	Kind      string `yaml:"kind"` // "haar", "yunet" or "yolo"
	ModelPath string `yaml:"model_path"`

	// Haar cascade
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      [2]int  `yaml:"min_size"`
	MaxSize      [2]int  `yaml:"max_size"`

	// DNN detectors
	Confidence float64 `yaml:"confidence"`
	NMS        float64 `yaml:"nms"`
}

type FlowConfig struct {
	PyrScale   float64 `yaml:"pyr_scale"`
	Levels     int     `yaml:"levels"`
	WinSize    int     `yaml:"win_size"`
	Iterations int     `yaml:"iterations"`
	PolyN      int     `yaml:"poly_n"`
	PolySigma  float64 `yaml:"poly_sigma"`
}

type TrackingConfig struct {
	Preset            string   `yaml:"preset"` // "default", "patient", "aggressive"
	MinCandidateVotes *int     `yaml:"min_candidate_votes"`
	MinDetectFrames   *int     `yaml:"min_detect_frames"`
	MinRejectFrames   *int     `yaml:"min_reject_frames"`
	MaxRejectCov      *float64 `yaml:"max_reject_cov"`
	MinFlow           *float64 `yaml:"min_flow"`
	SkinEnabled       *bool    `yaml:"skin_enabled"`
	SkinValueMin      *int     `yaml:"skin_value_min"`
	SkinValueMax      *int     `yaml:"skin_value_max"`

	// Debug outputs by name, or the numeric mask (0x02 overlay, 0x04 skin,
	// 0x08 histogram, 0x10 flow).
	Outputs    []string `yaml:"outputs"`
	OutputMask *uint16  `yaml:"output_mask"`
}

type PipelineConfig struct {
	FrameBudget     time.Duration `yaml:"frame_budget"`
	PublishRate     float64       `yaml:"publish_rate"` // Hz
	MaxMissedFrames int           `yaml:"max_missed_frames"`
}

type PublishConfig struct {
	NATSURL string `yaml:"nats_url"` // Empty disables NATS
	Node    string `yaml:"node"`
	Log     bool   `yaml:"log"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = "capture"
	}
	if cfg.Source.Target == "" {
		cfg.Source.Target = "0"
	}
	if cfg.Source.Producer == "" {
		cfg.Source.Producer = "reachymini"
	}
	if cfg.Source.DecodeInterval == 0 {
		cfg.Source.DecodeInterval = 50 * time.Millisecond
	}
	if cfg.Detector.Kind == "" {
		cfg.Detector.Kind = "haar"
	}
	if cfg.Detector.ScaleFactor == 0 {
		cfg.Detector.ScaleFactor = 1.2
	}
	if cfg.Detector.MinSize == [2]int{} {
		cfg.Detector.MinSize = [2]int{20, 25}
	}
	if cfg.Detector.MaxSize == [2]int{} {
		cfg.Detector.MaxSize = [2]int{100, 100}
	}
	if cfg.Detector.Confidence == 0 {
		cfg.Detector.Confidence = 0.5
	}
	if cfg.Detector.NMS == 0 {
		cfg.Detector.NMS = 0.3
	}
	if cfg.Flow.PyrScale == 0 {
		cfg.Flow.PyrScale = 0.5
	}
	if cfg.Flow.Levels == 0 {
		cfg.Flow.Levels = 3
	}
	if cfg.Flow.WinSize == 0 {
		cfg.Flow.WinSize = 5
	}
	if cfg.Flow.Iterations == 0 {
		cfg.Flow.Iterations = 3
	}
	if cfg.Flow.PolyN == 0 {
		cfg.Flow.PolyN = 9
	}
	if cfg.Flow.PolySigma == 0 {
		cfg.Flow.PolySigma = 1.9
	}
	if cfg.Tracking.Preset == "" {
		cfg.Tracking.Preset = "default"
	}
	if cfg.Pipeline.FrameBudget == 0 {
		cfg.Pipeline.FrameBudget = 100 * time.Millisecond
	}
	if cfg.Pipeline.PublishRate == 0 {
		cfg.Pipeline.PublishRate = 50
	}
	if cfg.Pipeline.MaxMissedFrames == 0 {
		cfg.Pipeline.MaxMissedFrames = 100
	}
	if cfg.Publish.Node == "" {
		cfg.Publish.Node = "default"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HUMAN_SOURCE"); v != "" {
		cfg.Source.Target = v
	}
	if v := os.Getenv("HUMAN_SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("ROBOT_IP"); v != "" && cfg.Source.RobotIP == "" {
		cfg.Source.RobotIP = v
	}
	if v := os.Getenv("HUMAN_ROBOT_IP"); v != "" {
		cfg.Source.RobotIP = v
	}
	if v := os.Getenv("HUMAN_DETECTOR"); v != "" {
		cfg.Detector.Kind = v
	}
	if v := os.Getenv("HUMAN_MODEL_PATH"); v != "" {
		cfg.Detector.ModelPath = v
	}
	if v := os.Getenv("HUMAN_PRESET"); v != "" {
		cfg.Tracking.Preset = v
	}
	if v := os.Getenv("HUMAN_OUTPUTS"); v != "" {
		cfg.Tracking.Outputs = strings.Split(v, ",")
		cfg.Tracking.OutputMask = nil
	}
	if v := os.Getenv("HUMAN_SKIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracking.SkinEnabled = &b
		}
	}
	if v := os.Getenv("HUMAN_PUBLISH_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.PublishRate = rate
		}
	}
	if v := os.Getenv("HUMAN_NATS_URL"); v != "" {
		cfg.Publish.NATSURL = v
	}
	if v := os.Getenv("HUMAN_NODE"); v != "" {
		cfg.Publish.Node = v
	}
	if v := os.Getenv("HUMAN_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
			cfg.Web.Enabled = true
		}
	}
	if v := os.Getenv("HUMAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HUMAN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the choices that have a fixed set of values.
func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case "capture":
	case "webrtc":
		if c.Source.RobotIP == "" {
			errs = append(errs, errors.New("source: webrtc needs robot_ip (or ROBOT_IP)"))
		}
	default:
		errs = append(errs, fmt.Errorf("source: unknown kind %q", c.Source.Kind))
	}
	switch c.Detector.Kind {
	case "haar", "yunet", "yolo":
	default:
		errs = append(errs, fmt.Errorf("detector: unknown kind %q", c.Detector.Kind))
	}
	if c.Pipeline.PublishRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline: publish rate must be >= 0, got %g", c.Pipeline.PublishRate))
	}
	if _, err := c.TrackerConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TrackerConfig resolves the tracking section into a tracker configuration:
// the preset, then any explicit overrides.
func (c *Config) TrackerConfig() (tracking.Config, error) {
	t := c.Tracking

	var cfg tracking.Config
	switch t.Preset {
	case "", "default":
		cfg = tracking.DefaultConfig()
	case "patient":
		cfg = tracking.PatientConfig()
	case "aggressive":
		cfg = tracking.AggressiveConfig()
	default:
		return tracking.Config{}, fmt.Errorf("tracking: unknown preset %q", t.Preset)
	}

	setIf(&cfg.MinCandidateVotes, t.MinCandidateVotes)
	setIf(&cfg.MinDetectFrames, t.MinDetectFrames)
	setIf(&cfg.MinRejectFrames, t.MinRejectFrames)
	setIf(&cfg.MaxRejectCov, t.MaxRejectCov)
	setIf(&cfg.MinFlow, t.MinFlow)
	setIf(&cfg.SkinEnabled, t.SkinEnabled)
	setIf(&cfg.SkinValueMin, t.SkinValueMin)
	setIf(&cfg.SkinValueMax, t.SkinValueMax)

	switch {
	case t.OutputMask != nil:
		cfg.Outputs = tracking.OutputsFromMask(*t.OutputMask)
	case t.Outputs != nil:
		outputs, err := tracking.ParseOutputs(t.Outputs)
		if err != nil {
			return tracking.Config{}, err
		}
		cfg.Outputs = outputs
	}

	if err := cfg.Validate(); err != nil {
		return tracking.Config{}, err
	}
	return cfg, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
