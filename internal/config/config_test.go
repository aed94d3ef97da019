package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-human/pkg/tracking"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "capture", cfg.Source.Kind)
	assert.Equal(t, "0", cfg.Source.Target)
	assert.Equal(t, "haar", cfg.Detector.Kind)
	assert.Equal(t, [2]int{20, 25}, cfg.Detector.MinSize)
	assert.Equal(t, 1.9, cfg.Flow.PolySigma)
	assert.Equal(t, 50.0, cfg.Pipeline.PublishRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.FrameBudget)
	assert.Equal(t, 8080, cfg.Web.Port)

	tc, err := cfg.TrackerConfig()
	require.NoError(t, err)
	if diff := cmp.Diff(tracking.DefaultConfig(), tc); diff != "" {
		t.Errorf("TrackerConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: capture
  target: testdata/walk.mp4
detector:
  kind: yunet
  model_path: models/face_detection_yunet.onnx
tracking:
  preset: patient
  min_candidate_votes: 2
  skin_enabled: true
  outputs: [overlay, skin, histogram]
pipeline:
  frame_budget: 40ms
  publish_rate: 25
publish:
  nats_url: nats://localhost:4222
  node: drone1
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "testdata/walk.mp4", cfg.Source.Target)
	assert.Equal(t, "yunet", cfg.Detector.Kind)
	assert.Equal(t, 40*time.Millisecond, cfg.Pipeline.FrameBudget)
	assert.Equal(t, 25.0, cfg.Pipeline.PublishRate)
	assert.Equal(t, "drone1", cfg.Publish.Node)
	assert.Equal(t, "json", cfg.Logging.Format)

	tc, err := cfg.TrackerConfig()
	require.NoError(t, err)
	want := tracking.PatientConfig()
	want.MinCandidateVotes = 2
	want.SkinEnabled = true
	want.Outputs = tracking.OutputOverlay | tracking.OutputSkin | tracking.OutputHistogram
	if diff := cmp.Diff(want, tc); diff != "" {
		t.Errorf("TrackerConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_OutputMask(t *testing.T) {
	path := writeConfig(t, "tracking:\n  output_mask: 0x12\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	tc, err := cfg.TrackerConfig()
	require.NoError(t, err)
	assert.Equal(t, tracking.OutputOverlay|tracking.OutputFlow, tc.Outputs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "source:\n  target: \"1\"\nweb:\n  port: 9000\n")

	t.Setenv("HUMAN_SOURCE", "rtsp://cam/stream")
	t.Setenv("HUMAN_DETECTOR", "yolo")
	t.Setenv("HUMAN_OUTPUTS", "flow, overlay")
	t.Setenv("HUMAN_WEB_PORT", "9090")
	t.Setenv("HUMAN_PUBLISH_RATE", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rtsp://cam/stream", cfg.Source.Target)
	assert.Equal(t, "yolo", cfg.Detector.Kind)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.True(t, cfg.Web.Enabled)
	assert.Equal(t, 50.0, cfg.Pipeline.PublishRate, "bad numbers are ignored")

	tc, err := cfg.TrackerConfig()
	require.NoError(t, err)
	assert.Equal(t, tracking.OutputOverlay|tracking.OutputFlow, tc.Outputs)
}

func TestLoad_RobotIP(t *testing.T) {
	path := writeConfig(t, "source:\n  kind: webrtc\n")
	t.Setenv("ROBOT_IP", "")
	t.Setenv("HUMAN_ROBOT_IP", "")

	_, err := Load(path)
	assert.Error(t, err, "webrtc without a host")

	t.Setenv("ROBOT_IP", "192.168.68.80")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.68.80", cfg.Source.RobotIP)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "source: [unterminated"},
		{"unknown source", "source:\n  kind: tape\n"},
		{"unknown detector", "detector:\n  kind: magic\n"},
		{"unknown preset", "tracking:\n  preset: lazy\n"},
		{"unknown output", "tracking:\n  outputs: [xray]\n"},
		{"invalid tracker value", "tracking:\n  max_reject_cov: -1\n"},
		{"negative rate", "pipeline:\n  publish_rate: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
