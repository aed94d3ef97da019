package web

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-human/pkg/protocol"
	"github.com/teslashibe/go-human/pkg/tracking"
	"github.com/teslashibe/go-human/pkg/tracking/detection"
)

type fakeTracker struct {
	out tracking.Output
	cfg tracking.Config
}

func (f *fakeTracker) Latest() tracking.Output { return f.out }
func (f *fakeTracker) Config() tracking.Config { return f.cfg }

func newTestServer() (*Server, *fakeTracker) {
	ft := &fakeTracker{cfg: tracking.DefaultConfig()}
	return NewServer(Config{Addr: ":0"}, ft, nil), ft
}

func get(t *testing.T, s *Server, method, path string) (int, []byte) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	code, body := get(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestStatus(t *testing.T) {
	s, ft := newTestServer()
	s.OnStats = func() any { return map[string]int{"frames": 3} }

	code, body := get(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, code)
	var st Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "LOST", st.State)
	assert.Nil(t, st.Human)
	assert.Equal(t, map[string]any{"frames": 3.0}, st.Stats)

	ft.out = tracking.Output{
		Frame:  7,
		State:  tracking.StateTrack,
		Belief: image.Rect(139, 99, 178, 138),
		Score:  20,
	}
	_, body = get(t, s, http.MethodGet, "/api/status")
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "TRACK", st.State)
	require.NotNil(t, st.Human)
	assert.Equal(t, 139, st.Human.X)
	assert.Equal(t, 20, st.Human.Score)
	assert.Contains(t, st.Timings, "total")
}

func TestConfigEndpoint(t *testing.T) {
	s, ft := newTestServer()
	ft.cfg.Outputs = tracking.OutputOverlay | tracking.OutputFlow

	code, body := get(t, s, http.MethodGet, "/api/config")
	require.Equal(t, http.StatusOK, code)
	var view ConfigView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, 5, view.MinCandidateVotes)
	assert.Equal(t, 6.0, view.MaxRejectCov)
	assert.Equal(t, []string{"overlay", "flow"}, view.Outputs)
}

func TestReset(t *testing.T) {
	s, _ := newTestServer()
	code, _ := get(t, s, http.MethodPost, "/api/reset")
	assert.Equal(t, http.StatusNotImplemented, code)

	called := 0
	s.OnReset = func() { called++ }
	code, _ = get(t, s, http.MethodPost, "/api/reset")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, called)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer()
	for _, path := range []string{"/ws/human", "/ws/debug", "/ws/logs"} {
		code, _ := get(t, s, http.MethodGet, path)
		assert.Equal(t, http.StatusUpgradeRequired, code, path)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer()
	code, body := get(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(string(body), "human_"), "expected human_ metrics")
}

func TestLogHandler(t *testing.T) {
	s, _ := newTestServer()
	logger := slog.New(s.LogHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "tracker").Info("state change", "to", "TRACK", "frame", 7)
	logger.Warn("frame overrun", "error", io.ErrUnexpectedEOF)

	_, body := get(t, s, http.MethodGet, "/api/logs")
	var logs []protocol.LogData
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs, 2)

	assert.Equal(t, "INFO", logs[0].Level)
	assert.Equal(t, "state change", logs[0].Message)
	assert.Equal(t, "tracker", logs[0].Attrs["component"])
	assert.Equal(t, 7.0, logs[0].Attrs["frame"])
	assert.Equal(t, io.ErrUnexpectedEOF.Error(), logs[1].Attrs["error"])
}

func TestLogBufferBounded(t *testing.T) {
	s, _ := newTestServer()
	for i := 0; i < maxLogs+20; i++ {
		s.AddLog(protocol.LogData{Level: "INFO", Message: "x"})
	}
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	assert.Len(t, s.logs, maxLogs)
}

func TestObserve_RendersOnlyForClients(t *testing.T) {
	s, _ := newTestServer()
	rendered := 0
	s.Render = func(image.Image, tracking.Output) ([]protocol.FrameData, error) {
		rendered++
		return nil, nil
	}

	s.Observe(image.NewRGBA(image.Rect(0, 0, 8, 8)), tracking.Output{State: tracking.StateDetect})
	assert.Equal(t, 0, rendered)

	s.stateMu.Lock()
	assert.Equal(t, tracking.StateDetect, s.lastState)
	s.stateMu.Unlock()
}

func TestHealthChecks(t *testing.T) {
	s, _ := newTestServer()
	var natsErr error
	s.Checks = map[string]func() error{"nats": func() error { return natsErr }}

	code, body := get(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","checks":{"nats":"ok"}}`, string(body))

	natsErr = errors.New("nats not connected")
	code, body = get(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"nats":"nats not connected"}}`, string(body))
}

func TestTrackerAttachedLater(t *testing.T) {
	s := NewServer(Config{Addr: ":0"}, nil, nil)
	code, _ := get(t, s, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, s, http.MethodGet, "/api/config")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	s.SetTracker(&fakeTracker{cfg: tracking.DefaultConfig()})
	code, _ = get(t, s, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, code)
}

func TestLogHandler_TrackerStateChanges(t *testing.T) {
	s := NewServer(Config{Addr: ":0"}, nil, nil)
	logger := slog.New(s.LogHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelInfo))

	face := detection.Candidate{X: 140, Y: 100, W: 40, H: 40, Votes: 20}
	tr, err := tracking.New(tracking.DefaultConfig(), detection.Repeat(10, face), nil, tracking.WithLogger(logger))
	require.NoError(t, err)
	s.SetTracker(tr)

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		f, err := tracking.NewFrame(image.NewRGBA(image.Rect(0, 0, 320, 240)), start.Add(time.Duration(i)*33*time.Millisecond))
		require.NoError(t, err)
		_, err = tr.Process(context.Background(), f)
		require.NoError(t, err)
	}
	require.Equal(t, tracking.StateTrack, tr.Latest().State)

	_, body := get(t, s, http.MethodGet, "/api/logs")
	var logs []protocol.LogData
	require.NoError(t, json.Unmarshal(body, &logs))

	var transitions []string
	for _, l := range logs {
		if l.Message == "state changed" {
			assert.Equal(t, "tracker", l.Attrs["component"])
			transitions = append(transitions, l.Attrs["to"].(string))
		}
	}
	assert.Equal(t, []string{"DETECT", "TRACK"}, transitions)
}
