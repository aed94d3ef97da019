package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "human",
		Name:      "frames_processed_total",
		Help:      "Total number of frames handed to the tracker",
	}, []string{"result"}) // ok, error, missed

	FrameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "human",
		Name:      "frame_duration_seconds",
		Help:      "Duration of a full tracking cycle",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "human",
		Name:      "stage_duration_seconds",
		Help:      "Duration of tracking stages",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
	}, []string{"stage"}) // detect, skin, flow

	Overruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "human",
		Name:      "overruns_total",
		Help:      "Cycles that exceeded their time budget",
	}, []string{"loop"}) // frame, publish

	TrackerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "human",
		Name:      "tracker_state",
		Help:      "Current tracker state (0 LOST, 1 DETECT, 2 TRACK, 3 REJECT)",
	})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "human",
		Name:      "state_transitions_total",
		Help:      "Tracker state transitions by target state",
	}, []string{"to"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "human",
		Name:      "faces_detected_total",
		Help:      "Total number of accepted face candidates",
	})

	FlowScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "human",
		Name:      "flow_score",
		Help:      "Latest gesture flow score per region",
	}, []string{"region"})

	Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "human",
		Name:      "published_total",
		Help:      "Human messages published",
	}, []string{"sink", "result"})

	WSConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "human",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	}, []string{"stream"})
)
