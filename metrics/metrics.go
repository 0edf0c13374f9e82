// Package metrics registers the relay's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter and gauge the relay exposes.
type Metrics struct {
	// Session lifecycle
	ActiveSessions prometheus.Gauge
	SessionsOpened prometheus.Counter
	SessionsClosed prometheus.Counter

	// Audio path
	FramesForwarded prometheus.Counter
	FramesDropped   prometheus.Counter

	// Transcript path
	TranscriptsDelivered *prometheus.CounterVec
	MalformedPayloads    prometheus.Counter
	UpstreamErrors       prometheus.Counter

	// Analysis endpoint
	AnalysisRequests *prometheus.CounterVec
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Current number of live relay sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_opened_total",
			Help: "Total number of relay sessions started",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_closed_total",
			Help: "Total number of relay sessions fully torn down",
		}),
		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_audio_frames_forwarded_total",
			Help: "Audio frames forwarded to the transcription service",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_audio_frames_dropped_total",
			Help: "Audio frames dropped because the upstream link was not open",
		}),
		TranscriptsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_transcripts_delivered_total",
			Help: "Transcript messages delivered to clients",
		}, []string{"message_type"}),
		MalformedPayloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_malformed_upstream_payloads_total",
			Help: "Upstream messages dropped because they could not be decoded",
		}),
		UpstreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_upstream_errors_total",
			Help: "Upstream transport errors that ended a session",
		}),
		AnalysisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_analysis_requests_total",
			Help: "Transcript analysis requests by outcome",
		}, []string{"outcome"}),
	}
}
