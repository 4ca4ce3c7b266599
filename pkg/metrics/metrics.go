// Package metrics exposes Prometheus instrumentation for the Chronos
// voice pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the Chronos core
type Metrics struct {
	// Playback scheduler metrics
	ChunksScheduled prometheus.Counter
	ChunksDropped   *prometheus.CounterVec
	PlaybackRuns    prometheus.Counter
	ActivePlayback  prometheus.Gauge

	// Voice session metrics
	SessionsOpened  prometheus.Counter
	SessionErrors   prometheus.Counter
	FramesSent      prometheus.Counter
	Interruptions   prometheus.Counter
	SessionState    prometheus.Gauge

	// Tool call metrics
	ToolCalls *prometheus.CounterVec

	// Enrichment metrics
	EnrichmentRequests  prometheus.Counter
	EnrichmentFailures  prometheus.Counter
	EnrichmentDuration  prometheus.Histogram
	IllustrationsIssued prometheus.Counter
}

// NewMetrics creates all metrics registered against the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry so repeated construction never collides.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_audio_chunks_scheduled_total",
			Help: "Total number of audio chunks scheduled for playback",
		}),
		ChunksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chronos_audio_chunks_dropped_total",
			Help: "Total number of audio chunks dropped before playback",
		}, []string{"reason"}),
		PlaybackRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_audio_playback_runs_total",
			Help: "Total number of contiguous playback runs started",
		}),
		ActivePlayback: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chronos_audio_playback_active",
			Help: "Whether model audio is currently audible (0 or 1)",
		}),

		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_voice_sessions_opened_total",
			Help: "Total number of voice sessions that completed the handshake",
		}),
		SessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_voice_session_errors_total",
			Help: "Total number of terminal session failures",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_voice_frames_sent_total",
			Help: "Total number of microphone frames transmitted",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_voice_interruptions_total",
			Help: "Total number of model interruption signals handled",
		}),
		SessionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chronos_voice_session_state",
			Help: "Current session state (0=disconnected 1=connecting 2=open 3=closed 4=errored)",
		}),

		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chronos_voice_tool_calls_total",
			Help: "Total number of tool invocations dispatched",
		}, []string{"tool", "outcome"}),

		EnrichmentRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_enrichment_requests_total",
			Help: "Total number of note enrichment requests sent",
		}),
		EnrichmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_enrichment_failures_total",
			Help: "Total number of failed note enrichment requests",
		}),
		EnrichmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chronos_enrichment_duration_seconds",
			Help:    "Duration of note enrichment requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		IllustrationsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronos_illustrations_issued_total",
			Help: "Total number of illustration generation requests issued",
		}),
	}
}

// RecordChunkScheduled increments the scheduled chunk counter
func (m *Metrics) RecordChunkScheduled() {
	m.ChunksScheduled.Inc()
}

// RecordToolCall records a dispatched tool invocation and its outcome
func (m *Metrics) RecordToolCall(tool, outcome string) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordEnrichmentSuccess records a completed enrichment request
func (m *Metrics) RecordEnrichmentSuccess(durationSeconds float64) {
	m.EnrichmentRequests.Inc()
	m.EnrichmentDuration.Observe(durationSeconds)
}

// RecordEnrichmentFailure records a failed enrichment request
func (m *Metrics) RecordEnrichmentFailure(durationSeconds float64) {
	m.EnrichmentRequests.Inc()
	m.EnrichmentFailures.Inc()
	m.EnrichmentDuration.Observe(durationSeconds)
}

// SetSessionState sets the session state gauge
func (m *Metrics) SetSessionState(state int) {
	m.SessionState.Set(float64(state))
}

// SchedulerListener adapts Metrics to the audio scheduler's Listener
// interface so playback signals feed the gauges directly.
type SchedulerListener struct {
	metrics *Metrics
}

// NewSchedulerListener creates a listener that records scheduler
// signals in the given metrics.
func NewSchedulerListener(m *Metrics) *SchedulerListener {
	return &SchedulerListener{metrics: m}
}

// PlaybackStarted records a new contiguous playback run.
func (l *SchedulerListener) PlaybackStarted() {
	l.metrics.PlaybackRuns.Inc()
	l.metrics.ActivePlayback.Set(1)
}

// PlaybackStopped records the end of audible playback.
func (l *SchedulerListener) PlaybackStopped() {
	l.metrics.ActivePlayback.Set(0)
}

// ChunkDropped records a discarded chunk by reason.
func (l *SchedulerListener) ChunkDropped(reason string) {
	l.metrics.ChunksDropped.WithLabelValues(reason).Inc()
}
