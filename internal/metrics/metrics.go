package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the intake gateway.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEnded   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Pipeline metrics
	FramesEmitted prometheus.Counter
	PipelineTicks prometheus.Counter
	AudioBytesIn  prometheus.Counter
	AudioBytesOut prometheus.Counter

	// Intake tool metrics
	ToolCalls        *prometheus.CounterVec
	ToolCallFailures *prometheus.CounterVec

	// OpenAI usage metrics
	TextTokens  *prometheus.CounterVec
	AudioTokens *prometheus.CounterVec

	// Upload transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "intake_active_sessions",
			Help: "Current number of live intake sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_created_total",
			Help: "Total number of intake sessions created",
		}),
		SessionsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_ended_total",
			Help: "Total number of intake sessions ended",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_session_duration_seconds",
			Help:    "Duration of intake sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		FramesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_frames_emitted_total",
			Help: "Total number of 20ms PCM16 frames emitted by the pipeline",
		}),
		PipelineTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_pipeline_ticks_total",
			Help: "Total number of pipeline telemetry ticks",
		}),
		AudioBytesIn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_audio_in_bytes_total",
			Help: "Total bytes of capture audio received from clients",
		}),
		AudioBytesOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_audio_out_bytes_total",
			Help: "Total bytes of PCM16 audio forwarded upstream",
		}),

		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_tool_calls_total",
			Help: "Total number of intake tool calls handled",
		}, []string{"tool"}),
		ToolCallFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_tool_call_failures_total",
			Help: "Total number of intake tool calls that failed",
		}, []string{"tool"}),

		TextTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_openai_text_tokens_total",
			Help: "Total OpenAI text tokens used by realtime sessions",
		}, []string{"direction"}),
		AudioTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_openai_audio_tokens_total",
			Help: "Total OpenAI audio tokens used by realtime sessions",
		}, []string{"direction"}),

		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_transcription_requests_total",
			Help: "Total number of upload transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "intake_transcription_failures_total",
			Help: "Total number of failed upload transcription requests",
		}),
	}
}

// SessionStarted records a new live session.
func (m *Metrics) SessionStarted() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a finished session and its duration.
func (m *Metrics) SessionEnded(durationSeconds float64) {
	m.SessionsEnded.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunk records one capture chunk and the frames it produced.
func (m *Metrics) RecordChunk(bytesIn, frames, bytesOut int) {
	m.AudioBytesIn.Add(float64(bytesIn))
	m.FramesEmitted.Add(float64(frames))
	m.AudioBytesOut.Add(float64(bytesOut))
}

// RecordTick increments the pipeline telemetry tick counter.
func (m *Metrics) RecordTick() {
	m.PipelineTicks.Inc()
}

// RecordToolCall records a handled tool call.
func (m *Metrics) RecordToolCall(tool string, failed bool) {
	m.ToolCalls.WithLabelValues(tool).Inc()
	if failed {
		m.ToolCallFailures.WithLabelValues(tool).Inc()
	}
}

// RecordUsage records token usage reported by a completed response.
func (m *Metrics) RecordUsage(textIn, textOut, audioIn, audioOut int) {
	m.TextTokens.WithLabelValues("input").Add(float64(textIn))
	m.TextTokens.WithLabelValues("output").Add(float64(textOut))
	m.AudioTokens.WithLabelValues("input").Add(float64(audioIn))
	m.AudioTokens.WithLabelValues("output").Add(float64(audioOut))
}

// RecordTranscription records an upload transcription attempt.
func (m *Metrics) RecordTranscription(failed bool) {
	m.TranscriptionRequests.Inc()
	if failed {
		m.TranscriptionFailures.Inc()
	}
}
