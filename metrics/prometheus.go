package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for voice capture
type Metrics struct {
	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsFailed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	ActiveSessions   prometheus.Gauge
	FramesCaptured   prometheus.Counter
	TransportSession *prometheus.CounterVec

	// Streaming metrics
	StreamBytesSent   prometheus.Counter
	StreamDemotions   prometheus.Counter
	PartialResults    prometheus.Counter
	FinalResults      prometheus.Counter
	DeliveredResults  prometheus.Counter
	StreamDialLatency prometheus.Histogram

	// Token metrics
	TokenRefreshes *prometheus.CounterVec

	// One-shot metrics
	OneShotRequests prometheus.Counter
	OneShotFailures *prometheus.CounterVec
	OneShotSkipped  prometheus.Counter
	OneShotDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_sessions_failed_total",
			Help: "Capture sessions that failed to start, by reason",
		}, []string{"reason"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_session_duration_seconds",
			Help:    "Duration of capture sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Capture sessions currently listening",
		}),
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_captured_total",
			Help: "Total number of microphone frames captured",
		}),
		TransportSession: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_sessions_by_transport_total",
			Help: "Sessions by the transport mode they started in",
		}, []string{"mode"}),

		StreamBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_stream_bytes_sent_total",
			Help: "PCM bytes sent over streaming connections",
		}),
		StreamDemotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_stream_demotions_total",
			Help: "Streaming sessions that fell back after a transport error",
		}),
		PartialResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_partial_results_total",
			Help: "Partial results received from the streaming service",
		}),
		FinalResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_final_results_total",
			Help: "Final results received from the streaming service",
		}),
		DeliveredResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_delivered_results_total",
			Help: "Transcripts handed to the result callback",
		}),
		StreamDialLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_stream_dial_seconds",
			Help:    "Time to open a streaming connection",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),

		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_token_refreshes_total",
			Help: "Access token refreshes by result",
		}, []string{"result"}),

		OneShotRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_oneshot_requests_total",
			Help: "One-shot recognition submissions",
		}),
		OneShotFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_oneshot_failures_total",
			Help: "Failed one-shot submissions by error class",
		}, []string{"class"}),
		OneShotSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_oneshot_skipped_total",
			Help: "Fallback buffers discarded as too short",
		}),
		OneShotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_oneshot_duration_seconds",
			Help:    "One-shot recognition round trip time",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// TokenRefreshed records a token refresh outcome.
func (m *Metrics) TokenRefreshed(err error) {
	if err != nil {
		m.TokenRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.TokenRefreshes.WithLabelValues("ok").Inc()
}
