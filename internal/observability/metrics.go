package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stt_sessions_started_total",
		Help: "Total number of recognition session attempts that reached the recognizer",
	}, []string{"provider"})

	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_stt_sessions_active",
		Help: "Number of sessions currently connecting or listening",
	}, []string{"provider"})

	handlesLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_stt_recognizer_handles_live",
		Help: "Number of recognizer handles acquired and not yet released",
	}, []string{"provider"})

	handlesReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stt_recognizer_handles_released_total",
		Help: "Total number of recognizer handles released",
	}, []string{"provider"})

	timeToListening = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_stt_time_to_listening_seconds",
		Help:    "Time from start request to the recognizer's session-started signal",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"provider"})

	// Result metrics
	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stt_results_total",
		Help: "Recognizer results by kind (partial, final, no_match)",
	}, []string{"provider", "kind"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stt_errors_total",
		Help: "Total number of session errors by kind",
	}, []string{"provider", "kind"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_stt_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// Client connection metrics
	clientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_stt_clients_connected",
		Help: "Number of connected dictation clients",
	})

	audioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_stt_audio_bytes_received_total",
		Help: "Total PCM bytes received from dictation clients",
	})
)

// SessionMetrics records metrics for the sessions of one provider.
// A nil *SessionMetrics records nothing.
type SessionMetrics struct {
	provider string
}

// NewSessionMetrics creates a metrics recorder labelled with provider.
func NewSessionMetrics(provider string) *SessionMetrics {
	return &SessionMetrics{provider: provider}
}

// RecordSessionStart records a session attempt that opened a recognizer handle.
func (m *SessionMetrics) RecordSessionStart() {
	if m == nil {
		return
	}
	sessionsStarted.WithLabelValues(m.provider).Inc()
	sessionsActive.WithLabelValues(m.provider).Inc()
	handlesLive.WithLabelValues(m.provider).Inc()
}

// RecordSessionEnd records a session leaving Connecting/Listening.
func (m *SessionMetrics) RecordSessionEnd() {
	if m == nil {
		return
	}
	sessionsActive.WithLabelValues(m.provider).Dec()
}

// RecordListening records the delay between the start request and the
// recognizer confirming the session.
func (m *SessionMetrics) RecordListening(since time.Time) {
	if m == nil {
		return
	}
	timeToListening.WithLabelValues(m.provider).Observe(time.Since(since).Seconds())
}

// RecordHandleReleased records a recognizer handle being closed.
func (m *SessionMetrics) RecordHandleReleased() {
	if m == nil {
		return
	}
	handlesLive.WithLabelValues(m.provider).Dec()
	handlesReleased.WithLabelValues(m.provider).Inc()
}

// RecordResult records a recognizer result of the given kind.
func (m *SessionMetrics) RecordResult(kind string) {
	if m == nil {
		return
	}
	resultsTotal.WithLabelValues(m.provider, kind).Inc()
}

// RecordError records a session error of the given kind.
func (m *SessionMetrics) RecordError(kind string) {
	if m == nil {
		return
	}
	errorsTotal.WithLabelValues(m.provider, kind).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// ClientConnected records a dictation client connecting.
func ClientConnected() {
	clientsConnected.Inc()
}

// ClientDisconnected records a dictation client going away.
func ClientDisconnected() {
	clientsConnected.Dec()
}

// RecordAudioBytes records PCM bytes received from a client
func RecordAudioBytes(bytes int) {
	audioBytesReceived.Add(float64(bytes))
}
