// Package metrics provides Prometheus metrics for the matchmaking engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick results.
const (
	TickRan     = "ran"
	TickSkipped = "skipped"
	TickIdle    = "idle"
)

// Manager owns every collector. A nil *Manager is a valid no-op.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	queueSize      *prometheus.GaugeVec
	ticks          *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	pairsFormed    prometheus.Counter
	unpaired       prometheus.Counter
	confirmations  *prometheus.CounterVec
	punished       prometheus.Counter
	ratingDelta    prometheus.Histogram
	retries        *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// Option 매니저 설정 옵션
type Option func(*Manager)

// WithNamespace overrides the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) { m.namespace = namespace }
}

// WithRegistry registers collectors on the given registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = registry }
}

// WithHistogramBuckets sets tick duration buckets (seconds).
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) { m.buckets = buckets }
}

// NewManager 전용 레지스트리에 메트릭 등록
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "sbmm",
		subsystem: "matchmaking",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.queueSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Players waiting in the queue per region",
	}, []string{"region"})

	m.ticks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ticks_total",
		Help:      "Scheduler ticks by result",
	}, []string{"result"})

	m.tickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tick_duration_seconds",
		Help:      "Time spent in one drain-and-match tick",
		Buckets:   m.buckets,
	})

	m.pairsFormed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pairs_formed_total",
		Help:      "Pairs produced by the matcher",
	})

	m.unpaired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unpaired_total",
		Help:      "Players left without a legal partner after a tick",
	})

	m.confirmations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "confirmations_total",
		Help:      "Resolved confirmation handshakes by outcome",
	}, []string{"outcome"})

	m.punished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "punished_total",
		Help:      "Players punished for not confirming in time",
	})

	m.ratingDelta = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_delta",
		Help:      "Absolute rating change applied after a match",
		Buckets:   []float64{2, 4, 8, 12, 16, 20, 24, 28, 32},
	})

	m.retries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retries_total",
		Help:      "Retried substrate calls by operation",
	}, []string{"op"})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Sessions currently being played",
	})
}

// SetQueueSize 지역별 대기열 크기
func (m *Manager) SetQueueSize(region string, size int) {
	if m == nil {
		return
	}
	m.queueSize.WithLabelValues(region).Set(float64(size))
}

// IncTick 틱 결과 카운트
func (m *Manager) IncTick(result string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
}

// ObserveTickDuration 틱 소요 시간
func (m *Manager) ObserveTickDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// AddPairs 생성된 페어 수
func (m *Manager) AddPairs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pairsFormed.Add(float64(n))
}

// AddUnpaired 짝을 못 찾은 플레이어 수
func (m *Manager) AddUnpaired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unpaired.Add(float64(n))
}

// IncConfirmation 확인 결과 (confirmed / timed_out)
func (m *Manager) IncConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

// IncPunished 페널티 카운트
func (m *Manager) IncPunished() {
	if m == nil {
		return
	}
	m.punished.Inc()
}

// ObserveRatingDelta 레이팅 변화량
func (m *Manager) ObserveRatingDelta(delta float64) {
	if m == nil {
		return
	}
	if delta < 0 {
		delta = -delta
	}
	m.ratingDelta.Observe(delta)
}

// IncRetry 재시도 카운트
func (m *Manager) IncRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// SessionStarted / SessionFinished track the active session gauge.
func (m *Manager) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Manager) SessionFinished() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 엔드포인트 핸들러
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
