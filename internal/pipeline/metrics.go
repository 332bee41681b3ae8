package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: запуски по итоговому статусу
	RunsTotal *prometheus.CounterVec

	// Latency: длительность шага по типу модуля
	StepDuration *prometheus.HistogramVec

	// Доставка: назначения и каналы
	DispatchTotal *prometheus.CounterVec
	NotifyTotal   *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker модели (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// История: заполненность буфера (backpressure)
	HistoryBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RunsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agent_runs_total",
			Help: "Total number of agent runs by final status.",
		}, []string{"agent_id", "status"}),

		StepDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_step_duration_seconds",
			Help:    "Histogram of module step latencies.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"module_type", "status"}),

		DispatchTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agent_dispatch_total",
			Help: "Destination deliveries by target type and status.",
		}, []string{"target_type", "status"}),

		NotifyTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agent_notify_total",
			Help: "Channel notifications by channel type and status.",
		}, []string{"channel_type", "status"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_model_circuit_breaker_state",
			Help: "Current state of the model circuit breaker (0=closed, 1=open).",
		}, []string{"provider"}),

		HistoryBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agent_history_buffer_utilization",
			Help: "Current number of execution logs waiting in the history buffer.",
		}),
	}
}

// BreakerObserver возвращает колбэк для llm.ReliabilityConfig.OnBreakerChange.
func (m *Metrics) BreakerObserver() func(name string, open bool) {
	return func(name string, open bool) {
		v := 0.0
		if open {
			v = 1
		}
		m.CircuitBreakerState.WithLabelValues(name).Set(v)
	}
}
