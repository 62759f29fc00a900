package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики worker'а и отправителей.
//
// Все методы безопасны для nil-получателя: компоненты, созданные без
// метрик (тесты, CLI), просто ничего не записывают.
type Metrics struct {
	tasksProcessed   *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	executorRestarts *prometheus.CounterVec
	overloadWaits    prometheus.Counter
	overloaded       prometheus.Gauge
	loadAverage      prometheus.Gauge
	emptyPolls       prometheus.Counter
	tasksSent        *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		tasksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskq",
			Name:      "tasks_processed_total",
			Help:      "Envelopes settled by the worker, by outcome.",
		}, []string{"task", "outcome"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskq",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock time from dispatch to outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"task"}),
		executorRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskq",
			Name:      "executor_restarts_total",
			Help:      "Isolation unit restarts, by reason.",
		}, []string{"reason"}),
		overloadWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "taskq",
			Name:      "overload_waits_total",
			Help:      "Loop iterations skipped because load average exceeded max_load.",
		}),
		overloaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskq",
			Name:      "worker_overloaded",
			Help:      "1 while the worker is backing off because of load.",
		}),
		loadAverage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskq",
			Name:      "load_average_1m",
			Help:      "Last sampled one-minute load average.",
		}),
		emptyPolls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "taskq",
			Name:      "empty_polls_total",
			Help:      "Fetch attempts that found no message.",
		}),
		tasksSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskq",
			Name:      "tasks_sent_total",
			Help:      "Envelopes published or executed eagerly, by task.",
		}, []string{"task", "mode"}),
	}
}

// ObserveTask записывает исход и длительность выполнения.
func (m *Metrics) ObserveTask(task, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksProcessed.WithLabelValues(task, outcome).Inc()
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// ExecutorRestarted увеличивает счётчик перезапусков единицы.
func (m *Metrics) ExecutorRestarted(reason string) {
	if m == nil {
		return
	}
	m.executorRestarts.WithLabelValues(reason).Inc()
}

// LoadSampled записывает значение load average и флаг перегрузки.
func (m *Metrics) LoadSampled(load float64, overloaded bool) {
	if m == nil {
		return
	}
	m.loadAverage.Set(load)
	if overloaded {
		m.overloaded.Set(1)
		m.overloadWaits.Inc()
	} else {
		m.overloaded.Set(0)
	}
}

// EmptyPoll увеличивает счётчик пустых fetch.
func (m *Metrics) EmptyPoll() {
	if m == nil {
		return
	}
	m.emptyPolls.Inc()
}

// TaskSent увеличивает счётчик отправок (mode: "queue" или "eager").
func (m *Metrics) TaskSent(task, mode string) {
	if m == nil {
		return
	}
	m.tasksSent.WithLabelValues(task, mode).Inc()
}
