package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"autorun/internal/loop"
)

const namespace = "autorun"

// Metrics holds the loop collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	iterations   prometheus.Counter
	configErrors prometheus.Counter
	taskRuns     *prometheus.CounterVec
	taskDuration prometheus.Histogram
	interval     prometheus.Gauge
	state        *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Iterations whose configuration loaded and whose task was started.",
		}),
		configErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_errors_total",
			Help:      "Configuration loads that failed.",
		}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Finished task runs by result.",
		}, []string{"result"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of task runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interval_seconds",
			Help:      "Pause between runs chosen by the latest configuration load.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current loop state (1 for the active state).",
		}, []string{"state"}),
	}
	m.reg.MustRegister(
		m.iterations, m.configErrors, m.taskRuns, m.taskDuration, m.interval, m.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.setState(loop.StateLoadConfig)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Observe(_ context.Context, ev loop.Event) {
	m.setState(ev.To)

	switch {
	case ev.From == loop.StateLoadConfig && ev.To == loop.StateRunTask:
		m.iterations.Inc()
		m.interval.Set(ev.Interval.Seconds())
	case ev.From == loop.StateLoadConfig && ev.To == loop.StateFailed:
		m.configErrors.Inc()
	case ev.TaskFinished():
		result := "ok"
		if ev.Err != nil {
			result = "failed"
		}
		m.taskRuns.WithLabelValues(result).Inc()
		m.taskDuration.Observe(ev.TaskDuration.Seconds())
	}
}

func (m *Metrics) setState(cur loop.State) {
	for _, s := range loop.States {
		v := 0.0
		if s == cur {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}
