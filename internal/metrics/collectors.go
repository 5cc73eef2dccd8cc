package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agentforge"

// Collectors exports engine activity to Prometheus. A nil *Collectors is a
// valid no-op.
type Collectors struct {
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	stepDuration      *prometheus.HistogramVec
	runsActive        prometheus.Gauge
	agentsCreated     *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	requestsTotal     *prometheus.CounterVec
	admissionRejected prometheus.Counter
	journalFailures   prometheus.Counter
}

func MustNewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Collectors{
		runsTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Finished agent task runs by outcome.",
		}, []string{"status"})),
		runDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of agent task runs.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"task_type"})),
		stepDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "step_latency_seconds",
			Help:      "Simulated latency of executed steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"})),
		runsActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_active",
			Help:      "Runs currently executing.",
		})),
		agentsCreated: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "agents_created_total",
			Help:      "Agents created by type.",
		}, []string{"type"})),
		eventsDropped: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber queue was full.",
		})),
		requestsTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Inbound requests by transport and status.",
		}, []string{"transport", "status"})),
		admissionRejected: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "admission_rejected_total",
			Help:      "Task executions rejected by the admission limiter.",
		})),
		journalFailures: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_failures_total",
			Help:      "Run journal writes that failed or were short-circuited.",
		})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (c *Collectors) RunStarted() {
	if c == nil {
		return
	}
	c.runsActive.Inc()
}

func (c *Collectors) RunFinished(taskType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsActive.Dec()
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

func (c *Collectors) ObserveStep(kind string, latency time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(kind).Observe(latency.Seconds())
}

func (c *Collectors) AgentCreated(agentType string) {
	if c == nil {
		return
	}
	c.agentsCreated.WithLabelValues(agentType).Inc()
}

func (c *Collectors) EventDropped() {
	if c == nil {
		return
	}
	c.eventsDropped.Inc()
}

func (c *Collectors) Request(transport, status string) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(transport, status).Inc()
}

func (c *Collectors) AdmissionRejected() {
	if c == nil {
		return
	}
	c.admissionRejected.Inc()
}

func (c *Collectors) JournalFailure() {
	if c == nil {
		return
	}
	c.journalFailures.Inc()
}
