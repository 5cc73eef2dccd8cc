package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bcrosbie/agentforge/internal/domain"
)

const (
	RequestLogCapacity = 1000
	LatencyCapacity    = 100
	MemoryCapacity     = 100
	ErrorCapacity      = 100

	latencyWindow    = 10
	rpmWindow        = time.Minute
	healthyLatencyMS = 200
)

type MemorySampler interface {
	Sample() (domain.MemorySample, error)
}

type MemorySamplerFunc func() (domain.MemorySample, error)

func (f MemorySamplerFunc) Sample() (domain.MemorySample, error) { return f() }

type MonitorOptions struct {
	Sampler        MemorySampler
	SampleInterval time.Duration
	AgentCounts func() map[string]int
	Collectors  *Collectors
	Logger      *slog.Logger
	Now         func() time.Time
}

type Monitor struct {
	opts    MonitorOptions
	started time.Time

	mu           sync.Mutex
	requests     *RingBuffer[domain.RequestRecord]
	latencies    *RingBuffer[domain.MetricSample]
	memory       *RingBuffer[domain.MemorySample]
	errors       *RingBuffer[domain.ErrorRecord]
	requestCount uint64
	errorCount   uint64

	cronMu    sync.Mutex
	cron      *cron.Cron
	stop      chan struct{}
	watchDone chan struct{}
}

func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.Sampler == nil {
		opts.Sampler = RuntimeSampler{}
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		opts:      opts,
		started:   opts.Now(),
		requests:  NewRingBuffer[domain.RequestRecord](RequestLogCapacity),
		latencies: NewRingBuffer[domain.MetricSample](LatencyCapacity),
		memory:    NewRingBuffer[domain.MemorySample](MemoryCapacity),
		errors:    NewRingBuffer[domain.ErrorRecord](ErrorCapacity),
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.cronMu.Lock()
	if m.cron != nil {
		m.cronMu.Unlock()
		return
	}
	c := cron.New()
	c.Schedule(cron.Every(m.opts.SampleInterval), cron.FuncJob(m.SampleMemory))
	c.Start()
	stop, done := make(chan struct{}), make(chan struct{})
	m.cron, m.stop, m.watchDone = c, stop, done
	m.cronMu.Unlock()

	m.SampleMemory()
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			m.Stop()
		case <-stop:
		}
	}()
}

func (m *Monitor) Stop() {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()
	if m.cron == nil {
		return
	}
	close(m.stop)
	<-m.cron.Stop().Done()
	m.cron, m.stop = nil, nil
}

func (m *Monitor) SampleMemory() {
	sample, err := m.opts.Sampler.Sample()
	if err != nil {
		m.opts.Logger.Warn("memory sample failed", "error", err)
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.opts.Now()
	}
	m.mu.Lock()
	m.memory.Push(sample)
	m.mu.Unlock()
}

func (m *Monitor) RecordRequest(rec domain.RequestRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.opts.Now()
	}
	m.mu.Lock()
	m.requests.Push(rec)
	m.latencies.Push(domain.MetricSample{
		Timestamp: rec.Timestamp,
		Value:     float64(rec.Latency) / float64(time.Millisecond),
	})
	m.requestCount++
	m.mu.Unlock()
	m.opts.Collectors.Request(rec.Transport, rec.Status)
}

func (m *Monitor) RecordError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.errors.Push(domain.ErrorRecord{Timestamp: m.opts.Now(), Message: err.Error()})
	m.errorCount++
	m.mu.Unlock()
}

func (m *Monitor) Snapshot() domain.MetricsSnapshot {
	now := m.opts.Now()

	m.mu.Lock()
	avg := averageLatency(m.latencies.Last(latencyWindow))
	rpm := requestsSince(m.requests.Values(), now.Add(-rpmWindow))
	snap := domain.MetricsSnapshot{
		UptimeSeconds:     now.Sub(m.started).Seconds(),
		RequestCount:      m.requestCount,
		AvgLatencyMS:      avg,
		RequestsPerMinute: rpm,
		MemoryHistory:     m.memory.Values(),
		ErrorCount:        m.errorCount,
		RecentErrors:      m.errors.Values(),
		Healthy:           avg < healthyLatencyMS,
	}
	m.mu.Unlock()

	snap.AgentCounts = map[string]int{}
	if m.opts.AgentCounts != nil {
		snap.AgentCounts = m.opts.AgentCounts()
	}
	snap.Goroutines = runtime.NumGoroutine()
	return snap
}

func averageLatency(samples []domain.MetricSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, sample := range samples {
		total += sample.Value
	}
	return total / float64(len(samples))
}

func requestsSince(records []domain.RequestRecord, since time.Time) int {
	count := 0
	for _, rec := range records {
		if rec.Timestamp.After(since) {
			count++
		}
	}
	return count
}
