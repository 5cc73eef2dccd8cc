package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMonitor(clock *fakeClock, sampler MemorySampler) *Monitor {
	return NewMonitor(MonitorOptions{
		Sampler: sampler,
		Logger:  logger.Discard(),
		Now:     clock.Now,
	})
}

func TestSnapshotEmpty(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestMonitor(clock, nil)

	snap := m.Snapshot()
	assert.Zero(t, snap.RequestCount)
	assert.Zero(t, snap.AvgLatencyMS)
	assert.Zero(t, snap.RequestsPerMinute)
	assert.Empty(t, snap.MemoryHistory)
	assert.Empty(t, snap.RecentErrors)
	assert.NotNil(t, snap.AgentCounts)
	assert.True(t, snap.Healthy)
}

func TestSnapshotAveragesLastTenLatencies(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestMonitor(clock, nil)

	for i := 0; i < 5; i++ {
		m.RecordRequest(domain.RequestRecord{Method: "GET", Path: "/api/agents", Status: "200", Latency: time.Second})
	}
	for i := 0; i < 10; i++ {
		m.RecordRequest(domain.RequestRecord{Method: "GET", Path: "/api/agents", Status: "200", Latency: 50 * time.Millisecond})
	}

	snap := m.Snapshot()
	assert.Equal(t, uint64(15), snap.RequestCount)
	assert.InDelta(t, 50.0, snap.AvgLatencyMS, 0.001)
	assert.True(t, snap.Healthy)
}

func TestSnapshotUnhealthyAboveThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestMonitor(clock, nil)
	m.RecordRequest(domain.RequestRecord{Latency: 250 * time.Millisecond})
	assert.False(t, m.Snapshot().Healthy)
}

func TestRequestsPerMinuteWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestMonitor(clock, nil)

	m.RecordRequest(domain.RequestRecord{Path: "/old"})
	m.RecordRequest(domain.RequestRecord{Path: "/old"})
	clock.Advance(45 * time.Second)
	m.RecordRequest(domain.RequestRecord{Path: "/new"})
	assert.Equal(t, 3, m.Snapshot().RequestsPerMinute)

	clock.Advance(30 * time.Second)
	snap := m.Snapshot()
	assert.Equal(t, 1, snap.RequestsPerMinute)
	assert.Equal(t, uint64(3), snap.RequestCount)
	assert.InDelta(t, 75.0, snap.UptimeSeconds, 0.001)
}

func TestRequestLogIsBounded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestMonitor(clock, nil)
	for i := 0; i < RequestLogCapacity+250; i++ {
		m.RecordRequest(domain.RequestRecord{})
	}
	assert.Equal(t, RequestLogCapacity, m.requests.Len())
	assert.Equal(t, LatencyCapacity, m.latencies.Len())
	assert.Equal(t, uint64(RequestLogCapacity+250), m.Snapshot().RequestCount)
}

func TestSampleMemoryFailureOmitsSample(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	calls := 0
	sampler := MemorySamplerFunc(func() (domain.MemorySample, error) {
		calls++
		if calls == 2 {
			return domain.MemorySample{}, errors.New("rusage unavailable")
		}
		return domain.MemorySample{HeapAlloc: uint64(calls)}, nil
	})
	m := newTestMonitor(clock, sampler)

	m.SampleMemory()
	m.SampleMemory()
	m.SampleMemory()

	history := m.Snapshot().MemoryHistory
	require.Len(t, history, 2)
	assert.Equal(t, uint64(1), history[0].HeapAlloc)
	assert.Equal(t, uint64(3), history[1].HeapAlloc)
	assert.Equal(t, clock.Now(), history[0].Timestamp)
}

func TestMemoryHistoryBounded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestMonitor(clock, MemorySamplerFunc(func() (domain.MemorySample, error) {
		return domain.MemorySample{}, nil
	}))
	for i := 0; i < MemoryCapacity+5; i++ {
		m.SampleMemory()
	}
	assert.Len(t, m.Snapshot().MemoryHistory, MemoryCapacity)
}

func TestRecordErrorAndAgentCounts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := NewMonitor(MonitorOptions{
		Logger:      logger.Discard(),
		Now:         clock.Now,
		AgentCounts: func() map[string]int { return map[string]int{"autonomous": 2} },
	})
	m.RecordError(nil)
	m.RecordError(errors.New("boom"))

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ErrorCount)
	require.Len(t, snap.RecentErrors, 1)
	assert.Equal(t, "boom", snap.RecentErrors[0].Message)
	assert.Equal(t, 2, snap.AgentCounts["autonomous"])
}

func TestStartSamplesImmediatelyAndStops(t *testing.T) {
	var calls atomic.Int32
	m := NewMonitor(MonitorOptions{
		Logger:         logger.Discard(),
		SampleInterval: time.Hour,
		Sampler: MemorySamplerFunc(func() (domain.MemorySample, error) {
			calls.Add(1)
			return domain.MemorySample{}, nil
		}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	m.Start(ctx)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	require.Eventually(t, func() bool {
		m.cronMu.Lock()
		defer m.cronMu.Unlock()
		return m.cron == nil
	}, time.Second, 10*time.Millisecond)
	m.Stop()
}

func TestStopReleasesContextWatcher(t *testing.T) {
	var calls atomic.Int32
	m := NewMonitor(MonitorOptions{
		Logger:         logger.Discard(),
		SampleInterval: time.Hour,
		Sampler: MemorySamplerFunc(func() (domain.MemorySample, error) {
			calls.Add(1)
			return domain.MemorySample{}, nil
		}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for round := 1; round <= 2; round++ {
		m.Start(ctx)
		m.cronMu.Lock()
		done := m.watchDone
		m.cronMu.Unlock()

		m.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("round %d: watcher still running after Stop", round)
		}
	}
	assert.Equal(t, int32(2), calls.Load())
	m.Stop()
}

func TestRuntimeSampler(t *testing.T) {
	sample, err := RuntimeSampler{}.Sample()
	require.NoError(t, err)
	assert.NotZero(t, sample.HeapSys)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestCollectorsRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewCollectors(reg)
	second := MustNewCollectors(reg)

	first.Request("http", "200")
	second.Request("http", "200")
	assert.Equal(t, 2.0, testutil.ToFloat64(first.requestsTotal.WithLabelValues("http", "200")))

	var nilCollectors *Collectors
	assert.NotPanics(t, func() {
		nilCollectors.RunStarted()
		nilCollectors.EventDropped()
	})
}
