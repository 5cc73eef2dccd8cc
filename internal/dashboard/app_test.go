package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrosbie/agentforge/internal/client"
	"github.com/bcrosbie/agentforge/internal/domain"
)

type fakeSource struct {
	snapshot domain.MetricsSnapshot
	agents   []domain.Agent
	demoType string
	err      error
}

func (f *fakeSource) Metrics(context.Context) (domain.MetricsSnapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeSource) ListAgents(context.Context) ([]domain.Agent, error) {
	return f.agents, f.err
}

func (f *fakeSource) Subscribe(ctx context.Context, _ string, _ func(domain.Event) error) error {
	<-ctx.Done()
	return nil
}

func (f *fakeSource) StartDemo(_ context.Context, input client.DemoInput) (domain.Agent, error) {
	f.demoType = input.Type
	return domain.Agent{ID: "agent_demo", Type: domain.AgentType(input.Type)}, f.err
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out, cmd
}

func TestSnapshotRendersOverview(t *testing.T) {
	source := &fakeSource{
		snapshot: domain.MetricsSnapshot{
			UptimeSeconds: 90,
			RequestCount:  42,
			AvgLatencyMS:  12.5,
			AgentCounts:   map[string]int{"autonomous": 2, "multimodal": 1},
			Healthy:       true,
			MemoryHistory: []domain.MemorySample{{HeapAlloc: 3 << 20, Sys: 10 << 20}},
		},
		agents: []domain.Agent{{ID: "agent_1", Type: domain.AgentAutonomous, Status: domain.StatusIdle, CompletedTasks: 3}},
	}
	m := newModel(context.Background(), source)
	assert.Contains(t, m.View(), "waiting for metrics")

	msg := fetchCmd(m.ctx, source)()
	m, _ = update(t, m, msg)

	view := m.View()
	assert.Contains(t, view, "1m30s")
	assert.Contains(t, view, "42")
	assert.Contains(t, view, "autonomous=2  multimodal=1")
	assert.Contains(t, view, "agent_1")
	assert.Contains(t, view, "3.0 MiB")
}

func TestSnapshotErrorShowsInStatusLine(t *testing.T) {
	source := &fakeSource{err: errors.New("unavailable")}
	m := newModel(context.Background(), source)
	m, _ = update(t, m, fetchCmd(m.ctx, source)())
	assert.Contains(t, m.View(), "metrics failed: unavailable")
}

func TestEventsAreTrimmedAndShownOnEventsScreen(t *testing.T) {
	m := newModel(context.Background(), &fakeSource{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, screenEvents, m.screen)
	assert.Contains(t, m.View(), "no events yet")

	for i := 0; i < maxEventLines+3; i++ {
		m, _ = update(t, m, eventMsg(domain.Event{
			Type:      domain.EventAgentProgress,
			AgentID:   "agent_x",
			Timestamp: time.Now(),
			Payload:   map[string]any{"step": i + 1, "total_steps": 5, "current_step": "Plan"},
		}))
	}
	assert.Len(t, m.eventLines, maxEventLines)
	assert.True(t, strings.Contains(m.View(), "agent_progress"))
	assert.Contains(t, m.eventLines[len(m.eventLines)-1], "15/5 Plan")
}

func TestDemoKeyStartsDemo(t *testing.T) {
	source := &fakeSource{}
	m := newModel(context.Background(), source)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	require.NotNil(t, cmd)
	assert.Contains(t, m.statusLine, "starting demo")

	m, _ = update(t, m, cmd())
	assert.Equal(t, demoAgentType, source.demoType)
	assert.Contains(t, m.statusLine, "agent_demo")
}

func TestQuitKey(t *testing.T) {
	m := newModel(context.Background(), &fakeSource{})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStreamClosedUpdatesStatus(t *testing.T) {
	m := newModel(context.Background(), &fakeSource{})
	m, _ = update(t, m, streamClosedMsg{err: errors.New("reset")})
	assert.Contains(t, m.statusLine, "event stream closed: reset")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 GiB", formatBytes(2<<30))
}
