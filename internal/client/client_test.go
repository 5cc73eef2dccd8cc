package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bcrosbie/agentforge/internal/config"
	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/logger"
	"github.com/bcrosbie/agentforge/internal/service"
	grpcx "github.com/bcrosbie/agentforge/internal/transport/grpc"
)

func startEngine(t *testing.T) *Client {
	t.Helper()
	cfg := config.Defaults().Engine
	cfg.StepLatencyMin = 0
	cfg.StepLatencyMax = 0
	cfg.AdmissionRPS = 0
	cfg.DemoDelay = 0
	engine, err := service.New(service.Options{
		Engine:     cfg,
		Registerer: prometheus.NewRegistry(),
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.ErrorUnaryInterceptor()),
		grpc.ChainStreamInterceptor(grpcx.ErrorStreamInterceptor()),
	)
	grpcx.RegisterEngineServer(server, grpcx.NewEngineHandler(engine))
	go func() { _ = server.Serve(listener) }()

	c, err := New(Config{Addr: listener.Addr().String(), RequestTimeout: 5 * time.Second, RetryAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = engine.Close()
		server.Stop()
	})
	return c
}

func TestClientRoundTrip(t *testing.T) {
	c := startEngine(t)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health["status"])

	catalog, err := c.Capabilities(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog.AgentTypes, 4)

	caps, err := c.CapabilitiesFor(ctx, "collaborative")
	require.NoError(t, err)
	assert.Contains(t, caps, "pair_programming")

	agent, err := c.CreateAgent(ctx, "autonomous", map[string]any{"model": "local"})
	require.NoError(t, err)
	assert.Equal(t, domain.AgentAutonomous, agent.Type)

	result, err := c.ExecuteTask(ctx, agent.ID, domain.Task{Type: "refactor_codebase", Description: "Split handlers"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Steps, 5)
	assert.Equal(t, "Scan Codebase", result.Steps[0].Name)

	run, err := c.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, run.RunID)

	runs, err := c.ListRuns(ctx, RunQuery{AgentID: agent.ID})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	report, err := c.RunStressTest(ctx, domain.StressRequest{AgentCount: 2, TaskCount: 4, ConcurrencyLimit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, report.TasksCompleted+len(report.Errors))

	snapshot, err := c.Metrics(ctx)
	require.NoError(t, err)
	total := 0
	for _, n := range snapshot.AgentCounts {
		total += n
	}
	assert.Equal(t, 3, total)

	agents, err := c.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 3)

	require.NoError(t, c.RemoveAgent(ctx, agent.ID))
	_, err = c.GetAgent(ctx, agent.ID)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestClientSubscribe(t *testing.T) {
	c := startEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	joined := make(chan struct{})
	events := make(chan domain.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Subscribe(ctx, "cli-watch", func(event domain.Event) error {
			if event.Type == domain.EventSessionJoined {
				close(joined)
				return nil
			}
			events <- event
			if event.Type == domain.EventTaskCompleted {
				return errStop
			}
			return nil
		})
	}()

	select {
	case <-joined:
	case <-ctx.Done():
		t.Fatal("no join ack")
	}

	agent, err := c.StartDemo(ctx, DemoInput{Type: "specialized"})
	require.NoError(t, err)

	err = <-done
	require.ErrorIs(t, err, errStop)
	close(events)

	types := []domain.EventType{}
	for event := range events {
		assert.Equal(t, agent.ID, event.AgentID)
		types = append(types, event.Type)
	}
	require.Len(t, types, 7)
	assert.Equal(t, domain.EventAgentCreated, types[0])
	assert.Equal(t, domain.EventTaskCompleted, types[6])
}

var errStop = errors.New("stop")

func TestLoadConfigFromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AGENTFORGE_ADDR", "")

	cfg, path, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/agentforge/client.yaml"), path)
	assert.Equal(t, DefaultConfig(), cfg)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("addr: engine.internal:443\nrequest_timeout: 3s\nretry_attempts: 5\n"), 0o600))
	cfg, _, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "engine.internal:443", cfg.Addr)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.RetryAttempts)

	t.Setenv("AGENTFORGE_ADDR", "127.0.0.1:6000")
	cfg, _, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.Addr)

	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated\n"), 0o600))
	_, _, err = LoadConfig()
	require.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(status.Error(codes.Unavailable, "down")))
	assert.False(t, isRetryable(status.Error(codes.ResourceExhausted, "slow down")))
	assert.False(t, isRetryable(errors.New("plain")))
}
