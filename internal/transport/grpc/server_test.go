package grpcx

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bcrosbie/agentforge/internal/config"
	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/logger"
	"github.com/bcrosbie/agentforge/internal/service"
)

func newTestHandler(t *testing.T) *EngineHandler {
	t.Helper()
	cfg := config.Defaults().Engine
	cfg.StepLatencyMin = 0
	cfg.StepLatencyMax = 0
	cfg.AdmissionRPS = 0
	engine, err := service.New(service.Options{
		Engine:     cfg,
		Registerer: prometheus.NewRegistry(),
		Logger:     logger.Discard(),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return NewEngineHandler(engine)
}

func mustStruct(t *testing.T, value map[string]any) *structpb.Struct {
	t.Helper()
	out, err := structpb.NewStruct(value)
	if err != nil {
		t.Fatalf("failed to build struct: %v", err)
	}
	return out
}

type chanStream struct {
	grpc.ServerStream
	ctx  context.Context
	sent chan *structpb.Struct
}

func (s *chanStream) Context() context.Context { return s.ctx }

func (s *chanStream) Send(message *structpb.Struct) error {
	s.sent <- message
	return nil
}

func TestHandlerCreateAndExecute(t *testing.T) {
	handler := newTestHandler(t)
	ctx := context.Background()

	created, err := handler.CreateAgent(ctx, mustStruct(t, map[string]any{"type": "autonomous"}))
	if err != nil {
		t.Fatalf("create agent failed: %v", err)
	}
	agentID := created.AsMap()["id"].(string)

	response, err := handler.ExecuteTask(ctx, mustStruct(t, map[string]any{
		"agent_id": agentID,
		"task":     map[string]any{"type": "create_component", "description": "Navbar"},
	}))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	body := response.AsMap()
	if body["success"] != true {
		t.Fatalf("expected success, got %#v", body["success"])
	}
	if results := body["results"].([]any); len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	run, err := handler.GetRun(ctx, mustStruct(t, map[string]any{"run_id": body["run_id"]}))
	if err != nil {
		t.Fatalf("get run failed: %v", err)
	}
	if run.AsMap()["success"] != true {
		t.Fatalf("expected stored run to be successful")
	}

	runs, err := handler.ListRuns(ctx, mustStruct(t, map[string]any{"agent_id": agentID}))
	if err != nil {
		t.Fatalf("list runs failed: %v", err)
	}
	if len(runs.GetValues()) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs.GetValues()))
	}

	agents, err := handler.ListAgents(ctx, &emptypb.Empty{})
	if err != nil || len(agents.GetValues()) != 1 {
		t.Fatalf("expected 1 agent, got %v err=%v", agents, err)
	}
}

func TestHandlerUnknownAgentIsAppError(t *testing.T) {
	handler := newTestHandler(t)
	_, err := handler.ExecuteTask(context.Background(), mustStruct(t, map[string]any{"agent_id": "agent_missing"}))
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Code != domain.CodeNotFound {
		t.Fatalf("expected not found AppError, got %#v", err)
	}
}

func TestHandlerCapabilities(t *testing.T) {
	handler := newTestHandler(t)
	all, err := handler.GetCapabilities(context.Background(), &structpb.Struct{})
	if err != nil {
		t.Fatalf("capabilities failed: %v", err)
	}
	if types := all.AsMap()["agent_types"].(map[string]any); len(types) != 4 {
		t.Fatalf("expected 4 agent types, got %d", len(types))
	}

	one, err := handler.GetCapabilities(context.Background(), mustStruct(t, map[string]any{"type": "specialized"}))
	if err != nil {
		t.Fatalf("capabilities failed: %v", err)
	}
	if caps := one.AsMap()["capabilities"].([]any); len(caps) != 8 {
		t.Fatalf("expected 8 capabilities, got %d", len(caps))
	}
}

func TestHandlerSubscribeStreamsEvents(t *testing.T) {
	handler := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	stream := &chanStream{ctx: ctx, sent: make(chan *structpb.Struct, 8)}

	done := make(chan error, 1)
	go func() {
		done <- handler.Subscribe(mustStruct(t, map[string]any{"session_id": "grpc-1"}), stream)
	}()

	first := receive(t, stream.sent)
	if first.AsMap()["type"] != string(domain.EventSessionJoined) {
		t.Fatalf("expected join ack first, got %#v", first.AsMap()["type"])
	}

	if _, err := handler.CreateAgent(context.Background(), mustStruct(t, map[string]any{"type": "collaborative"})); err != nil {
		t.Fatalf("create agent failed: %v", err)
	}
	second := receive(t, stream.sent)
	if second.AsMap()["type"] != string(domain.EventAgentCreated) {
		t.Fatalf("expected agent_created, got %#v", second.AsMap()["type"])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stream end, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscribe did not return after cancel")
	}
}

func receive(t *testing.T, ch <-chan *structpb.Struct) *structpb.Struct {
	t.Helper()
	select {
	case message := <-ch:
		return message
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for stream message")
		return nil
	}
}
