package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/rpccontract"
)

// Client talks to the engine's gRPC service. Unary calls that fail with
// Unavailable are retried with linear backoff.
type Client struct {
	conn          *grpc.ClientConn
	requestTO     time.Duration
	retryAttempts int
}

type CapabilityCatalog struct {
	AgentTypes map[domain.AgentType]domain.AgentTypeInfo `json:"agent_types"`
}

type ExecuteResult struct {
	Success bool                `json:"success"`
	RunID   string              `json:"run_id"`
	Results []domain.StepResult `json:"results"`
	Steps   []domain.Step       `json:"steps"`
	Agent   domain.Agent        `json:"agent"`
}

type DemoInput struct {
	Type        string
	Config      map[string]any
	DemoTask    string
	Description string
	Complexity  string
}

type RunQuery struct {
	AgentID  string
	TaskType string
	Status   string
	Limit    int
}

func New(cfg Config) (*Client, error) {
	cfg = normalize(cfg)
	cred := grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}))
	if cfg.Insecure || strings.HasPrefix(cfg.Addr, "127.0.0.1:") || strings.HasPrefix(cfg.Addr, "localhost:") {
		cred = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(
		cfg.Addr,
		cred,
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                25 * time.Second,
			Timeout:             6 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}
	conn.Connect()

	return &Client{
		conn:          conn,
		requestTO:     cfg.RequestTimeout,
		retryAttempts: cfg.RetryAttempts,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	response := &structpb.Struct{}
	if err := c.invoke(ctx, rpccontract.MethodGetHealth, &emptypb.Empty{}, response); err != nil {
		return nil, err
	}
	return response.AsMap(), nil
}

func (c *Client) Capabilities(ctx context.Context) (CapabilityCatalog, error) {
	return invokeStruct[CapabilityCatalog](ctx, c, rpccontract.MethodGetCapabilities, map[string]any{})
}

func (c *Client) CapabilitiesFor(ctx context.Context, agentType string) ([]string, error) {
	out, err := invokeStruct[struct {
		Capabilities []string `json:"capabilities"`
	}](ctx, c, rpccontract.MethodGetCapabilities, map[string]any{"type": strings.TrimSpace(agentType)})
	return out.Capabilities, err
}

func (c *Client) CreateAgent(ctx context.Context, agentType string, config map[string]any) (domain.Agent, error) {
	payload := map[string]any{"type": strings.TrimSpace(agentType)}
	if config != nil {
		payload["config"] = config
	}
	return invokeStruct[domain.Agent](ctx, c, rpccontract.MethodCreateAgent, payload)
}

func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	response := &structpb.ListValue{}
	if err := c.invoke(ctx, rpccontract.MethodListAgents, &emptypb.Empty{}, response); err != nil {
		return nil, err
	}
	return decode[[]domain.Agent](response.AsSlice())
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (domain.Agent, error) {
	return invokeStruct[domain.Agent](ctx, c, rpccontract.MethodGetAgent, map[string]any{"agent_id": strings.TrimSpace(agentID)})
}

func (c *Client) RemoveAgent(ctx context.Context, agentID string) error {
	_, err := invokeStruct[map[string]any](ctx, c, rpccontract.MethodRemoveAgent, map[string]any{"agent_id": strings.TrimSpace(agentID)})
	return err
}

func (c *Client) ExecuteTask(ctx context.Context, agentID string, task domain.Task) (ExecuteResult, error) {
	return invokeStruct[ExecuteResult](ctx, c, rpccontract.MethodExecuteTask, map[string]any{
		"agent_id": strings.TrimSpace(agentID),
		"task": map[string]any{
			"type":        strings.TrimSpace(task.Type),
			"description": strings.TrimSpace(task.Description),
			"complexity":  strings.TrimSpace(task.Complexity),
		},
	})
}

func (c *Client) StartDemo(ctx context.Context, input DemoInput) (domain.Agent, error) {
	payload := map[string]any{
		"type":        strings.TrimSpace(input.Type),
		"demo_task":   strings.TrimSpace(input.DemoTask),
		"description": strings.TrimSpace(input.Description),
		"complexity":  strings.TrimSpace(input.Complexity),
	}
	if input.Config != nil {
		payload["config"] = input.Config
	}
	return invokeStruct[domain.Agent](ctx, c, rpccontract.MethodStartDemo, payload)
}

func (c *Client) Metrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	response := &structpb.Struct{}
	if err := c.invoke(ctx, rpccontract.MethodGetMetrics, &emptypb.Empty{}, response); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	return decode[domain.MetricsSnapshot](response.AsMap())
}

func (c *Client) RunStressTest(ctx context.Context, request domain.StressRequest) (domain.StressReport, error) {
	return invokeStruct[domain.StressReport](ctx, c, rpccontract.MethodRunStressTest, map[string]any{
		"agent_count":       request.AgentCount,
		"task_count":        request.TaskCount,
		"concurrency_limit": request.ConcurrencyLimit,
	})
}

func (c *Client) GetRun(ctx context.Context, runID string) (domain.RunResult, error) {
	return invokeStruct[domain.RunResult](ctx, c, rpccontract.MethodGetRun, map[string]any{"run_id": strings.TrimSpace(runID)})
}

func (c *Client) ListRuns(ctx context.Context, query RunQuery) ([]domain.RunRecord, error) {
	request, err := structpb.NewStruct(map[string]any{
		"agent_id":  strings.TrimSpace(query.AgentID),
		"task_type": strings.TrimSpace(query.TaskType),
		"status":    strings.TrimSpace(query.Status),
		"limit":     query.Limit,
	})
	if err != nil {
		return nil, err
	}
	response := &structpb.ListValue{}
	if err := c.invoke(ctx, rpccontract.MethodListRuns, request, response); err != nil {
		return nil, err
	}
	return decode[[]domain.RunRecord](response.AsSlice())
}

func (c *Client) Subscribe(ctx context.Context, sessionID string, handle func(domain.Event) error) error {
	request, err := structpb.NewStruct(map[string]any{"session_id": strings.TrimSpace(sessionID)})
	if err != nil {
		return err
	}
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Subscribe",
		ServerStreams: true,
	}, rpccontract.MethodSubscribe)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(request); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		message := &structpb.Struct{}
		if err := stream.RecvMsg(message); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		event, err := decode[domain.Event](message.AsMap())
		if err != nil {
			return err
		}
		if err := handle(event); err != nil {
			return err
		}
	}
}

func invokeStruct[T any](ctx context.Context, c *Client, method string, payload map[string]any) (T, error) {
	var zero T
	request, err := structpb.NewStruct(payload)
	if err != nil {
		return zero, err
	}
	response := &structpb.Struct{}
	if err := c.invoke(ctx, method, request, response); err != nil {
		return zero, err
	}
	return decode[T](response.AsMap())
}

func (c *Client) invoke(ctx context.Context, method string, request, response proto.Message) error {
	attempts := c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}
	_, longRunning := rpccontract.LongRunningMethods[method]

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if !longRunning && c.requestTO > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.requestTO)
		}
		invokeErr := c.conn.Invoke(callCtx, method, request, response)
		cancel()
		if invokeErr == nil {
			return nil
		}
		lastErr = invokeErr
		if !isRetryable(invokeErr) || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
		}
	}
	return lastErr
}

func decode[T any](value any) (T, error) {
	var out T
	serialized, err := json.Marshal(value)
	if err != nil {
		return out, fmt.Errorf("encode response: %w", err)
	}
	if err := json.Unmarshal(serialized, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func isRetryable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
