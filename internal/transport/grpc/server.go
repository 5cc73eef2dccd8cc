package grpcx

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/rpccontract"
	"github.com/bcrosbie/agentforge/internal/service"
)

type EngineRPCServer interface {
	GetHealth(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetCapabilities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAgents(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExecuteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartDemo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMetrics(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RunStressTest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	Subscribe(*structpb.Struct, EventStream) error
}

type EventStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(event *structpb.Struct) error {
	return s.ServerStream.SendMsg(event)
}

type EngineHandler struct {
	engine *service.EngineService
}

func NewEngineHandler(engine *service.EngineService) *EngineHandler {
	return &EngineHandler{engine: engine}
}

func RegisterEngineServer(server *grpc.Server, handler EngineRPCServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: rpccontract.ServiceName,
		HandlerType: (*EngineRPCServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetHealth", Handler: unaryHandler(rpccontract.MethodGetHealth, EngineRPCServer.GetHealth)},
			{MethodName: "GetCapabilities", Handler: unaryHandler(rpccontract.MethodGetCapabilities, EngineRPCServer.GetCapabilities)},
			{MethodName: "CreateAgent", Handler: unaryHandler(rpccontract.MethodCreateAgent, EngineRPCServer.CreateAgent)},
			{MethodName: "ListAgents", Handler: unaryHandler(rpccontract.MethodListAgents, EngineRPCServer.ListAgents)},
			{MethodName: "GetAgent", Handler: unaryHandler(rpccontract.MethodGetAgent, EngineRPCServer.GetAgent)},
			{MethodName: "RemoveAgent", Handler: unaryHandler(rpccontract.MethodRemoveAgent, EngineRPCServer.RemoveAgent)},
			{MethodName: "ExecuteTask", Handler: unaryHandler(rpccontract.MethodExecuteTask, EngineRPCServer.ExecuteTask)},
			{MethodName: "StartDemo", Handler: unaryHandler(rpccontract.MethodStartDemo, EngineRPCServer.StartDemo)},
			{MethodName: "GetMetrics", Handler: unaryHandler(rpccontract.MethodGetMetrics, EngineRPCServer.GetMetrics)},
			{MethodName: "RunStressTest", Handler: unaryHandler(rpccontract.MethodRunStressTest, EngineRPCServer.RunStressTest)},
			{MethodName: "GetRun", Handler: unaryHandler(rpccontract.MethodGetRun, EngineRPCServer.GetRun)},
			{MethodName: "ListRuns", Handler: unaryHandler(rpccontract.MethodListRuns, EngineRPCServer.ListRuns)},
		},
		Streams: []grpc.StreamDesc{
			{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
		},
		Metadata: "proto/agentforge/v1/engine.proto",
	}, handler)
}

type agentRef struct {
	AgentID string `json:"agent_id"`
}

type runRef struct {
	RunID string `json:"run_id"`
}

type capabilitiesRequest struct {
	Type string `json:"type"`
}

type subscribeRequest struct {
	SessionID string `json:"session_id"`
}

func (h *EngineHandler) GetHealth(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(h.engine.Health())
}

func (h *EngineHandler) GetCapabilities(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[capabilitiesRequest](request)
	if err != nil {
		return nil, err
	}
	if decoded.Type != "" {
		return toStruct(map[string]any{
			"type":         decoded.Type,
			"capabilities": h.engine.CapabilitiesFor(decoded.Type),
		})
	}
	return toStruct(map[string]any{"agent_types": h.engine.Capabilities()})
}

func (h *EngineHandler) CreateAgent(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[service.CreateAgentRequest](request)
	if err != nil {
		return nil, err
	}
	agent, err := h.engine.CreateAgent(decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(agent)
}

func (h *EngineHandler) ListAgents(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	return toList(h.engine.ListAgents())
}

func (h *EngineHandler) GetAgent(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[agentRef](request)
	if err != nil {
		return nil, err
	}
	agent, err := h.engine.GetAgent(decoded.AgentID)
	if err != nil {
		return nil, err
	}
	return toStruct(agent)
}

func (h *EngineHandler) RemoveAgent(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[agentRef](request)
	if err != nil {
		return nil, err
	}
	if err := h.engine.RemoveAgent(decoded.AgentID); err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"ok": true})
}

func (h *EngineHandler) ExecuteTask(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[service.ExecuteTaskRequest](request)
	if err != nil {
		return nil, err
	}
	response, err := h.engine.ExecuteTask(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(response)
}

func (h *EngineHandler) StartDemo(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[service.DemoRequest](request)
	if err != nil {
		return nil, err
	}
	agent, err := h.engine.StartDemo(decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(agent)
}

func (h *EngineHandler) GetMetrics(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(h.engine.MetricsSnapshot())
}

func (h *EngineHandler) RunStressTest(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[domain.StressRequest](request)
	if err != nil {
		return nil, err
	}
	report, err := h.engine.RunStressTest(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(report)
}

func (h *EngineHandler) GetRun(_ context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[runRef](request)
	if err != nil {
		return nil, err
	}
	run, err := h.engine.GetRun(decoded.RunID)
	if err != nil {
		return nil, err
	}
	return toStruct(run)
}

func (h *EngineHandler) ListRuns(ctx context.Context, request *structpb.Struct) (*structpb.ListValue, error) {
	decoded, err := decodeStruct[service.ListRunsRequest](request)
	if err != nil {
		return nil, err
	}
	runs, err := h.engine.ListRuns(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toList(runs)
}

func (h *EngineHandler) Subscribe(request *structpb.Struct, stream EventStream) error {
	decoded, err := decodeStruct[subscribeRequest](request)
	if err != nil {
		return err
	}
	sub := h.engine.Subscribe(decoded.SessionID)
	defer h.engine.Unsubscribe(sub)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			message, err := toStruct(event)
			if err != nil {
				return err
			}
			if err := stream.Send(message); err != nil {
				return err
			}
		}
	}
}

func toStruct(value any) (*structpb.Struct, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return nil, domain.Internal("failed to encode response", err)
	}

	decoded := map[string]any{}
	if err := json.Unmarshal(serialized, &decoded); err != nil {
		return nil, domain.Internal("failed to shape response object", err)
	}
	result, err := structpb.NewStruct(decoded)
	if err != nil {
		return nil, domain.Internal("failed to convert response to protobuf struct", err)
	}
	return result, nil
}

func toList(value any) (*structpb.ListValue, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return nil, domain.Internal("failed to encode response list", err)
	}

	decoded := []any{}
	if err := json.Unmarshal(serialized, &decoded); err != nil {
		return nil, domain.Internal("failed to shape response list", err)
	}
	result, err := structpb.NewList(decoded)
	if err != nil {
		return nil, domain.Internal("failed to convert response to protobuf list", err)
	}
	return result, nil
}

func decodeStruct[T any](input *structpb.Struct) (T, error) {
	var out T
	if input == nil {
		return out, nil
	}
	serialized, err := json.Marshal(input.AsMap())
	if err != nil {
		return out, domain.InvalidArgument("request payload could not be encoded")
	}
	if err := json.Unmarshal(serialized, &out); err != nil {
		return out, domain.InvalidArgument("request payload shape is invalid")
	}
	return out, nil
}

// unaryHandler builds the grpc.MethodHandler for one method. Req is the
// message type and P its pointer, which is what the codec decodes into.
func unaryHandler[Req any, P interface{ *Req }, Resp any](
	fullMethod string,
	call func(EngineRPCServer, context.Context, P) (Resp, error),
) grpc.MethodHandler {
	return func(
		srv any,
		ctx context.Context,
		decoder func(any) error,
		interceptor grpc.UnaryServerInterceptor,
	) (any, error) {
		request := P(new(Req))
		if err := decoder(request); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EngineRPCServer), ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EngineRPCServer), ctx, req.(P))
		}
		return interceptor(ctx, request, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	request := new(structpb.Struct)
	if err := stream.RecvMsg(request); err != nil {
		return err
	}
	return srv.(EngineRPCServer).Subscribe(request, &eventStream{ServerStream: stream})
}
