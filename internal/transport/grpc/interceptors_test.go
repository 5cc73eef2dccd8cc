package grpcx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/logger"
	"github.com/bcrosbie/agentforge/internal/rpccontract"
)

type fakeRecorder struct {
	requests []domain.RequestRecord
	errors   []error
}

func (f *fakeRecorder) RecordRequest(rec domain.RequestRecord) { f.requests = append(f.requests, rec) }

func (f *fakeRecorder) RecordError(err error) { f.errors = append(f.errors, err) }

func TestRecoveryInterceptorConvertsPanic(t *testing.T) {
	interceptor := RecoveryUnaryInterceptor(logger.Discard())
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{
		FullMethod: rpccontract.MethodGetHealth,
	}, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %s", status.Code(err))
	}
}

func TestErrorInterceptorMapsAppErrors(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{domain.InvalidArgument("bad"), codes.InvalidArgument},
		{domain.AgentNotFound("agent_x"), codes.NotFound},
		{domain.Conflict("dup"), codes.AlreadyExists},
		{domain.AgentBusy("agent_x"), codes.FailedPrecondition},
		{domain.AdmissionDenied("slow down"), codes.ResourceExhausted},
		{domain.TaskExecution("Create Tests", errors.New("flaky")), codes.Aborted},
		{domain.Cancelled("run cancelled", context.Canceled), codes.Canceled},
		{domain.Internal("broken", nil), codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("plain"), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}

	interceptor := ErrorUnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: rpccontract.MethodExecuteTask}
	for _, tc := range cases {
		_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			return nil, tc.err
		})
		if got := status.Code(err); got != tc.want {
			t.Fatalf("error %v: expected %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestDeadlineInterceptorSkipsLongRunningMethods(t *testing.T) {
	interceptor := DeadlineUnaryInterceptor(time.Second)

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{
		FullMethod: rpccontract.MethodGetHealth,
	}, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected deadline on short method")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{
		FullMethod: rpccontract.MethodExecuteTask,
	}, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Fatalf("expected no deadline on execute")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestMetricsInterceptorRecordsRequests(t *testing.T) {
	recorder := &fakeRecorder{}
	interceptor := MetricsUnaryInterceptor(recorder)
	info := &grpc.UnaryServerInfo{FullMethod: rpccontract.MethodListAgents}

	if _, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	_, _ = interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.Internal, "broken")
	})
	_, _ = interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})

	if len(recorder.requests) != 3 {
		t.Fatalf("expected 3 recorded requests, got %d", len(recorder.requests))
	}
	if recorder.requests[0].Status != "OK" || recorder.requests[0].Transport != "grpc" {
		t.Fatalf("unexpected first record %#v", recorder.requests[0])
	}
	if recorder.requests[2].Path != rpccontract.MethodListAgents {
		t.Fatalf("unexpected path %q", recorder.requests[2].Path)
	}
	if len(recorder.errors) != 1 {
		t.Fatalf("expected only the internal failure to count as an error, got %d", len(recorder.errors))
	}
}
