package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/metrics"
	"github.com/bcrosbie/agentforge/internal/tracing"
)

type Publisher interface {
	Publish(event domain.Event)
}

type RunSink interface {
	RecordRun(ctx context.Context, result domain.RunResult, record domain.RunRecord)
}

type OrchestratorOptions struct {
	Registry   *Registry
	Planner    *Planner
	Executor   *Executor
	Publisher  Publisher
	Sink       RunSink
	Collectors *metrics.Collectors
	Logger     *slog.Logger
	Now        func() time.Time
}

type Orchestrator struct {
	registry   *Registry
	planner    *Planner
	executor   *Executor
	publisher  Publisher
	sink       RunSink
	collectors *metrics.Collectors
	logger     *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = NewRegistry(RegistryOptions{})
	}
	if opts.Planner == nil {
		opts.Planner = NewPlanner()
	}
	if opts.Executor == nil {
		opts.Executor = NewExecutor(nil, nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		registry:   opts.Registry,
		planner:    opts.Planner,
		executor:   opts.Executor,
		publisher:  opts.Publisher,
		sink:       opts.Sink,
		collectors: opts.Collectors,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) Planner() *Planner { return o.planner }

func (o *Orchestrator) Run(ctx context.Context, agentID string, task domain.Task) (domain.RunResult, error) {
	agent, err := o.registry.Acquire(agentID, task)
	if err != nil {
		return domain.RunResult{}, err
	}

	run := domain.RunResult{
		RunID:     ulid.Make().String(),
		Agent:     agent,
		Task:      task,
		StartedAt: o.now().UTC(),
	}
	ctx, span := tracing.StartSpan(ctx, "agent.run",
		attribute.String("agent.id", agentID),
		attribute.String("agent.type", string(agent.Type)),
		attribute.String("task.type", task.Type),
		attribute.String("run.id", run.RunID),
	)
	defer span.End()
	o.collectors.RunStarted()

	run.Steps = o.planner.Plan(task)
	run.Results = make([]domain.StepResult, 0, len(run.Steps))
	total := len(run.Steps)

	for i := range run.Steps {
		step := &run.Steps[i]
		result, latency, err := o.executor.Execute(ctx, *step)
		if err != nil {
			return o.fail(ctx, run, step.Index, err)
		}
		step.Result = &result
		step.Latency = latency
		run.Results = append(run.Results, result)
		o.collectors.ObserveStep(string(step.Kind), latency)

		o.publish(domain.Event{
			Type:    domain.EventAgentProgress,
			AgentID: agentID,
			RunID:   run.RunID,
			Payload: domain.ProgressEvent{
				AgentID:     agentID,
				RunID:       run.RunID,
				Step:        step.Index,
				TotalSteps:  total,
				CurrentStep: step.Name,
				Result:      result,
			},
		})

		if err := wait(ctx, latency); err != nil {
			return o.fail(ctx, run, step.Index, domain.Cancelled("run cancelled during "+step.Name, err))
		}
	}

	final, err := o.registry.Release(agentID, true)
	if err != nil {
		return o.fail(ctx, run, total, err)
	}
	run.Agent = final
	run.Success = true
	run.FinishedAt = o.now().UTC()

	o.publish(domain.Event{
		Type:    domain.EventTaskCompleted,
		AgentID: agentID,
		RunID:   run.RunID,
		Payload: domain.CompletionEvent{
			AgentID: agentID,
			RunID:   run.RunID,
			Results: run.Results,
			Agent:   final,
		},
	})
	o.finish(ctx, run, "")
	tracing.SetOK(span)
	o.logger.Debug("run completed", "agent_id", agentID, "run_id", run.RunID, "steps", total)
	return run, nil
}

func (o *Orchestrator) fail(ctx context.Context, run domain.RunResult, stepIndex int, cause error) (domain.RunResult, error) {
	if agent, err := o.registry.Release(run.Agent.ID, false); err == nil {
		run.Agent = agent
	}
	run.Success = false
	run.FinishedAt = o.now().UTC()

	o.publish(domain.Event{
		Type:    domain.EventTaskFailed,
		AgentID: run.Agent.ID,
		RunID:   run.RunID,
		Payload: domain.FailureEvent{
			AgentID: run.Agent.ID,
			RunID:   run.RunID,
			Step:    stepIndex,
			Error:   cause.Error(),
		},
	})
	o.finish(ctx, run, cause.Error())

	tracing.RecordError(trace.SpanFromContext(ctx), cause)
	o.logger.Warn("run failed", "agent_id", run.Agent.ID, "run_id", run.RunID, "step", stepIndex, "error", cause)

	if _, ok := domain.AsAppError(cause); !ok {
		cause = domain.Internal("run failed", cause)
	}
	return run, cause
}

func (o *Orchestrator) finish(ctx context.Context, run domain.RunResult, errMsg string) {
	status := domain.RunStatusCompleted
	if !run.Success {
		status = domain.RunStatusFailed
	}
	duration := run.FinishedAt.Sub(run.StartedAt)
	o.collectors.RunFinished(run.Task.Type, status, duration)
	if o.sink == nil {
		return
	}
	o.sink.RecordRun(context.WithoutCancel(ctx), run, domain.RunRecord{
		RunID:       run.RunID,
		AgentID:     run.Agent.ID,
		AgentType:   run.Agent.Type,
		TaskType:    run.Task.Type,
		Description: run.Task.Description,
		Status:      status,
		StepCount:   len(run.Results),
		Error:       errMsg,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		DurationMS:  duration.Milliseconds(),
	})
}

func (o *Orchestrator) publish(event domain.Event) {
	if o.publisher == nil {
		return
	}
	event.Timestamp = o.now().UTC()
	o.publisher.Publish(event)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
