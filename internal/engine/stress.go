package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bcrosbie/agentforge/internal/domain"
)

var stressTaskTypes = []string{TaskCreateComponent, TaskRefactorCodebase, TaskGeneral}

type StressLimits struct {
	MaxAgents int
	MaxTasks  int
}

type StressHarness struct {
	orchestrator *Orchestrator
	limits       StressLimits
}

func NewStressHarness(orchestrator *Orchestrator, limits StressLimits) *StressHarness {
	return &StressHarness{orchestrator: orchestrator, limits: limits}
}

func (h *StressHarness) Validate(req domain.StressRequest) error {
	switch {
	case req.AgentCount < 0:
		return domain.InvalidArgument("agent_count must not be negative")
	case req.TaskCount < 0:
		return domain.InvalidArgument("task_count must not be negative")
	case req.TaskCount > 0 && req.AgentCount == 0:
		return domain.InvalidArgument("agent_count must be positive when task_count is set")
	case req.ConcurrencyLimit < 1:
		return domain.InvalidArgument("concurrency_limit must be at least 1")
	case h.limits.MaxAgents > 0 && req.AgentCount > h.limits.MaxAgents:
		return domain.InvalidArgument(fmt.Sprintf("agent_count exceeds maximum of %d", h.limits.MaxAgents))
	case h.limits.MaxTasks > 0 && req.TaskCount > h.limits.MaxTasks:
		return domain.InvalidArgument(fmt.Sprintf("task_count exceeds maximum of %d", h.limits.MaxTasks))
	}
	return nil
}

// Run creates the agents, deals tasks round-robin, and executes them. Each
// agent gets one lane that runs its tasks in order, so an agent never has two
// concurrent runs. A failed task is recorded and does not stop its siblings.
func (h *StressHarness) Run(ctx context.Context, req domain.StressRequest) (domain.StressReport, error) {
	if err := h.Validate(req); err != nil {
		return domain.StressReport{}, err
	}
	started := time.Now()
	registry := h.orchestrator.Registry()

	agentIDs := make([]string, req.AgentCount)
	var create errgroup.Group
	for i := range agentIDs {
		create.Go(func() error {
			agentType := domain.KnownAgentTypes[i%len(domain.KnownAgentTypes)]
			agent := registry.Create(agentType, map[string]any{"stress": true})
			agentIDs[i] = agent.ID
			return nil
		})
	}
	_ = create.Wait()

	lanes := make([][]int, req.AgentCount)
	for task := 0; task < req.TaskCount; task++ {
		lane := task % req.AgentCount
		lanes[lane] = append(lanes[lane], task)
	}

	var (
		sem       = semaphore.NewWeighted(int64(req.ConcurrencyLimit))
		inFlight  atomic.Int64
		peak      atomic.Int64
		completed atomic.Int64
		mu        sync.Mutex
		errs      []domain.StressError
		latency   time.Duration
		runs      errgroup.Group
	)
	record := func(taskIndex int, agentID, taskType string, err error) {
		mu.Lock()
		errs = append(errs, domain.StressError{
			TaskIndex: taskIndex,
			AgentID:   agentID,
			TaskType:  taskType,
			Message:   err.Error(),
		})
		mu.Unlock()
	}

	for lane, tasks := range lanes {
		if len(tasks) == 0 {
			continue
		}
		agentID := agentIDs[lane]
		runs.Go(func() error {
			for _, taskIndex := range tasks {
				task := syntheticTask(taskIndex)
				if err := sem.Acquire(ctx, 1); err != nil {
					record(taskIndex, agentID, task.Type, domain.Cancelled("stress run cancelled", err))
					continue
				}
				current := inFlight.Add(1)
				for {
					prev := peak.Load()
					if current <= prev || peak.CompareAndSwap(prev, current) {
						break
					}
				}
				taskStarted := time.Now()
				_, err := h.orchestrator.Run(ctx, agentID, task)
				elapsed := time.Since(taskStarted)
				inFlight.Add(-1)
				sem.Release(1)

				if err != nil {
					record(taskIndex, agentID, task.Type, err)
					continue
				}
				completed.Add(1)
				mu.Lock()
				latency += elapsed
				mu.Unlock()
			}
			return nil
		})
	}
	_ = runs.Wait()

	elapsed := time.Since(started)
	done := int(completed.Load())
	report := domain.StressReport{
		AgentsCreated:  req.AgentCount,
		TasksRequested: req.TaskCount,
		TasksCompleted: done,
		Errors:         errs,
		DurationMS:     float64(elapsed) / float64(time.Millisecond),
		MaxInFlight:    int(peak.Load()),
	}
	if report.Errors == nil {
		report.Errors = []domain.StressError{}
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		report.Throughput = float64(done) / seconds
	}
	if req.TaskCount > 0 {
		report.SuccessRate = float64(done) / float64(req.TaskCount)
	}
	if done > 0 {
		report.AvgTaskLatencyMS = float64(latency) / float64(done) / float64(time.Millisecond)
	}
	return report, nil
}

func syntheticTask(index int) domain.Task {
	return domain.Task{
		Type:        stressTaskTypes[index%len(stressTaskTypes)],
		Description: fmt.Sprintf("Stress task %d", index+1),
		Complexity:  "medium",
	}
}
