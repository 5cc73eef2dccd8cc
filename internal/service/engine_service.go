package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/bcrosbie/agentforge/internal/broadcast"
	"github.com/bcrosbie/agentforge/internal/config"
	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/engine"
	"github.com/bcrosbie/agentforge/internal/metrics"
	"github.com/bcrosbie/agentforge/internal/store"
)

const (
	demoDefaultTaskType    = engine.TaskCreateComponent
	demoDefaultDescription = "Create a sample React component"
	demoDefaultComplexity  = "medium"
	defaultListLimit       = 50
)

type Options struct {
	Engine        config.EngineConfig
	JournalDriver string
	Journal       store.RunJournal
	Registerer    prometheus.Registerer
	Results       engine.ResultGenerator
	Latency       engine.LatencyFunc
	Sampler       metrics.MemorySampler
	Logger        *slog.Logger
}

type runEntry struct {
	result domain.RunResult
	record domain.RunRecord
}

type EngineService struct {
	cfg           config.EngineConfig
	journalDriver string

	registry     *engine.Registry
	orchestrator *engine.Orchestrator
	stress       *engine.StressHarness
	broadcaster  *broadcast.Broadcaster
	monitor      *metrics.Monitor
	collectors   *metrics.Collectors
	journal      store.RunJournal
	recent       *lru.Cache[string, runEntry]
	limiter      *rate.Limiter
	logger       *slog.Logger

	demoCtx    context.Context
	demoCancel context.CancelFunc
	demoWG     sync.WaitGroup
	demoMu     sync.Mutex
	closed     bool
	closeOnce  sync.Once
}

type CreateAgentRequest struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

type ExecuteTaskRequest struct {
	AgentID string      `json:"agent_id"`
	Task    domain.Task `json:"task"`
}

type ExecuteTaskResponse struct {
	Success bool                `json:"success"`
	RunID   string              `json:"run_id"`
	Results []domain.StepResult `json:"results"`
	Steps   []domain.Step       `json:"steps"`
	Agent   domain.Agent        `json:"agent"`
}

type DemoRequest struct {
	Type        string         `json:"type"`
	Config      map[string]any `json:"config"`
	DemoTask    string         `json:"demo_task"`
	Description string         `json:"description"`
	Complexity  string         `json:"complexity"`
}

type ListRunsRequest struct {
	AgentID  string `json:"agent_id"`
	TaskType string `json:"task_type"`
	Status   string `json:"status"`
	Limit    int    `json:"limit"`
}

func New(opts Options) (*EngineService, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Journal == nil {
		opts.Journal = store.NopJournal{}
		opts.JournalDriver = "none"
	}
	cfg := opts.Engine
	if cfg.RecentRuns < 1 {
		cfg.RecentRuns = config.Defaults().Engine.RecentRuns
	}
	if opts.Latency == nil {
		opts.Latency = engine.UniformLatency(cfg.StepLatencyMin, cfg.StepLatencyMax)
	}

	recent, err := lru.New[string, runEntry](cfg.RecentRuns)
	if err != nil {
		return nil, domain.Internal("failed to create recent run cache", err)
	}

	collectors := metrics.MustNewCollectors(opts.Registerer)
	registry := engine.NewRegistry(engine.RegistryOptions{Collectors: collectors})
	broadcaster := broadcast.New(broadcast.Options{
		Buffer:     cfg.SubscriberBuffer,
		Collectors: collectors,
		Logger:     opts.Logger.With("component", "broadcast"),
	})
	monitor := metrics.NewMonitor(metrics.MonitorOptions{
		Sampler:        opts.Sampler,
		SampleInterval: cfg.SampleInterval,
		AgentCounts:    registry.CountByType,
		Collectors:     collectors,
		Logger:         opts.Logger.With("component", "monitor"),
	})

	demoCtx, demoCancel := context.WithCancel(context.Background())
	s := &EngineService{
		cfg:           cfg,
		journalDriver: opts.JournalDriver,
		registry:      registry,
		broadcaster:   broadcaster,
		monitor:       monitor,
		collectors:    collectors,
		journal:       opts.Journal,
		recent:        recent,
		logger:        opts.Logger,
		demoCtx:       demoCtx,
		demoCancel:    demoCancel,
	}
	if cfg.AdmissionRPS > 0 {
		burst := cfg.AdmissionBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AdmissionRPS), burst)
	}
	s.orchestrator = engine.NewOrchestrator(engine.OrchestratorOptions{
		Registry:   registry,
		Executor:   engine.NewExecutor(opts.Results, opts.Latency),
		Publisher:  broadcaster,
		Sink:       s,
		Collectors: collectors,
		Logger:     opts.Logger.With("component", "orchestrator"),
	})
	s.stress = engine.NewStressHarness(s.orchestrator, engine.StressLimits{
		MaxAgents: cfg.StressMaxAgents,
		MaxTasks:  cfg.StressMaxTasks,
	})
	return s, nil
}

func (s *EngineService) Start(ctx context.Context) {
	s.monitor.Start(ctx)
}

func (s *EngineService) Close() error {
	s.closeOnce.Do(func() {
		s.demoMu.Lock()
		s.closed = true
		s.demoMu.Unlock()
		s.demoCancel()
		s.demoWG.Wait()
		s.monitor.Stop()
		s.broadcaster.Close()
	})
	return nil
}

func (s *EngineService) Health() map[string]any {
	return map[string]any{
		"status":      "ok",
		"agents":      s.registry.Len(),
		"subscribers": s.broadcaster.SubscriberCount(),
		"journal":     s.journalDriver,
		"time_utc":    time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (s *EngineService) CreateAgent(request CreateAgentRequest) (domain.Agent, error) {
	agentType := strings.ToLower(strings.TrimSpace(request.Type))
	agent := s.registry.Create(domain.AgentType(agentType), request.Config)
	s.broadcaster.Publish(domain.Event{
		Type:    domain.EventAgentCreated,
		AgentID: agent.ID,
		Payload: agent,
	})
	s.logger.Info("agent created", "agent_id", agent.ID, "type", agent.Type)
	return agent, nil
}

func (s *EngineService) Capabilities() map[domain.AgentType]domain.AgentTypeInfo {
	return domain.AgentTypeCatalog()
}

func (s *EngineService) CapabilitiesFor(agentType string) []string {
	return domain.CapabilitiesFor(domain.AgentType(strings.ToLower(strings.TrimSpace(agentType))))
}

func (s *EngineService) ListAgents() []domain.Agent {
	return s.registry.List()
}

func (s *EngineService) GetAgent(agentID string) (domain.Agent, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return domain.Agent{}, domain.InvalidArgument("agent_id is required")
	}
	return s.registry.Get(agentID)
}

func (s *EngineService) RemoveAgent(agentID string) error {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return domain.InvalidArgument("agent_id is required")
	}
	if err := s.registry.Remove(agentID); err != nil {
		return err
	}
	s.logger.Info("agent removed", "agent_id", agentID)
	return nil
}

func (s *EngineService) ExecuteTask(ctx context.Context, request ExecuteTaskRequest) (ExecuteTaskResponse, error) {
	agentID := strings.TrimSpace(request.AgentID)
	if agentID == "" {
		return ExecuteTaskResponse{}, domain.InvalidArgument("agent_id is required")
	}
	task := normalizeTask(request.Task)
	if err := s.admit(); err != nil {
		return ExecuteTaskResponse{}, err
	}

	run, err := s.orchestrator.Run(ctx, agentID, task)
	if err != nil {
		return ExecuteTaskResponse{}, err
	}
	return ExecuteTaskResponse{
		Success: run.Success,
		RunID:   run.RunID,
		Results: run.Results,
		Steps:   run.Steps,
		Agent:   run.Agent,
	}, nil
}

func (s *EngineService) StartDemo(request DemoRequest) (domain.Agent, error) {
	s.demoMu.Lock()
	defer s.demoMu.Unlock()
	if s.closed {
		return domain.Agent{}, domain.FailedPrecondition("engine is shutting down")
	}

	agent, err := s.CreateAgent(CreateAgentRequest{Type: request.Type, Config: request.Config})
	if err != nil {
		return domain.Agent{}, err
	}
	task := domain.Task{
		Type:        firstNonEmpty(request.DemoTask, demoDefaultTaskType),
		Description: firstNonEmpty(request.Description, demoDefaultDescription),
		Complexity:  firstNonEmpty(request.Complexity, demoDefaultComplexity),
	}

	s.demoWG.Add(1)
	go func() {
		defer s.demoWG.Done()
		if s.cfg.DemoDelay > 0 {
			timer := time.NewTimer(s.cfg.DemoDelay)
			defer timer.Stop()
			select {
			case <-s.demoCtx.Done():
				return
			case <-timer.C:
			}
		}
		if _, err := s.orchestrator.Run(s.demoCtx, agent.ID, task); err != nil {
			s.logger.Warn("demo run failed", "agent_id", agent.ID, "error", err)
		}
	}()
	return agent, nil
}

func (s *EngineService) Subscribe(sessionID string) *broadcast.Subscription {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = "session_" + ulid.Make().String()
	}
	return s.broadcaster.Subscribe(sessionID)
}

func (s *EngineService) Unsubscribe(sub *broadcast.Subscription) {
	s.broadcaster.Unsubscribe(sub)
}

func (s *EngineService) MetricsSnapshot() domain.MetricsSnapshot {
	return s.monitor.Snapshot()
}

func (s *EngineService) RunStressTest(ctx context.Context, request domain.StressRequest) (domain.StressReport, error) {
	report, err := s.stress.Run(ctx, request)
	if err != nil {
		return domain.StressReport{}, err
	}
	s.logger.Info("stress test finished",
		"agents", report.AgentsCreated,
		"tasks", report.TasksRequested,
		"completed", report.TasksCompleted,
		"errors", len(report.Errors),
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

func (s *EngineService) GetRun(runID string) (domain.RunResult, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.RunResult{}, domain.InvalidArgument("run_id is required")
	}
	entry, ok := s.recent.Get(runID)
	if !ok {
		return domain.RunResult{}, domain.RunNotFound(runID)
	}
	return entry.result, nil
}

// ListRuns reads the journal, or the recent-run cache when no journal is
// configured. Newest first.
func (s *EngineService) ListRuns(ctx context.Context, request ListRunsRequest) ([]domain.RunRecord, error) {
	limit := request.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter := store.RunFilter{
		AgentID:  request.AgentID,
		TaskType: request.TaskType,
		Status:   request.Status,
		Limit:    limit,
	}
	if _, ok := s.journal.(store.NopJournal); !ok {
		return s.journal.List(ctx, filter)
	}

	keys := s.recent.Keys()
	items := []domain.RunRecord{}
	for i := len(keys) - 1; i >= 0 && len(items) < limit; i-- {
		entry, ok := s.recent.Peek(keys[i])
		if !ok || !filter.Matches(entry.record) {
			continue
		}
		items = append(items, entry.record)
	}
	return items, nil
}

func (s *EngineService) RecordRequest(record domain.RequestRecord) {
	s.monitor.RecordRequest(record)
}

func (s *EngineService) RecordError(err error) {
	s.monitor.RecordError(err)
}

func (s *EngineService) RecordRun(ctx context.Context, result domain.RunResult, record domain.RunRecord) {
	result.Steps = slices.Clone(result.Steps)
	s.recent.Add(record.RunID, runEntry{result: result, record: record})
	if record.Status == domain.RunStatusFailed {
		s.monitor.RecordError(errors.New(record.Error))
	}
	if err := s.journal.Append(ctx, record); err != nil {
		s.collectors.JournalFailure()
		s.logger.Warn("journal append failed", "run_id", record.RunID, "error", err)
	}
}

func (s *EngineService) admit() error {
	if s.limiter == nil || s.limiter.Allow() {
		return nil
	}
	s.collectors.AdmissionRejected()
	return domain.AdmissionDenied("task admission rate exceeded, retry later")
}

func normalizeTask(task domain.Task) domain.Task {
	task.Type = strings.TrimSpace(task.Type)
	if task.Type == "" {
		task.Type = engine.TaskGeneral
	}
	task.Description = strings.TrimSpace(task.Description)
	task.Complexity = strings.TrimSpace(task.Complexity)
	return task
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if clean := strings.TrimSpace(value); clean != "" {
			return clean
		}
	}
	return ""
}
