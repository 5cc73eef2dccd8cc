package engine

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/metrics"
)

type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agentEntry

	now        func() time.Time
	collectors *metrics.Collectors
}

type agentEntry struct {
	mu    sync.Mutex
	agent domain.Agent
}

type RegistryOptions struct {
	Now        func() time.Time
	Collectors *metrics.Collectors
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		agents:     make(map[string]*agentEntry),
		now:        opts.Now,
		collectors: opts.Collectors,
	}
}

func (r *Registry) Create(agentType domain.AgentType, config map[string]any) domain.Agent {
	agentType = domain.AgentType(strings.TrimSpace(string(agentType)))
	agent := domain.Agent{
		ID:           "agent_" + uuid.NewString(),
		Type:         agentType,
		Config:       maps.Clone(config),
		Status:       domain.StatusInitializing,
		Capabilities: domain.CapabilitiesFor(agentType),
		CreatedAt:    r.now().UTC(),
	}

	r.mu.Lock()
	r.agents[agent.ID] = &agentEntry{agent: agent}
	r.mu.Unlock()

	r.collectors.AgentCreated(string(agentType))
	return snapshot(agent)
}

func (r *Registry) Get(agentID string) (domain.Agent, error) {
	entry, err := r.lookup(agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return snapshot(entry.agent), nil
}

func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	entries := make([]*agentEntry, 0, len(r.agents))
	for _, entry := range r.agents {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	out := make([]domain.Agent, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		out = append(out, snapshot(entry.agent))
		entry.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) CountByType() map[string]int {
	counts := map[string]int{}
	for _, agent := range r.List() {
		counts[string(agent.Type)]++
	}
	return counts
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) Acquire(agentID string, task domain.Task) (domain.Agent, error) {
	entry, err := r.lookup(agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.agent.Status == domain.StatusWorking {
		return domain.Agent{}, domain.AgentBusy(agentID)
	}
	active := task
	entry.agent.Status = domain.StatusWorking
	entry.agent.ActiveTask = &active
	return snapshot(entry.agent), nil
}

func (r *Registry) Release(agentID string, completed bool) (domain.Agent, error) {
	entry, err := r.lookup(agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.agent.Status = domain.StatusIdle
	entry.agent.ActiveTask = nil
	if completed {
		entry.agent.CompletedTasks++
	}
	return snapshot(entry.agent), nil
}

func (r *Registry) Remove(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.agents[agentID]
	if !ok {
		return domain.AgentNotFound(agentID)
	}
	entry.mu.Lock()
	busy := entry.agent.Status == domain.StatusWorking
	entry.mu.Unlock()
	if busy {
		return domain.AgentBusy(agentID)
	}
	delete(r.agents, agentID)
	return nil
}

func (r *Registry) lookup(agentID string) (*agentEntry, error) {
	r.mu.RLock()
	entry, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.AgentNotFound(agentID)
	}
	return entry, nil
}

func snapshot(agent domain.Agent) domain.Agent {
	out := agent
	out.Capabilities = slices.Clone(agent.Capabilities)
	out.Config = maps.Clone(agent.Config)
	if agent.ActiveTask != nil {
		task := *agent.ActiveTask
		out.ActiveTask = &task
	}
	return out
}
