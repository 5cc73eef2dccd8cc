package engine

import (
	"sync"

	"github.com/bcrosbie/agentforge/internal/domain"
)

const (
	TaskCreateComponent  = "create_component"
	TaskRefactorCodebase = "refactor_codebase"
	TaskGeneral          = "general_task"
)

type StepTemplate struct {
	Name string
	Kind domain.StepKind
}

var defaultPlans = map[string][]StepTemplate{
	TaskCreateComponent: {
		{Name: "Analyze Requirements", Kind: domain.KindAnalysis},
		{Name: "Design Component Structure", Kind: domain.KindPlanning},
		{Name: "Generate Component Code", Kind: domain.KindCoding},
		{Name: "Create Tests", Kind: domain.KindTesting},
		{Name: "Integrate with Codebase", Kind: domain.KindIntegration},
	},
	TaskRefactorCodebase: {
		{Name: "Scan Codebase", Kind: domain.KindAnalysis},
		{Name: "Identify Refactoring Opportunities", Kind: domain.KindAnalysis},
		{Name: "Plan Refactoring Strategy", Kind: domain.KindPlanning},
		{Name: "Execute Refactoring", Kind: domain.KindCoding},
		{Name: "Run Tests and Verify", Kind: domain.KindTesting},
	},
}

var fallbackPlan = []StepTemplate{
	{Name: "Initialize Task", Kind: domain.KindSetup},
	{Name: "Execute Core Logic", Kind: domain.KindCoding},
	{Name: "Verify Results", Kind: domain.KindTesting},
}

type Planner struct {
	mu    sync.RWMutex
	plans map[string][]StepTemplate
}

func NewPlanner() *Planner {
	plans := make(map[string][]StepTemplate, len(defaultPlans))
	for taskType, templates := range defaultPlans {
		plans[taskType] = append([]StepTemplate(nil), templates...)
	}
	return &Planner{plans: plans}
}

func (p *Planner) Register(taskType string, templates []StepTemplate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(templates) == 0 {
		delete(p.plans, taskType)
		return
	}
	p.plans[taskType] = append([]StepTemplate(nil), templates...)
}

func (p *Planner) Plan(task domain.Task) []domain.Step {
	p.mu.RLock()
	templates, ok := p.plans[task.Type]
	p.mu.RUnlock()
	if !ok {
		templates = fallbackPlan
	}
	steps := make([]domain.Step, len(templates))
	for i, tmpl := range templates {
		steps[i] = domain.Step{Index: i + 1, Name: tmpl.Name, Kind: tmpl.Kind}
	}
	return steps
}
