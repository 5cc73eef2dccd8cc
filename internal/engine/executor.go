package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/bcrosbie/agentforge/internal/domain"
)

const (
	ResultAnalysis    = "analysis_result"
	ResultPlan        = "plan"
	ResultCode        = "code_generated"
	ResultTests       = "test_results"
	ResultIntegration = "integration_result"
)

type ResultGenerator interface {
	Generate(step domain.Step) (domain.StepResult, error)
}

type ResultGeneratorFunc func(step domain.Step) (domain.StepResult, error)

func (f ResultGeneratorFunc) Generate(step domain.Step) (domain.StepResult, error) { return f(step) }

type LatencyFunc func(step domain.Step) time.Duration

func UniformLatency(lo, hi time.Duration) LatencyFunc {
	if hi < lo {
		lo, hi = hi, lo
	}
	return func(domain.Step) time.Duration {
		if hi == lo {
			return lo
		}
		return lo + rand.N(hi-lo+1)
	}
}

func FixedLatency(d time.Duration) LatencyFunc {
	return func(domain.Step) time.Duration { return d }
}

type RandomResults struct{}

func (RandomResults) Generate(step domain.Step) (domain.StepResult, error) {
	switch step.Kind {
	case domain.KindAnalysis:
		return domain.StepResult{Type: ResultAnalysis, Data: domain.AnalysisResult{
			FilesAnalyzed:   between(10, 59),
			IssuesFound:     between(0, 4),
			Recommendations: []string{"Optimize imports", "Reduce complexity", "Add error handling"},
		}}, nil
	case domain.KindPlanning:
		return domain.StepResult{Type: ResultPlan, Data: domain.PlanResult{
			Strategy:      "Component-based architecture",
			EstimatedTime: "15 minutes",
			Dependencies:  []string{"React", "TypeScript", "Styled Components"},
		}}, nil
	case domain.KindTesting:
		return domain.StepResult{Type: ResultTests, Data: domain.TestResult{
			TestsCreated: between(5, 14),
			Coverage:     between(70, 99),
			Passed:       true,
		}}, nil
	case domain.KindIntegration:
		return domain.StepResult{Type: ResultIntegration, Data: domain.IntegrationResult{
			Success:           true,
			ConflictsResolved: between(0, 2),
			BuildStatus:       "passing",
		}}, nil
	default:
		return domain.StepResult{Type: ResultCode, Data: domain.CodeResult{
			FilesCreated: between(1, 3),
			LinesOfCode:  between(50, 249),
			Language:     "TypeScript",
		}}, nil
	}
}

func between(lo, hi int) int {
	return lo + rand.IntN(hi-lo+1)
}

type Executor struct {
	results ResultGenerator
	latency LatencyFunc
}

func NewExecutor(results ResultGenerator, latency LatencyFunc) *Executor {
	if results == nil {
		results = RandomResults{}
	}
	if latency == nil {
		latency = UniformLatency(time.Second, 3*time.Second)
	}
	return &Executor{results: results, latency: latency}
}

// Execute produces the step result and the latency the caller must wait
// before the next step. It does not sleep.
func (e *Executor) Execute(ctx context.Context, step domain.Step) (domain.StepResult, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return domain.StepResult{}, 0, domain.Cancelled("run cancelled before step "+step.Name, err)
	}
	result, err := e.results.Generate(step)
	if err != nil {
		return domain.StepResult{}, 0, domain.TaskExecution(step.Name, err)
	}
	latency := e.latency(step)
	if latency < 0 {
		latency = 0
	}
	return result, latency, nil
}
