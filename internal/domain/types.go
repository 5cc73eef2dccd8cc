package domain

import "time"

type AgentType string

const (
	AgentAutonomous    AgentType = "autonomous"
	AgentCollaborative AgentType = "collaborative"
	AgentSpecialized   AgentType = "specialized"
	AgentMultimodal    AgentType = "multimodal"
)

var KnownAgentTypes = []AgentType{AgentAutonomous, AgentCollaborative, AgentSpecialized, AgentMultimodal}

type AgentStatus string

const (
	StatusInitializing AgentStatus = "initializing"
	StatusIdle         AgentStatus = "idle"
	StatusWorking      AgentStatus = "working"
)

// Agent is a snapshot of one simulated worker. ActiveTask is set iff Status is working.
type Agent struct {
	ID             string         `json:"id"`
	Type           AgentType      `json:"type"`
	Config         map[string]any `json:"config,omitempty"`
	Status         AgentStatus    `json:"status"`
	Capabilities   []string       `json:"capabilities"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedTasks int64          `json:"completed_tasks"`
	ActiveTask     *Task          `json:"active_task,omitempty"`
}

type Task struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Complexity  string `json:"complexity,omitempty"`
}

type StepKind string

const (
	KindAnalysis    StepKind = "analysis"
	KindPlanning    StepKind = "planning"
	KindCoding      StepKind = "coding"
	KindTesting     StepKind = "testing"
	KindIntegration StepKind = "integration"
	KindSetup       StepKind = "setup"
)

type Step struct {
	Index   int           `json:"index"`
	Name    string        `json:"name"`
	Kind    StepKind      `json:"kind"`
	Result  *StepResult   `json:"result,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`
}

type StepResult struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type AnalysisResult struct {
	FilesAnalyzed   int      `json:"files_analyzed"`
	IssuesFound     int      `json:"issues_found"`
	Recommendations []string `json:"recommendations"`
}

type PlanResult struct {
	Strategy      string   `json:"strategy"`
	EstimatedTime string   `json:"estimated_time"`
	Dependencies  []string `json:"dependencies"`
}

type CodeResult struct {
	FilesCreated int    `json:"files_created"`
	LinesOfCode  int    `json:"lines_of_code"`
	Language     string `json:"language"`
}

type TestResult struct {
	TestsCreated int  `json:"tests_created"`
	Coverage     int  `json:"coverage"`
	Passed       bool `json:"passed"`
}

type IntegrationResult struct {
	Success           bool   `json:"success"`
	ConflictsResolved int    `json:"conflicts_resolved"`
	BuildStatus       string `json:"build_status"`
}

type RunResult struct {
	RunID      string       `json:"run_id"`
	Success    bool         `json:"success"`
	Results    []StepResult `json:"results"`
	Steps      []Step       `json:"steps"`
	Agent      Agent        `json:"agent"`
	Task       Task         `json:"task"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

type RunRecord struct {
	RunID       string    `json:"run_id"`
	AgentID     string    `json:"agent_id"`
	AgentType   AgentType `json:"agent_type"`
	TaskType    string    `json:"task_type"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	StepCount   int       `json:"step_count"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
}

const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
