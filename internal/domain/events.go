package domain

import "time"

type EventType string

const (
	EventAgentCreated  EventType = "agent_created"
	EventAgentProgress EventType = "agent_progress"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventSessionJoined EventType = "session_joined"
)

// Event is the envelope delivered to subscribers. Payload holds one of the
// *Event structs below, or an Agent for agent_created.
type Event struct {
	Type      EventType `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type ProgressEvent struct {
	AgentID     string     `json:"agent_id"`
	RunID       string     `json:"run_id"`
	Step        int        `json:"step"`
	TotalSteps  int        `json:"total_steps"`
	CurrentStep string     `json:"current_step"`
	Result      StepResult `json:"result"`
}

type CompletionEvent struct {
	AgentID string       `json:"agent_id"`
	RunID   string       `json:"run_id"`
	Results []StepResult `json:"results"`
	Agent   Agent        `json:"agent"`
}

type FailureEvent struct {
	AgentID string `json:"agent_id"`
	RunID   string `json:"run_id"`
	Step    int    `json:"step"`
	Error   string `json:"error"`
}

type SessionJoined struct {
	SessionID string `json:"session_id"`
}
