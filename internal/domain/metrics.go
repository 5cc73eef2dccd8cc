package domain

import "time"

type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type MemorySample struct {
	Timestamp time.Time `json:"timestamp"`
	HeapAlloc uint64    `json:"heap_alloc"`
	HeapSys   uint64    `json:"heap_sys"`
	Sys       uint64    `json:"sys"`
	MaxRSS    uint64    `json:"max_rss"`
}

type RequestRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Transport string        `json:"transport"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency_ns"`
}

type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type MetricsSnapshot struct {
	UptimeSeconds     float64        `json:"uptime_seconds"`
	RequestCount      uint64         `json:"request_count"`
	AvgLatencyMS      float64        `json:"avg_latency_ms"`
	RequestsPerMinute int            `json:"requests_per_minute"`
	MemoryHistory     []MemorySample `json:"memory_history"`
	AgentCounts       map[string]int `json:"agent_counts"`
	ErrorCount        uint64         `json:"error_count"`
	RecentErrors      []ErrorRecord  `json:"recent_errors"`
	Healthy           bool           `json:"healthy"`
	Goroutines        int            `json:"goroutines"`
}

type StressRequest struct {
	AgentCount       int `json:"agent_count"`
	TaskCount        int `json:"task_count"`
	ConcurrencyLimit int `json:"concurrency_limit"`
}

type StressError struct {
	TaskIndex int    `json:"task_index"`
	AgentID   string `json:"agent_id"`
	TaskType  string `json:"task_type"`
	Message   string `json:"message"`
}

type StressReport struct {
	AgentsCreated    int           `json:"agents_created"`
	TasksRequested   int           `json:"tasks_requested"`
	TasksCompleted   int           `json:"tasks_completed"`
	Errors           []StressError `json:"errors"`
	DurationMS       float64       `json:"duration_ms"`
	Throughput       float64       `json:"throughput"`
	SuccessRate      float64       `json:"success_rate"`
	AvgTaskLatencyMS float64       `json:"avg_task_latency_ms"`
	MaxInFlight      int           `json:"max_in_flight"`
}
