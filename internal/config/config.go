package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

type EngineConfig struct {
	StepLatencyMin   time.Duration `yaml:"step_latency_min"`
	StepLatencyMax   time.Duration `yaml:"step_latency_max"`
	SampleInterval   time.Duration `yaml:"sample_interval"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	AdmissionRPS     float64       `yaml:"admission_rps"`
	AdmissionBurst   int           `yaml:"admission_burst"`
	StressMaxAgents  int           `yaml:"stress_max_agents"`
	StressMaxTasks   int           `yaml:"stress_max_tasks"`
	DemoDelay        time.Duration `yaml:"demo_delay"`
	RecentRuns       int           `yaml:"recent_runs"`
}

type Config struct {
	GRPCAddr         string       `yaml:"grpc_addr"`
	HTTPAddr         string       `yaml:"http_addr"`
	EnableReflection bool         `yaml:"enable_reflection"`
	JournalDriver    string       `yaml:"journal_driver"`
	JournalFile      string       `yaml:"journal_file"`
	DatabaseURL      string       `yaml:"database_url"`
	Log              LogConfig    `yaml:"log"`
	Tracer           TracerConfig `yaml:"tracer"`
	Engine           EngineConfig `yaml:"engine"`
}

func Defaults() Config {
	return Config{
		GRPCAddr:      "127.0.0.1:50051",
		HTTPAddr:      "127.0.0.1:8080",
		JournalDriver: "none",
		JournalFile:   "./data/agentforge.runs.json",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{Exporter: "noop"},
		Engine: EngineConfig{
			StepLatencyMin:   time.Second,
			StepLatencyMax:   3 * time.Second,
			SampleInterval:   30 * time.Second,
			SubscriberBuffer: 64,
			AdmissionRPS:     50,
			AdmissionBurst:   100,
			StressMaxAgents:  500,
			StressMaxTasks:   5000,
			DemoDelay:        time.Second,
			RecentRuns:       256,
		},
	}
}

func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.GRPCAddr = envOrDefault("GRPC_ADDR", cfg.GRPCAddr)
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.EnableReflection = envBoolOrDefault("ENABLE_REFLECTION", cfg.EnableReflection)
	cfg.JournalDriver = envOrDefault("JOURNAL_DRIVER", cfg.JournalDriver)
	cfg.JournalFile = envOrDefault("JOURNAL_FILE", cfg.JournalFile)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	cfg.Log.Level = envOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Output = envOrDefault("LOG_OUTPUT", cfg.Log.Output)

	cfg.Tracer.Enabled = envBoolOrDefault("TRACER_ENABLED", cfg.Tracer.Enabled)
	cfg.Tracer.Exporter = envOrDefault("TRACER_EXPORTER", cfg.Tracer.Exporter)

	e := &cfg.Engine
	e.StepLatencyMin = envDurationOrDefault("STEP_LATENCY_MIN", e.StepLatencyMin)
	e.StepLatencyMax = envDurationOrDefault("STEP_LATENCY_MAX", e.StepLatencyMax)
	e.SampleInterval = envDurationOrDefault("SAMPLE_INTERVAL", e.SampleInterval)
	e.SubscriberBuffer = envIntOrDefault("SUBSCRIBER_BUFFER", e.SubscriberBuffer)
	e.AdmissionRPS = envFloatOrDefault("ADMISSION_RPS", e.AdmissionRPS)
	e.AdmissionBurst = envIntOrDefault("ADMISSION_BURST", e.AdmissionBurst)
	e.StressMaxAgents = envIntOrDefault("STRESS_MAX_AGENTS", e.StressMaxAgents)
	e.StressMaxTasks = envIntOrDefault("STRESS_MAX_TASKS", e.StressMaxTasks)
	e.DemoDelay = envDurationOrDefault("DEMO_DELAY", e.DemoDelay)
	e.RecentRuns = envIntOrDefault("RECENT_RUNS", e.RecentRuns)
}

func (c Config) Validate() error {
	switch c.JournalDriver {
	case "none", "file", "postgres":
	default:
		return fmt.Errorf("unsupported JOURNAL_DRIVER %q", c.JournalDriver)
	}
	if c.JournalDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when JOURNAL_DRIVER=postgres")
	}
	e := c.Engine
	if e.StepLatencyMin < 0 || e.StepLatencyMax < e.StepLatencyMin {
		return fmt.Errorf("invalid step latency range [%s, %s]", e.StepLatencyMin, e.StepLatencyMax)
	}
	if e.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be positive")
	}
	if e.SubscriberBuffer < 1 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be at least 1")
	}
	if e.AdmissionRPS < 0 {
		return fmt.Errorf("ADMISSION_RPS must not be negative")
	}
	if e.RecentRuns < 1 {
		return fmt.Errorf("RECENT_RUNS must be at least 1")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBoolOrDefault(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envIntOrDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloatOrDefault(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
