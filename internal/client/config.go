package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".config/agentforge/client.yaml"

type Config struct {
	Addr           string        `yaml:"addr"`
	Insecure       bool          `yaml:"insecure"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:50051",
		Insecure:       false,
		RequestTimeout: 10 * time.Second,
		RetryAttempts:  3,
	}
}

func LoadConfig() (Config, string, error) {
	cfg := DefaultConfig()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if err := loadFile(path, &cfg); err != nil {
		return cfg, path, err
	}
	if addr := strings.TrimSpace(os.Getenv("AGENTFORGE_ADDR")); addr != "" {
		cfg.Addr = addr
	}
	return normalize(cfg), path, nil
}

func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultConfigRelPath), nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read client config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse client config %s: %w", path, err)
	}
	return nil
}

func normalize(cfg Config) Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaults.RetryAttempts
	}
	return cfg
}
