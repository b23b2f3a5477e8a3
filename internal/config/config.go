package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig holds tunables the worker reads from an optional YAML file.
// Anything unset falls back to defaults; the file itself is optional.
type WorkerConfig struct {
	UIBaseURL            string `yaml:"uiBaseUrl"`
	NotifyTimeoutSeconds int    `yaml:"notifyTimeoutSeconds"`
	QueryTimeoutSeconds  int    `yaml:"queryTimeoutSeconds"`
	MonitorTimeoutSeconds int   `yaml:"monitorTimeoutSeconds"`
}

func Default() WorkerConfig {
	return WorkerConfig{
		UIBaseURL:             "http://localhost:9000",
		NotifyTimeoutSeconds:  10,
		QueryTimeoutSeconds:   5,
		MonitorTimeoutSeconds: 30,
	}
}

func Load(path string) (WorkerConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkerConfig{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WorkerConfig{}, fmt.Errorf("invalid worker config: %w", err)
	}
	if cfg.NotifyTimeoutSeconds <= 0 {
		cfg.NotifyTimeoutSeconds = Default().NotifyTimeoutSeconds
	}
	if cfg.QueryTimeoutSeconds <= 0 {
		cfg.QueryTimeoutSeconds = Default().QueryTimeoutSeconds
	}
	if cfg.MonitorTimeoutSeconds <= 0 {
		cfg.MonitorTimeoutSeconds = Default().MonitorTimeoutSeconds
	}
	return cfg, nil
}

func (c WorkerConfig) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

func (c WorkerConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

func (c WorkerConfig) MonitorTimeout() time.Duration {
	return time.Duration(c.MonitorTimeoutSeconds) * time.Second
}
