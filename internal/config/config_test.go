package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NotifyTimeoutSeconds != 10 || cfg.QueryTimeoutSeconds != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	content := "uiBaseUrl: https://drift.example.com\nnotifyTimeoutSeconds: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UIBaseURL != "https://drift.example.com" {
		t.Fatalf("uiBaseUrl not applied: %+v", cfg)
	}
	if cfg.NotifyTimeoutSeconds != 3 {
		t.Fatalf("notify timeout not applied: %+v", cfg)
	}
	if cfg.QueryTimeoutSeconds != 5 {
		t.Fatalf("unset value should keep default: %+v", cfg)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	if err := os.WriteFile(path, []byte("uiBaseUrl: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid yaml")
	}
}
