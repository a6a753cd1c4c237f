package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	doc := []byte(`
default_model: gemini-2.5-pro
yolo: true
trusted_providers:
  - llm.mycorp.example
rpc_log_retention: 48h
title_model: gemini-2.5-flash
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DefaultModel != "gemini-2.5-pro" || !cfg.Yolo {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RPCLogRetention.Std() != 48*time.Hour {
		t.Fatalf("retention = %v", cfg.RPCLogRetention)
	}
	if len(cfg.TrustedProviders) != 1 || cfg.TrustedProviders[0] != "llm.mycorp.example" {
		t.Fatalf("trusted providers = %v", cfg.TrustedProviders)
	}
}

func TestParseKeepsDefaultsForOmittedFields(t *testing.T) {
	cfg, err := Parse([]byte(`yolo: true`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DefaultModel != Default().DefaultModel {
		t.Fatalf("default model should survive partial config, got %q", cfg.DefaultModel)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty model", `default_model: "  "`},
		{"negative retention", "rpc_log_retention: -1h"},
		{"url in providers", "trusted_providers: ['https://x.example']"},
		{"empty provider", "trusted_providers: ['  ']"},
		{"broken yaml", "default_model: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Fatalf("document should be rejected:\n%s", tt.doc)
			}
		})
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != Default().DefaultModel {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	cfg, err = Load("")
	if err != nil || cfg == nil {
		t.Fatalf("empty path should fall back to defaults: %v", err)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.yaml")
	if err := os.WriteFile(path, []byte("default_model: test-model"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "test-model" {
		t.Fatalf("model = %q", cfg.DefaultModel)
	}
}
