// Package config loads the optional backend configuration file.
//
// The file tunes defaults the UI does not always supply — default model,
// yolo mode, extra trusted provider domains, audit-log retention. Parse is
// the canonical entry point: decode, then validate, first error wins.
// A missing file is not an error; callers fall back to Default().
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes from YAML duration strings such as "48h" or "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"48h\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the decoded backend configuration.
type Config struct {
	// DefaultModel is used when a session request carries no model.
	DefaultModel string `yaml:"default_model"`
	// Yolo makes spawned agents auto-approve their own tool calls.
	Yolo bool `yaml:"yolo"`
	// TrustedProviders extends the URL guard's provider allow-list.
	TrustedProviders []string `yaml:"trusted_providers"`
	// RPCLogRetention bounds how long per-session audit logs are kept.
	RPCLogRetention Duration `yaml:"rpc_log_retention"`
	// TitleModel overrides the model used for conversation titles.
	TitleModel string `yaml:"title_model"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DefaultModel:    "gemini-2.5-flash",
		RPCLogRetention: Duration(7 * 24 * time.Hour),
	}
}

// Load reads and parses the file at path. An empty path or a missing file
// yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a Config and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a Config for structural correctness.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		return fmt.Errorf("default_model must not be empty")
	}
	if cfg.RPCLogRetention < 0 {
		return fmt.Errorf("rpc_log_retention must not be negative")
	}
	for i, domain := range cfg.TrustedProviders {
		trimmed := strings.TrimSpace(domain)
		if trimmed == "" {
			return fmt.Errorf("trusted_providers[%d] must not be empty", i)
		}
		if strings.Contains(trimmed, "/") || strings.Contains(trimmed, ":") {
			return fmt.Errorf("trusted_providers[%d] (%q) must be a bare domain, not a URL", i, domain)
		}
	}
	return nil
}
