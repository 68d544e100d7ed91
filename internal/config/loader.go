package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before stripping comments,
	// since templates live inside string values.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with all defaults applied and no providers.
// Used when no config file exists yet.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18520
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 20
	}
	if cfg.Agent.MaxDepth == 0 {
		cfg.Agent.MaxDepth = 2
	}
	if cfg.Agent.TodoRetries == 0 {
		cfg.Agent.TodoRetries = 1
	}
	if cfg.Agent.WorkspaceRoot == "" {
		cfg.Agent.WorkspaceRoot = filepath.Join(PaulaPath(), "workspace")
	}
	if cfg.Agent.ToolTimeout.Duration() == 0 {
		cfg.Agent.ToolTimeout = Duration(defaultToolTimeout)
	}
	if cfg.Memory.RecencyLimit == 0 {
		cfg.Memory.RecencyLimit = 5
	}
	if cfg.Memory.RelevanceLimit == 0 {
		cfg.Memory.RelevanceLimit = 8
	}
	if cfg.Memory.MinScore == 0 {
		cfg.Memory.MinScore = 0.1
	}
	if cfg.Memory.SummaryInterval == 0 {
		cfg.Memory.SummaryInterval = 8
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(PaulaPath(), "paula.db")
	}
	if len(cfg.Skills.Dirs) == 0 {
		cfg.Skills.Dirs = []string{filepath.Join(PaulaPath(), "skills")}
	}
	for name, s := range cfg.Models.Steps {
		if s.Timeout.Duration() == 0 {
			s.Timeout = Duration(defaultStepTimeout)
			cfg.Models.Steps[name] = s
		}
	}
}
