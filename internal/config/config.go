/*
Copyright 2026 The Forge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates the pipeline's hierarchical YAML
// configuration: a file on disk, overridden by a handful of well-known
// environment variables, then checked with struct-tag validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
)

// ServerConfig configures the forge-server HTTP listener.
type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port" validate:"required"`
	MetricsPort string `yaml:"metrics_port"`
}

// AgentConfig configures the Agent Runner backend (pkg/agent.Config mirrors
// this shape; Load converts between the two at the call site nearest
// NewBackend so this package stays free of a pkg/agent import).
type AgentConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model" validate:"required"`
	Region      string        `yaml:"region"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	Provider    string        `yaml:"provider" validate:"required,oneof=anthropic bedrock local"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// ApplyConfig configures C15's auto-apply behaviour.
type ApplyConfig struct {
	AutoApply      bool          `yaml:"auto_apply"`
	MaxConcurrent  int           `yaml:"max_concurrent" validate:"gte=0"`
	CooldownPeriod time.Duration `yaml:"cooldown_period"`
}

// GateConfig mirrors pkg/gate.Config's field shape so it can be loaded from
// YAML without pkg/gate importing this package.
type GateConfig struct {
	AutoApplyThreshold       float64 `yaml:"auto_apply_threshold"`
	ManualReviewThreshold    float64 `yaml:"manual_review_threshold"`
	EscalateThreshold        float64 `yaml:"escalate_threshold"`
	AllowAutoApplyOnCritical  bool    `yaml:"allow_auto_apply_on_critical"`
	RequiresSecurityReview    bool    `yaml:"requires_security_review"`
	RequiresPerformanceReview bool    `yaml:"requires_performance_review"`
}

// FilterConfig scopes the pipeline to a subset of repositories/workflows,
// matched by exact-value membership per condition key.
type FilterConfig struct {
	Name       string              `yaml:"name"`
	Conditions map[string][]string `yaml:"conditions"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// WebhookConfig configures the inbound CI-event listener.
type WebhookConfig struct {
	Port   string `yaml:"port"`
	Path   string `yaml:"path"`
	Secret string `yaml:"secret"`
}

// NotifyConfig configures the optional Slack escalation notifier. Both
// fields empty disables notification entirely.
type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// Config is the complete, validated pipeline configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Agent   AgentConfig    `yaml:"agent"`
	Apply   ApplyConfig    `yaml:"apply"`
	Gate    GateConfig     `yaml:"gate"`
	Filters []FilterConfig `yaml:"filters"`
	Logging LoggingConfig  `yaml:"logging"`
	Webhook WebhookConfig  `yaml:"webhook"`
	Notify  NotifyConfig   `yaml:"notify"`
}

var validate10 = validator.New()

// Load reads path, applies defaults, overlays environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.Provider == "" {
		cfg.Agent.Provider = "local"
	}
	if cfg.Agent.Timeout == 0 {
		cfg.Agent.Timeout = 30 * time.Second
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 500
	}
	if cfg.Apply.MaxConcurrent == 0 {
		cfg.Apply.MaxConcurrent = 5
	}
	if cfg.Apply.CooldownPeriod == 0 {
		cfg.Apply.CooldownPeriod = 5 * time.Minute
	}
	if cfg.Gate.AutoApplyThreshold == 0 {
		cfg.Gate.AutoApplyThreshold = 0.9
	}
	if cfg.Gate.ManualReviewThreshold == 0 {
		cfg.Gate.ManualReviewThreshold = 0.6
	}
	if cfg.Gate.EscalateThreshold == 0 {
		cfg.Gate.EscalateThreshold = 0.3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook"
	}
}

// loadFromEnv overlays a handful of well-known environment variables onto
// cfg, for the deploy-time knobs that don't warrant a config-file edit.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("AGENT_ENDPOINT"); v != "" {
		cfg.Agent.Endpoint = v
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("AGENT_PROVIDER"); v != "" {
		cfg.Agent.Provider = v
	}
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		cfg.Server.WebhookPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AUTO_APPLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTO_APPLY value %q: %w", v, err)
		}
		cfg.Apply.AutoApply = b
	}
	if v := os.Getenv("SLACK_TOKEN"); v != "" {
		cfg.Notify.SlackToken = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		cfg.Notify.SlackChannel = v
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if err := validate10.Struct(cfg); err != nil {
		return forgeerrors.New(forgeerrors.ErrorTypeInputInvalid, "config validation failed: "+err.Error())
	}
	if cfg.Agent.Provider == "local" && cfg.Agent.Endpoint == "" {
		cfg.Agent.Endpoint = "http://localhost:11434"
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 1 {
		return forgeerrors.New(forgeerrors.ErrorTypeInputInvalid, "agent temperature must be between 0.0 and 1.0")
	}
	if cfg.Apply.MaxConcurrent <= 0 {
		return forgeerrors.New(forgeerrors.ErrorTypeInputInvalid, "max concurrent applications must be greater than 0")
	}
	return nil
}
