// Package config provides the hierarchical configuration loader and the
// flattened immutable snapshot the runtime consumes, grounded in the
// upstream framework's cascading Validate/SetDefaults pattern but
// narrowed to the options §6 actually recognizes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ApprovalMode selects the approval queue's confirmation policy (§4.8).
type ApprovalMode string

const (
	ApprovalAuto     ApprovalMode = "auto"
	ApprovalReview   ApprovalMode = "review"
	ApprovalSmart    ApprovalMode = "smart"
	ApprovalDiffOnly ApprovalMode = "diff_only"
)

// RoutingConfig holds the model router's configuration overrides.
type RoutingConfig struct {
	SingleModel string `yaml:"single_model,omitempty"`
	UseExacto   bool   `yaml:"use_exacto"`
}

func (c *RoutingConfig) Validate() error { return nil }
func (c *RoutingConfig) SetDefaults()    {}

// CompactionConfig holds the compaction options. They are loaded,
// defaulted and validated here; memory.Window does not read them and
// prunes on its own fixed 80%/30% thresholds.
type CompactionConfig struct {
	WarningThreshold   float64 `yaml:"warning_threshold"`
	CriticalThreshold  float64 `yaml:"critical_threshold"`
	KeepRecentMessages int     `yaml:"keep_recent_messages"`
	AutoEnabled        bool    `yaml:"auto_enabled"`
}

func (c *CompactionConfig) Validate() error {
	if c.WarningThreshold < 0 || c.WarningThreshold > 1 {
		return fmt.Errorf("compaction.warning_threshold must be in [0,1], got %v", c.WarningThreshold)
	}
	if c.CriticalThreshold < 0 || c.CriticalThreshold > 1 {
		return fmt.Errorf("compaction.critical_threshold must be in [0,1], got %v", c.CriticalThreshold)
	}
	if c.CriticalThreshold < c.WarningThreshold {
		return fmt.Errorf("compaction.critical_threshold (%v) must be >= warning_threshold (%v)", c.CriticalThreshold, c.WarningThreshold)
	}
	if c.KeepRecentMessages < 0 {
		return fmt.Errorf("compaction.keep_recent_messages must be >= 0")
	}
	return nil
}

func (c *CompactionConfig) SetDefaults() {
	if c.WarningThreshold == 0 {
		c.WarningThreshold = 0.8
	}
	if c.CriticalThreshold == 0 {
		c.CriticalThreshold = 0.95
	}
	if c.KeepRecentMessages == 0 {
		c.KeepRecentMessages = 5
	}
}

// ApprovalConfig holds the approval queue's policy and timeout.
type ApprovalConfig struct {
	Mode           ApprovalMode `yaml:"mode,omitempty"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
}

func (c *ApprovalConfig) Validate() error {
	switch c.Mode {
	case "", ApprovalAuto, ApprovalReview, ApprovalSmart, ApprovalDiffOnly:
		return nil
	default:
		return fmt.Errorf("approval.mode %q is not one of auto|review|smart|diff_only", c.Mode)
	}
}

func (c *ApprovalConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ApprovalReview
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 300
	}
}

// LoggingConfig controls the structured logger (grounded on the
// go-hclog level/format knobs the rest of the runtime's logger uses).
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json"`
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not a recognized level", c.Level)
	}
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Config is the hierarchical configuration: either one YAML layer as
// loaded from disk, or the system/user/project layers merged by
// LoadCascade into a single Config. Mirrors the recognized-options list
// in §6.
type Config struct {
	DefaultProvider   string   `yaml:"default_provider,omitempty"`
	DefaultModel      string   `yaml:"default_model,omitempty"`
	MaxContextTokens  int      `yaml:"max_context_tokens,omitempty"`
	BudgetLimit       *float64 `yaml:"budget_limit,omitempty"`
	// FallbackProviders names, in preference order, the providers the
	// turn loop falls back to once the default provider exhausts its
	// retries on a transient failure (§4.10).
	FallbackProviders []string `yaml:"fallback_providers,omitempty"`

	Routing    RoutingConfig    `yaml:"routing,omitempty"`
	Compaction CompactionConfig `yaml:"compaction,omitempty"`
	Approval   ApprovalConfig   `yaml:"approval,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
}

func (c *Config) Validate() error {
	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing validation failed: %w", err)
	}
	if err := c.Compaction.Validate(); err != nil {
		return fmt.Errorf("compaction validation failed: %w", err)
	}
	if err := c.Approval.Validate(); err != nil {
		return fmt.Errorf("approval validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	if c.BudgetLimit != nil && *c.BudgetLimit < 0 {
		return fmt.Errorf("budget_limit must be >= 0")
	}
	return nil
}

func (c *Config) SetDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = "anthropic"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "default"
	}
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 180_000
	}
	c.Routing.SetDefaults()
	c.Compaction.SetDefaults()
	c.Approval.SetDefaults()
	c.Logging.SetDefaults()
}

// Merge layers override onto c (project over user over system), per §6's
// system -> user -> project cascade. Zero-valued fields in override are
// left untouched so an unset project option falls through to the user or
// system layer beneath it.
func (c *Config) Merge(override Config) {
	if override.DefaultProvider != "" {
		c.DefaultProvider = override.DefaultProvider
	}
	if override.DefaultModel != "" {
		c.DefaultModel = override.DefaultModel
	}
	if override.MaxContextTokens != 0 {
		c.MaxContextTokens = override.MaxContextTokens
	}
	if override.BudgetLimit != nil {
		c.BudgetLimit = override.BudgetLimit
	}
	if len(override.FallbackProviders) != 0 {
		c.FallbackProviders = override.FallbackProviders
	}
	if override.Routing.SingleModel != "" {
		c.Routing.SingleModel = override.Routing.SingleModel
	}
	if override.Routing.UseExacto {
		c.Routing.UseExacto = override.Routing.UseExacto
	}
	if override.Compaction.WarningThreshold != 0 {
		c.Compaction.WarningThreshold = override.Compaction.WarningThreshold
	}
	if override.Compaction.CriticalThreshold != 0 {
		c.Compaction.CriticalThreshold = override.Compaction.CriticalThreshold
	}
	if override.Compaction.KeepRecentMessages != 0 {
		c.Compaction.KeepRecentMessages = override.Compaction.KeepRecentMessages
	}
	if override.Compaction.AutoEnabled {
		c.Compaction.AutoEnabled = override.Compaction.AutoEnabled
	}
	if override.Approval.Mode != "" {
		c.Approval.Mode = override.Approval.Mode
	}
	if override.Approval.TimeoutSeconds != 0 {
		c.Approval.TimeoutSeconds = override.Approval.TimeoutSeconds
	}
	if override.Logging.Level != "" {
		c.Logging.Level = override.Logging.Level
	}
	if override.Logging.JSON {
		c.Logging.JSON = override.Logging.JSON
	}
}

// LoadConfig loads a single YAML layer from filePath, expanding
// ${VAR}/${VAR:-default}/$VAR references first.
func LoadConfig(filePath string) (*Config, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", filePath, err)
	}
	return LoadConfigFromString(string(raw))
}

// LoadConfigFromString parses a YAML layer from a string, after env-var
// expansion.
func LoadConfigFromString(yamlContent string) (*Config, error) {
	var cfg Config
	expanded := expandEnvVars(yamlContent)
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// LoadCascade loads and merges the system -> user -> project layers
// named in §6, applying defaults last so every recognized option ends
// up populated. .env/.env.local are loaded first so ${VAR} references in
// any YAML layer can see them.
func LoadCascade(systemPath, userPath, projectPath string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load .env files: %w", err)
	}

	merged := &Config{}
	for _, path := range []string{systemPath, userPath, projectPath} {
		if path == "" {
			continue
		}
		layer, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		merged.Merge(*layer)
	}
	merged.SetDefaults()
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid after cascade: %w", err)
	}
	return merged, nil
}
