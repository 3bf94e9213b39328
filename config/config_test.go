package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/agentcore/config"
)

func TestLoadConfigFromString_RecognizedOptions(t *testing.T) {
	yamlContent := `
default_provider: anthropic
default_model: claude-sonnet
max_context_tokens: 120000
budget_limit: 5.0
routing:
  single_model: claude-haiku
  use_exacto: true
compaction:
  warning_threshold: 0.75
  critical_threshold: 0.9
  keep_recent_messages: 8
  auto_enabled: true
approval:
  mode: smart
  timeout_seconds: 60
`
	cfg, err := config.LoadConfigFromString(yamlContent)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, 120000, cfg.MaxContextTokens)
	require.NotNil(t, cfg.BudgetLimit)
	assert.Equal(t, 5.0, *cfg.BudgetLimit)
	assert.Equal(t, "claude-haiku", cfg.Routing.SingleModel)
	assert.Equal(t, config.ApprovalSmart, cfg.Approval.Mode)
}

func TestLoadConfigFromString_EnvExpansion(t *testing.T) {
	t.Setenv("AGENTCORE_PROVIDER", "openai")
	cfg, err := config.LoadConfigFromString("default_provider: ${AGENTCORE_PROVIDER:-anthropic}\n")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.DefaultProvider)
}

func TestLoadConfigFromString_EnvExpansionFallsBackToDefault(t *testing.T) {
	os.Unsetenv("AGENTCORE_MISSING_VAR")
	cfg, err := config.LoadConfigFromString("default_provider: ${AGENTCORE_MISSING_VAR:-anthropic}\n")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	assert.Equal(t, 180_000, cfg.MaxContextTokens)
	assert.Equal(t, config.ApprovalReview, cfg.Approval.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfig_Validate_RejectsInconsistentThresholds(t *testing.T) {
	cfg := &config.Config{
		Compaction: config.CompactionConfig{WarningThreshold: 0.9, CriticalThreshold: 0.5},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_Merge_ProjectOverridesUser(t *testing.T) {
	base := &config.Config{DefaultProvider: "anthropic", MaxContextTokens: 100000}
	base.Merge(config.Config{DefaultProvider: "openai"})
	assert.Equal(t, "openai", base.DefaultProvider)
	assert.Equal(t, 100000, base.MaxContextTokens)
}

func TestLoadConfig_MissingFileReturnsEmpty(t *testing.T) {
	cfg, err := config.LoadConfig("/nonexistent/path/agentcore.yaml")
	require.NoError(t, err)
	assert.Equal(t, "", cfg.DefaultProvider)
}
