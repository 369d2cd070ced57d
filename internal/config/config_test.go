package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diapredict/diapredict/internal/domain"
)

// clearEnvVars blanks every variable the manager consults for the duration
// of the test
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DIAPREDICT_ENVIRONMENT",
		"DIAPREDICT_SERVER_PORT",
		"DIAPREDICT_AI_PROVIDER",
		"DIAPREDICT_AI_MODEL",
		"DIAPREDICT_AI_API_KEY",
		"DIAPREDICT_AI_TIMEOUT",
		"DIAPREDICT_AI_REQUIRE_API_KEY",
		"DIAPREDICT_PROMPT_BMI_MODE",
		"DIAPREDICT_LOGGING_LEVEL",
		"GOOGLE_GENAI_API_KEY",
		"GEMINI_API_KEY",
		"GOOGLE_API_KEY",
		"ANTHROPIC_API_KEY",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewManager_Defaults(t *testing.T) {
	clearEnvVars(t)
	t.Chdir(t.TempDir())

	m, err := NewManager(WithEnvFile(""))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 2, cfg.AI.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.AI.RetryBackoff)
	assert.True(t, cfg.AI.CircuitBreaker.Enabled)
	assert.Equal(t, domain.BMIModeComputed, cfg.Prompt.BMIMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.AI.APIKey)

	assert.NoError(t, m.Validate())
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)
	t.Chdir(t.TempDir())

	t.Setenv("DIAPREDICT_ENVIRONMENT", "Production")
	t.Setenv("DIAPREDICT_SERVER_PORT", "9090")
	t.Setenv("DIAPREDICT_AI_PROVIDER", "anthropic")
	t.Setenv("DIAPREDICT_AI_TIMEOUT", "5s")
	t.Setenv("DIAPREDICT_PROMPT_BMI_MODE", "formula")
	t.Setenv("DIAPREDICT_LOGGING_LEVEL", "DEBUG")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	m, err := NewManager(WithEnvFile(""))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9090, m.GetServerConfig().Port)
	assert.Equal(t, "anthropic", m.GetAIConfig().Provider)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, domain.BMIModeFormula, cfg.Prompt.BMIMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.True(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

func TestNewManager_APIKeyPrecedence(t *testing.T) {
	clearEnvVars(t)
	t.Chdir(t.TempDir())

	t.Setenv("GEMINI_API_KEY", "fallback")
	t.Setenv("GOOGLE_GENAI_API_KEY", "preferred")

	m, err := NewManager(WithEnvFile(""))
	require.NoError(t, err)
	assert.Equal(t, "preferred", m.GetAIConfig().APIKey)

	t.Setenv("DIAPREDICT_AI_API_KEY", "explicit")
	require.NoError(t, m.Reload())
	assert.Equal(t, "explicit", m.GetAIConfig().APIKey)
}

func TestNewManager_ConfigFile(t *testing.T) {
	clearEnvVars(t)
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "diapredict.yaml", `
environment: staging
server:
  port: 7070
ai:
  provider: gemini
  model: gemini-2.0-pro
  max_retries: 1
prompt:
  bmi_mode: formula
`)

	m, err := NewManager(WithConfigFile(path), WithEnvFile(""))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, path, m.ConfigFileUsed())
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "gemini-2.0-pro", cfg.AI.Model)
	assert.Equal(t, 1, cfg.AI.MaxRetries)
	assert.Equal(t, domain.BMIModeFormula, cfg.Prompt.BMIMode)
	assert.False(t, m.IsDevelopment())
}

func TestNewManager_MissingExplicitConfigFile(t *testing.T) {
	clearEnvVars(t)
	t.Chdir(t.TempDir())

	_, err := NewManager(WithConfigFile("does-not-exist.yaml"), WithEnvFile(""))
	assert.Error(t, err)
}

func TestNewManager_DotEnv(t *testing.T) {
	clearEnvVars(t)
	dir := t.TempDir()
	t.Chdir(dir)

	writeFile(t, dir, ".env", "GOOGLE_GENAI_API_KEY=from-dotenv\nDIAPREDICT_AI_MODEL=gemini-exp\n")
	t.Cleanup(func() {
		os.Unsetenv("GOOGLE_GENAI_API_KEY")
		os.Unsetenv("DIAPREDICT_AI_MODEL")
	})

	m, err := NewManager()
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", m.GetAIConfig().APIKey)
	assert.Equal(t, "gemini-exp", m.GetAIConfig().Model)
}

func TestValidate(t *testing.T) {
	base := func() *domain.Config {
		return &domain.Config{
			Environment: "development",
			Server: domain.ServerConfig{
				Port:         8080,
				ReadTimeout:  time.Second,
				WriteTimeout: time.Second,
				IdleTimeout:  time.Second,
				MaxBodyBytes: 1024,
			},
			AI: domain.AIConfig{
				Provider:   "gemini",
				Timeout:    time.Second,
				MaxRetries: 2,
				MaxTokens:  256,
				CircuitBreaker: domain.CircuitBreakerConfig{
					Enabled:      true,
					Timeout:      time.Second,
					FailureRatio: 0.5,
				},
			},
			Prompt:    domain.PromptConfig{BMIMode: domain.BMIModeComputed},
			Logging:   domain.LoggingConfig{Level: "info", Format: "json"},
			Telemetry: domain.TelemetryConfig{ServiceName: "diapredict", SampleRatio: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*domain.Config)
		wantErr bool
	}{
		{"Valid", func(c *domain.Config) {}, false},
		{"Bad port", func(c *domain.Config) { c.Server.Port = 70000 }, true},
		{"Bad provider", func(c *domain.Config) { c.AI.Provider = "openai" }, true},
		{"Too many retries", func(c *domain.Config) { c.AI.MaxRetries = 9 }, true},
		{"Zero AI timeout", func(c *domain.Config) { c.AI.Timeout = 0 }, true},
		{"Bad BMI mode", func(c *domain.Config) { c.Prompt.BMIMode = "exact" }, true},
		{"Bad log level", func(c *domain.Config) { c.Logging.Level = "verbose" }, true},
		{"Bad failure ratio", func(c *domain.Config) { c.AI.CircuitBreaker.FailureRatio = 1.5 }, true},
		{"Required key missing", func(c *domain.Config) { c.AI.RequireAPIKey = true }, true},
		{"Required key present", func(c *domain.Config) { c.AI.RequireAPIKey = true; c.AI.APIKey = "k" }, false},
		{"Breaker without timeout", func(c *domain.Config) { c.AI.CircuitBreaker.Timeout = 0 }, true},
		{"Endpoint without service name", func(c *domain.Config) {
			c.Telemetry.OTLPEndpoint = "localhost:4318"
			c.Telemetry.ServiceName = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
