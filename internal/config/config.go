package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/diapredict/diapredict/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. DIAPREDICT_AI_MODEL
const EnvPrefix = "DIAPREDICT"

// Provider specific API key variables consulted when ai.api_key is empty
var providerKeyEnv = map[string][]string{
	"gemini":    {"GOOGLE_GENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
}

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	config     *domain.Config
	configFile string
	envFile    string
}

// Option configures a Manager
type Option func(*Manager)

// WithConfigFile reads configuration from an explicit file instead of
// searching the default paths
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// WithEnvFile loads environment variables from path before reading
// configuration. Defaults to ".env"; an empty path disables loading.
func WithEnvFile(path string) Option {
	return func(m *Manager) {
		m.envFile = path
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{envFile: ".env"}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from .env, the config file, the
// environment and defaults
func (m *Manager) loadConfig() error {
	// Existing environment variables win over .env entries
	if m.envFile != "" {
		if err := godotenv.Load(m.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading env file %s: %w", m.envFile, err)
		}
	}

	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/diapredict/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	normalize(config)
	resolveAPIKey(&config.AI)

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values. Every key needs a default
// so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors_origins", []string{"*"})

	// AI provider defaults
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.require_api_key", false)
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_backoff", "500ms")
	v.SetDefault("ai.rate_limit", 0)
	v.SetDefault("ai.burst", 1)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.circuit_breaker.enabled", true)
	v.SetDefault("ai.circuit_breaker.max_requests", 3)
	v.SetDefault("ai.circuit_breaker.interval", "60s")
	v.SetDefault("ai.circuit_breaker.timeout", "30s")
	v.SetDefault("ai.circuit_breaker.min_requests", 5)
	v.SetDefault("ai.circuit_breaker.failure_ratio", 0.6)

	// Prompt defaults
	v.SetDefault("prompt.bmi_mode", domain.BMIModeComputed)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.service_name", "diapredict")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

func normalize(cfg *domain.Config) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	cfg.AI.APIKey = strings.TrimSpace(cfg.AI.APIKey)
	cfg.Prompt.BMIMode = strings.ToLower(strings.TrimSpace(cfg.Prompt.BMIMode))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
}

// resolveAPIKey falls back to the provider's conventional variables
func resolveAPIKey(ai *domain.AIConfig) {
	if ai.APIKey != "" {
		return
	}
	for _, name := range providerKeyEnv[ai.Provider] {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			ai.APIKey = key
			return
		}
	}
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetAIConfig returns AI provider configuration
func (m *Manager) GetAIConfig() *domain.AIConfig {
	return &m.config.AI
}

// ConfigFileUsed returns the config file that was read, if any
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks struct tags and cross-field rules
func Validate(cfg *domain.Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.AI.RequireAPIKey && cfg.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required when ai.require_api_key is set")
	}
	if cfg.AI.CircuitBreaker.Enabled && cfg.AI.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("ai.circuit_breaker.timeout must be positive when the breaker is enabled")
	}
	if cfg.Telemetry.OTLPEndpoint != "" && cfg.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry.service_name is required when an OTLP endpoint is set")
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return m.config.Environment == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := m.config.Environment
	return env == "development" || env == "dev" || env == ""
}
