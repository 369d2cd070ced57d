package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	AI          AIConfig        `mapstructure:"ai"`
	Prompt      PromptConfig    `mapstructure:"prompt"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// AIConfig represents the generative AI provider configuration
type AIConfig struct {
	Provider       string               `mapstructure:"provider" validate:"oneof=gemini anthropic"`
	Model          string               `mapstructure:"model"`
	APIKey         string               `mapstructure:"api_key"`
	BaseURL        string               `mapstructure:"base_url"`
	RequireAPIKey  bool                 `mapstructure:"require_api_key"`
	Timeout        time.Duration        `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries     int                  `mapstructure:"max_retries" validate:"min=0,max=5"`
	RetryBackoff   time.Duration        `mapstructure:"retry_backoff" validate:"gte=0"`
	RateLimit      float64              `mapstructure:"rate_limit" validate:"gte=0"`
	Burst          int                  `mapstructure:"burst" validate:"gte=0"`
	MaxTokens      int                  `mapstructure:"max_tokens" validate:"gt=0"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig configures the breaker wrapped around the provider
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval" validate:"gte=0"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
}

// BMI handling modes for the prompt builder
const (
	BMIModeComputed = "computed"
	BMIModeFormula  = "formula"
)

// PromptConfig controls prompt construction
type PromptConfig struct {
	BMIMode string `mapstructure:"bmi_mode" validate:"oneof=computed formula"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TelemetryConfig represents tracing configuration
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}
