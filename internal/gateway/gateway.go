// Package gateway adapts generative AI providers to a single text
// generation interface used by the prediction service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/diapredict/diapredict/internal/domain"
)

// Supported providers
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Default models per provider
const (
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
)

// ErrProviderNotConfigured is returned by every call on a generator built
// without an API key
var ErrProviderNotConfigured = errors.New("ai provider not configured: missing API key")

// Request is a single generation request
type Request struct {
	Prompt string
	// Schema is the declared reply shape. Providers with a structured
	// output mode enforce it natively; others receive it as instructions.
	Schema *domain.OutputSchema
}

// Response is the raw provider reply
type Response struct {
	Text string
	// Structured reports whether the provider enforced the schema itself
	Structured bool
	Model      string
}

// Generator sends a prompt to an AI provider and returns its reply text.
// Implementations must be safe for concurrent use. Failures are returned as
// *domain.AIServiceError.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Name() string
	Model() string
}

// Unconfigured is the generator used when no API key is available. The
// service still starts so health checks can report the degraded state.
type Unconfigured struct {
	provider string
	model    string
}

// NewUnconfigured creates a generator that always fails with
// ErrProviderNotConfigured
func NewUnconfigured(provider, model string) *Unconfigured {
	return &Unconfigured{provider: provider, model: model}
}

// Generate always fails
func (u *Unconfigured) Generate(ctx context.Context, req *Request) (*Response, error) {
	return nil, domain.NewAIServiceError(u.provider, domain.FailureUnavailable, ErrProviderNotConfigured)
}

// Name returns the provider name
func (u *Unconfigured) Name() string { return u.provider }

// Model returns the configured model name
func (u *Unconfigured) Model() string { return u.model }

// IsConfigured reports whether g can reach a provider
func IsConfigured(g Generator) bool {
	switch v := g.(type) {
	case *Unconfigured:
		return false
	case *ResilientGenerator:
		return IsConfigured(v.next)
	default:
		return g != nil
	}
}

// DefaultModel returns the default model for provider
func DefaultModel(provider string) string {
	if provider == ProviderAnthropic {
		return DefaultAnthropicModel
	}
	return DefaultGeminiModel
}

// New builds the generator described by cfg, wrapped with the configured
// rate limit, circuit breaker and retry policies. A missing API key yields
// an Unconfigured generator rather than an error.
func New(ctx context.Context, cfg *domain.AIConfig, logger *logrus.Logger) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGemini
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel(provider)
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.WithFields(logrus.Fields{
			"provider": provider,
			"model":    model,
		}).Error("AI provider API key is not configured; predictions will fail until it is set")
		return NewResilientGenerator(NewUnconfigured(provider, model), cfg, logger), nil
	}

	var (
		gen Generator
		err error
	)
	switch provider {
	case ProviderGemini:
		gen, err = NewGeminiGenerator(ctx, cfg.APIKey, model, cfg.BaseURL, cfg.MaxTokens)
	case ProviderAnthropic:
		gen = NewAnthropicGenerator(cfg.APIKey, model, cfg.BaseURL, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}

	logger.WithFields(logrus.Fields{
		"provider": provider,
		"model":    model,
	}).Info("AI provider configured")

	return NewResilientGenerator(gen, cfg, logger), nil
}
