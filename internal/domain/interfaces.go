package domain

import (
	"context"
)

// Predictor runs the full validate, prompt, generate and parse pipeline for
// one request
type Predictor interface {
	Predict(ctx context.Context, raw map[string]interface{}) (*PredictionOutput, error)
	PredictPatient(ctx context.Context, input PatientInput) (*PredictionOutput, error)
	Status() ProviderStatus
}

// ProviderStatus describes the configured AI provider for health reporting
type ProviderStatus struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetAIConfig() *AIConfig
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
