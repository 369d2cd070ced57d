// Package bootstrap assembles the prediction pipeline shared by every binary.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/diapredict/diapredict/internal/config"
	"github.com/diapredict/diapredict/internal/gateway"
	"github.com/diapredict/diapredict/internal/logging"
	"github.com/diapredict/diapredict/internal/prompt"
	"github.com/diapredict/diapredict/internal/service"
	"github.com/diapredict/diapredict/internal/telemetry"
)

// Version is set at build time with -ldflags "-X .../bootstrap.Version=..."
var Version = "dev"

// App holds the wired components
type App struct {
	Config    *config.Manager
	Logger    *logrus.Logger
	Predictor *service.PredictionService

	shutdownTracing telemetry.ShutdownFunc
}

// New loads configuration from configFile (or the default search paths when
// empty) and builds the logger, tracer and prediction service.
func New(ctx context.Context, configFile string) (*App, error) {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}

	configManager, err := config.NewManager(opts...)
	if err != nil {
		return nil, err
	}
	if err := configManager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := configManager.GetConfig()
	logger := logging.New(cfg.Logging)
	if used := configManager.ConfigFileUsed(); used != "" {
		logger.WithField("config_file", used).Debug("Loaded configuration file")
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		return nil, err
	}

	generator, err := gateway.New(ctx, &cfg.AI, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to create AI gateway: %w", err)
	}

	predictor := service.NewPredictionService(prompt.NewBuilder(cfg.Prompt.BMIMode), generator, cfg.AI.Timeout, logger)

	return &App{
		Config:          configManager,
		Logger:          logger,
		Predictor:       predictor,
		shutdownTracing: shutdown,
	}, nil
}

// Close flushes pending spans
func (a *App) Close(ctx context.Context) error {
	if a.shutdownTracing == nil {
		return nil
	}
	if err := a.shutdownTracing(ctx); err != nil {
		a.Logger.WithError(err).Warn("Failed to flush traces")
		return err
	}
	return nil
}
