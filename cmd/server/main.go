package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/diapredict/diapredict/internal/api"
	"github.com/diapredict/diapredict/internal/bootstrap"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "diapredict-server",
		Short:        "Serve the diabetes risk prediction API over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Version:      bootstrap.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/diapredict/config.yaml)")

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, configFile string) error {
	app, err := bootstrap.New(ctx, configFile)
	if err != nil {
		log.Printf("Failed to start: %v", err)
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Close(flushCtx)
	}()

	cfg := app.Config.GetConfig()
	app.Logger.WithField("environment", cfg.Environment).
		Infof("Starting DiaPredict API on %s:%d", cfg.Server.Host, cfg.Server.Port)

	server := api.NewServer(app.Config, app.Predictor, app.Logger, bootstrap.Version)
	if err := server.Start(ctx); err != nil {
		app.Logger.WithError(err).Error("Server failed")
		return fmt.Errorf("server failed: %w", err)
	}

	app.Logger.Info("Server stopped")
	return nil
}
