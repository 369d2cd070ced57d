package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/diapredict/diapredict/internal/domain"
	"github.com/diapredict/diapredict/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	predictor     domain.Predictor
	logger        *logrus.Logger
	version       string
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, predictor domain.Predictor, logger *logrus.Logger, version string) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" || cfg.Logging.Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AccessLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	server := &Server{
		configManager: configManager,
		predictor:     predictor,
		logger:        logger,
		version:       version,
		router:        router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	predict := s.router.Group("/api/predict")
	{
		predict.POST("", s.handlePredict)
		predict.GET("", s.handleUsage)
		predict.OPTIONS("", s.handleOptions)
		predict.PUT("", s.handleMethodNotAllowed)
		predict.DELETE("", s.handleMethodNotAllowed)
		predict.PATCH("", s.handleMethodNotAllowed)
		predict.HEAD("", s.handleMethodNotAllowed)
	}
}

// handleHealth reports liveness and whether the AI provider is configured
func (s *Server) handleHealth(c *gin.Context) {
	status := s.predictor.Status()

	state := "healthy"
	if !status.Configured {
		state = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    state,
		"provider":  status.Provider,
		"model":     status.Model,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
	})
}
