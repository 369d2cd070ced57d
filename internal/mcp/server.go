package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/diapredict/diapredict/internal/domain"
)

// ServerName is reported to MCP clients during initialization
const ServerName = "diapredict"

// Server exposes the prediction pipeline as MCP tools
type Server struct {
	predictor domain.Predictor
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with its tools registered
func NewServer(predictor domain.Predictor, logger *logrus.Logger, version string) *Server {
	serverInfo := &mcp.Implementation{
		Name:    ServerName,
		Version: version,
	}

	server := &Server{
		predictor: predictor,
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}
	server.registerTools()

	return server
}

// Run serves over stdin/stdout until ctx is cancelled or the client hangs up
func (s *Server) Run(ctx context.Context) error {
	status := s.predictor.Status()
	s.logger.WithFields(logrus.Fields{
		"provider":   status.Provider,
		"model":      status.Model,
		"configured": status.Configured,
	}).Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server stopped: %w", err)
	}

	s.logger.Info("MCP server stopped")
	return nil
}

// Connect serves a single session over t
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        PredictToolName,
		Description: predictToolDescription,
		InputSchema: predictInputSchema(),
	}, s.handlePredict)
}
