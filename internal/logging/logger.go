// Package logging builds the process logger and carries request-scoped
// identifiers through context.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/diapredict/diapredict/internal/domain"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// New creates a logger from configuration. Unknown levels fall back to info.
func New(cfg domain.LoggingConfig) *logrus.Logger {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput creates a logger writing to out
func NewWithOutput(cfg domain.LoggingConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// WithRequestID returns a context carrying id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns an entry tagged with the request id from ctx
func FromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if id := RequestID(ctx); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}
