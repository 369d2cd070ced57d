package gateway

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/diapredict/diapredict/internal/domain"
)

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+|error\s+)(\d{3})`)

// Classify maps a provider or transport error onto a failure class
func Classify(err error) domain.FailureClass {
	if err == nil {
		return domain.FailureUnknown
	}

	var aiErr *domain.AIServiceError
	if errors.As(err, &aiErr) {
		return aiErr.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return domain.FailureUnavailable
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.FailureUnavailable
	}
	if errors.Is(err, ErrProviderNotConfigured) {
		return domain.FailureUnavailable
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.FailureTimeout
	}

	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Code != 0 {
		return classifyStatus(gErr.Code)
	}
	var aErr *anthropic.Error
	if errors.As(err, &aErr) && aErr.StatusCode != 0 {
		return classifyStatus(aErr.StatusCode)
	}

	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return classifyStatus(code)
		}
	}

	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "quota"):
		return domain.FailureRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return domain.FailureTimeout
	case strings.Contains(msg, "server error"), strings.Contains(msg, "unavailable"), strings.Contains(msg, "connection refused"):
		return domain.FailureServer
	default:
		return domain.FailureUnknown
	}
}

func classifyStatus(code int) domain.FailureClass {
	switch {
	case code == 429:
		return domain.FailureRateLimit
	case code == 408:
		return domain.FailureTimeout
	case code >= 500:
		return domain.FailureServer
	case code >= 400:
		return domain.FailureClient
	default:
		return domain.FailureUnknown
	}
}

// wrap converts err into an AIServiceError for provider, keeping an
// existing classification
func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var aiErr *domain.AIServiceError
	if errors.As(err, &aiErr) {
		return err
	}
	return domain.NewAIServiceError(provider, Classify(err), err)
}
