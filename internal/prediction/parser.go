// Package prediction turns AI provider replies into validated
// domain.PredictionOutput values.
package prediction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/diapredict/diapredict/internal/domain"
)

// Parse validates a provider reply against the prediction contract. Replies
// may be wrapped in Markdown code fences or surrounded by prose; the
// outermost JSON object is used. Nothing is defaulted or clamped.
func Parse(text string) (*domain.PredictionOutput, error) {
	body, err := extractObject(text)
	if err != nil {
		return nil, domain.NewOutputValidationError(err.Error(), text)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, domain.NewOutputValidationError(fmt.Sprintf("reply is not a JSON object: %v", err), text)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, domain.NewOutputValidationError("unexpected data after JSON object", text)
	}

	probability, err := parseProbability(fields)
	if err != nil {
		return nil, domain.NewOutputValidationError(err.Error(), text)
	}

	confidence, err := parseConfidence(fields)
	if err != nil {
		return nil, domain.NewOutputValidationError(err.Error(), text)
	}

	return &domain.PredictionOutput{
		Probability: probability,
		Confidence:  confidence,
	}, nil
}

func parseProbability(fields map[string]interface{}) (float64, error) {
	raw, ok := fields["probability"]
	if !ok || raw == nil {
		return 0, fmt.Errorf("missing probability")
	}

	num, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("probability must be a number, got %T", raw)
	}

	p, err := num.Float64()
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("probability %q is not a finite number", num.String())
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("probability %s outside [0, 1]", num.String())
	}
	return p, nil
}

func parseConfidence(fields map[string]interface{}) (domain.Confidence, error) {
	raw, ok := fields["confidence"]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing confidence")
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("confidence must be a string, got %T", raw)
	}

	c := domain.Confidence(s)
	if !c.Valid() {
		return "", fmt.Errorf("confidence %q is not one of High, Medium, Low", s)
	}
	return c, nil
}

// extractObject returns the outermost {...} span of the reply after removing
// code fences
func extractObject(text string) (string, error) {
	s := stripCodeFences(text)
	if s == "" {
		return "", fmt.Errorf("empty reply")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("reply contains no JSON object")
	}
	return s[start : end+1], nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}
