package mcp

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/diapredict/diapredict/internal/domain"
	"github.com/diapredict/diapredict/internal/validation"
)

// PredictToolName is the MCP tool that runs a diabetes risk prediction
const PredictToolName = "predict_diabetes_risk"

const predictToolDescription = "Estimate the probability that a patient has diabetes from age, blood group, " +
	"gender, weight and height. All five arguments are required. Returns a probability in [0, 1] " +
	"and a confidence label (High, Medium or Low)."

// predictInputSchema describes the tool arguments. Properties carry no type
// so numeric strings reach the validator and get the same coercion as HTTP.
func predictInputSchema() *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(validation.Fields()))
	for _, f := range validation.Fields() {
		props[f] = &jsonschema.Schema{Description: validation.DescribeField(f)}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
	}
}

// handlePredict runs the shared pipeline. Failures become tool errors
// carrying the same error body the HTTP endpoint returns.
func (s *Server) handlePredict(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	if args == nil {
		args = map[string]any{}
	}

	out, err := s.predictor.Predict(ctx, args)
	if err != nil {
		entry := s.logger.WithFields(logrus.Fields{
			"tool":       PredictToolName,
			"error_code": domain.ErrorCode(err),
		})
		if domain.ErrorCode(err) == domain.ErrInputValidation {
			entry.Debug("Tool call rejected")
		} else {
			entry.WithError(err).Warn("Tool call failed")
		}
		return toolError(err), nil, nil
	}

	return nil, out, nil
}

func toolError(err error) *mcp.CallToolResult {
	body, marshalErr := json.Marshal(domain.NewErrorResponse(err))
	if marshalErr != nil {
		body = []byte(`{"error":"` + domain.MsgPredictionFailed + `"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		IsError: true,
	}
}
