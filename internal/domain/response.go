package domain

import "errors"

// Client-facing error messages shared by every transport
const (
	MsgInvalidInput     = "Invalid input data"
	MsgPredictionFailed = "Failed to get prediction"
	MsgAIUnavailable    = "AI service unavailable"
	MsgAIInvalidOutput  = "AI produced invalid output"
	MsgInternal         = "Internal error"
)

// ErrorResponse is the body returned to callers when a prediction fails.
// Details holds FieldErrors for validation failures and a short string
// otherwise. Provider and parser internals never appear here.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// NewErrorResponse maps err onto the error taxonomy's response body
func NewErrorResponse(err error) ErrorResponse {
	var (
		inputErr  *InputValidationError
		formatErr *RequestFormatError
		aiErr     *AIServiceError
		outputErr *OutputValidationError
	)

	switch {
	case errors.As(err, &inputErr):
		return ErrorResponse{Error: MsgInvalidInput, Details: inputErr.Fields}
	case errors.As(err, &formatErr):
		return ErrorResponse{Error: formatErr.Message}
	case errors.As(err, &aiErr):
		return ErrorResponse{Error: MsgPredictionFailed, Details: MsgAIUnavailable}
	case errors.As(err, &outputErr):
		return ErrorResponse{Error: MsgPredictionFailed, Details: MsgAIInvalidOutput}
	default:
		return ErrorResponse{Error: MsgPredictionFailed, Details: MsgInternal}
	}
}

// ErrorCode returns the taxonomy code for err, or "" for unexpected errors
func ErrorCode(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
