package domain

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Error codes for the prediction failure taxonomy
const (
	ErrInputValidation  = "INPUT_VALIDATION_ERROR"
	ErrRequestFormat    = "REQUEST_FORMAT_ERROR"
	ErrAIService        = "AI_SERVICE_ERROR"
	ErrOutputValidation = "OUTPUT_VALIDATION_ERROR"
)

// CodedError is implemented by every error in the taxonomy
type CodedError interface {
	error
	Code() string
}

// FieldErrors maps a request field name to the messages describing why it
// was rejected
type FieldErrors map[string][]string

// Add appends a message for field
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Fields returns the rejected field names in sorted order
func (fe FieldErrors) Fields() []string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// ValidationError represents a single field-level violation
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// InputValidationError is returned when one or more request fields fail
// validation. It is recoverable by resubmitting corrected input.
type InputValidationError struct {
	Fields FieldErrors
}

// NewInputValidationError builds an InputValidationError from field errors
func NewInputValidationError(fields FieldErrors) *InputValidationError {
	return &InputValidationError{Fields: fields}
}

// Error implements the error interface
func (e *InputValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Fields[f], " ")))
	}
	return "invalid input data: " + strings.Join(parts, "; ")
}

// Code returns ErrInputValidation
func (e *InputValidationError) Code() string { return ErrInputValidation }

// RequestFormatError is returned for malformed transport payloads
type RequestFormatError struct {
	Message string
	Err     error
}

// NewRequestFormatError creates a RequestFormatError
func NewRequestFormatError(message string, err error) *RequestFormatError {
	return &RequestFormatError{Message: message, Err: err}
}

// Error implements the error interface
func (e *RequestFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying decode error
func (e *RequestFormatError) Unwrap() error { return e.Err }

// Code returns ErrRequestFormat
func (e *RequestFormatError) Code() string { return ErrRequestFormat }

// FailureClass categorizes provider failures
type FailureClass string

// Provider failure classes
const (
	FailureTimeout     FailureClass = "timeout"
	FailureRateLimit   FailureClass = "rate_limit"
	FailureServer      FailureClass = "server"
	FailureClient      FailureClass = "client"
	FailureUnavailable FailureClass = "unavailable"
	FailureUnknown     FailureClass = "unknown"
)

// Transient reports whether a failure of this class may succeed on retry
func (c FailureClass) Transient() bool {
	return c == FailureTimeout || c == FailureRateLimit || c == FailureServer
}

// AIServiceError is returned when the AI provider is unreachable, rate
// limited, times out or otherwise fails to produce a reply
type AIServiceError struct {
	Provider string
	Class    FailureClass
	Err      error
}

// NewAIServiceError creates an AIServiceError
func NewAIServiceError(provider string, class FailureClass, err error) *AIServiceError {
	return &AIServiceError{Provider: provider, Class: class, Err: err}
}

// Error implements the error interface
func (e *AIServiceError) Error() string {
	return fmt.Sprintf("ai service %s failed (%s): %v", e.Provider, e.Class, e.Err)
}

// Unwrap returns the provider error
func (e *AIServiceError) Unwrap() error { return e.Err }

// Code returns ErrAIService
func (e *AIServiceError) Code() string { return ErrAIService }

// maxRawReply bounds how much of a rejected reply is kept for logging
const maxRawReply = 512

// OutputValidationError is returned when the provider reply does not match
// the declared output shape
type OutputValidationError struct {
	Reason string
	Raw    string
}

// NewOutputValidationError creates an OutputValidationError, truncating the
// raw reply so it can be logged safely
func NewOutputValidationError(reason, raw string) *OutputValidationError {
	if len(raw) > maxRawReply {
		cut := maxRawReply
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut] + "..."
	}
	return &OutputValidationError{Reason: reason, Raw: raw}
}

// Error implements the error interface
func (e *OutputValidationError) Error() string {
	return "ai produced invalid output: " + e.Reason
}

// Code returns ErrOutputValidation
func (e *OutputValidationError) Code() string { return ErrOutputValidation }
