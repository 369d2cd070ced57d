package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/diapredict/diapredict/internal/domain"
	"github.com/diapredict/diapredict/internal/logging"
	"github.com/diapredict/diapredict/internal/validation"
)

const (
	allowUsage   = "GET, POST"
	allowOptions = "GET, POST, OPTIONS"
)

// Request format messages
const (
	msgInvalidContentType = "Invalid content type, expected application/json"
	msgInvalidJSON        = "Invalid JSON format in request body"
	msgBodyTooLarge       = "Request body too large"
)

// bodyField keys errors about the request body as a whole
const bodyField = "_body"

// handlePredict validates the request and returns the model's prediction
func (s *Server) handlePredict(c *gin.Context) {
	if !isJSONContentType(c.GetHeader("Content-Type")) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": msgInvalidContentType})
		return
	}

	raw, err := decodeObject(c.Request.Body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out, err := s.predictor.Predict(c.Request.Context(), raw)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// decodeObject reads exactly one JSON object from body, keeping numbers as
// json.Number so the validator sees the literal value
func decodeObject(body io.Reader) (map[string]interface{}, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, formatError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return nil, formatError(err)
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		fields := domain.FieldErrors{}
		fields.Add(bodyField, "Request body must be a JSON object.")
		return nil, domain.NewInputValidationError(fields)
	}
	return obj, nil
}

func formatError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return domain.NewRequestFormatError(msgBodyTooLarge, err)
	}
	return domain.NewRequestFormatError(msgInvalidJSON, err)
}

// writeError maps the error taxonomy onto HTTP responses. Provider and
// parser details are logged, never returned.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := domain.ErrorCode(err)

	var maxErr *http.MaxBytesError
	switch code {
	case domain.ErrInputValidation:
		status = http.StatusBadRequest
	case domain.ErrRequestFormat:
		status = http.StatusBadRequest
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
	case domain.ErrAIService, domain.ErrOutputValidation:
		c.Header("X-Error-Code", code)
	default:
		logging.FromContext(c.Request.Context(), s.logger).WithError(err).Error("Unexpected prediction error")
	}

	c.JSON(status, domain.NewErrorResponse(err))
}

func isJSONContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	return err == nil && mediaType == "application/json"
}

// handleUsage documents the POST contract
func (s *Server) handleUsage(c *gin.Context) {
	schema := gin.H{}
	for _, f := range validation.Fields() {
		schema[f] = validation.DescribeField(f)
	}

	c.Header("Allow", allowUsage)
	c.JSON(http.StatusOK, gin.H{
		"message":            "DiaPredict API Endpoint.",
		"usage":              "Send a POST request to this endpoint with patient data in the JSON body to get a diabetes risk prediction.",
		"requiredBodySchema": schema,
		"exampleRequestBody": gin.H{
			validation.FieldAge:        50,
			validation.FieldBloodGroup: "O+",
			validation.FieldGender:     "Female",
			validation.FieldWeight:     75.5,
			validation.FieldHeight:     165,
		},
		"successResponseFormat": gin.H{
			"probability": "number (0-1) - Estimated probability of diabetes.",
			"confidence":  "'High' | 'Medium' | 'Low' - AI's confidence level in the prediction.",
		},
		"errorResponseFormat": gin.H{
			"error":   "string - General error message.",
			"details": "object | string - Specific error details (e.g., validation failures or internal error info).",
		},
	})
}

func (s *Server) handleOptions(c *gin.Context) {
	c.Header("Allow", allowOptions)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMethodNotAllowed(c *gin.Context) {
	logging.FromContext(c.Request.Context(), s.logger).WithFields(logrus.Fields{
		"method": c.Request.Method,
	}).Debug("Rejected unsupported method")

	c.Header("Allow", allowOptions)
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method " + c.Request.Method + " Not Allowed"})
}
