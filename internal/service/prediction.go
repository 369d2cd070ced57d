package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diapredict/diapredict/internal/domain"
	"github.com/diapredict/diapredict/internal/gateway"
	"github.com/diapredict/diapredict/internal/logging"
	"github.com/diapredict/diapredict/internal/prediction"
	"github.com/diapredict/diapredict/internal/prompt"
	"github.com/diapredict/diapredict/internal/validation"
)

const (
	tracerName     = "github.com/diapredict/diapredict/internal/service"
	defaultTimeout = 30 * time.Second
)

// State is a stage of a single prediction request
type State string

// Request states
const (
	StateReceived    State = "received"
	StateValidating  State = "validating"
	StateRejected    State = "rejected"
	StateValidated   State = "validated"
	StatePrompting   State = "prompting"
	StateAwaitingAI  State = "awaiting_ai"
	StateAIFailed    State = "ai_failed"
	StateParseFailed State = "parse_failed"
	StateParsed      State = "parsed"
	StateResponding  State = "responding"
)

// PredictionService runs validate, prompt, generate and parse for each
// request. It holds no per-request state and is safe for concurrent use.
type PredictionService struct {
	builder   *prompt.Builder
	generator gateway.Generator
	timeout   time.Duration
	logger    *logrus.Logger
	tracer    trace.Tracer
}

// NewPredictionService creates a prediction service. A non-positive timeout
// uses the 30 second default.
func NewPredictionService(builder *prompt.Builder, generator gateway.Generator, timeout time.Duration, logger *logrus.Logger) *PredictionService {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PredictionService{
		builder:   builder,
		generator: generator,
		timeout:   timeout,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Status describes the provider behind the service
func (s *PredictionService) Status() domain.ProviderStatus {
	return domain.ProviderStatus{
		Provider:   s.generator.Name(),
		Model:      s.generator.Model(),
		Configured: gateway.IsConfigured(s.generator),
	}
}

// Predict validates raw and, if valid, asks the provider for a prediction.
// Errors are *domain.InputValidationError, *domain.AIServiceError or
// *domain.OutputValidationError.
func (s *PredictionService) Predict(ctx context.Context, raw map[string]interface{}) (*domain.PredictionOutput, error) {
	ctx, span := s.tracer.Start(ctx, "service.Predict")
	defer span.End()

	entry := logging.FromContext(ctx, s.logger)
	start := time.Now()

	s.transition(span, entry, StateReceived)

	// Step 1: Validate the request payload
	s.transition(span, entry, StateValidating)
	input, err := validation.ValidatePatient(raw)
	if err != nil {
		s.transition(span, entry, StateRejected)
		entry.WithError(err).Info("Prediction request rejected")
		span.SetStatus(codes.Error, domain.ErrInputValidation)
		return nil, err
	}
	s.transition(span, entry, StateValidated)

	out, err := s.run(ctx, span, entry, input)
	if err != nil {
		return nil, err
	}

	s.transition(span, entry, StateResponding)
	entry.WithFields(logrus.Fields{
		"probability":     out.Probability,
		"confidence":      out.Confidence,
		"processing_time": time.Since(start),
	}).Info("Prediction completed")

	return out, nil
}

// PredictPatient predicts for already typed input. The input is validated
// again so typed callers get the same guarantees as raw ones.
func (s *PredictionService) PredictPatient(ctx context.Context, input domain.PatientInput) (*domain.PredictionOutput, error) {
	return s.Predict(ctx, input.AsMap())
}

func (s *PredictionService) run(ctx context.Context, span trace.Span, entry *logrus.Entry, input domain.PatientInput) (*domain.PredictionOutput, error) {
	// Step 2: Render the prompt
	s.transition(span, entry, StatePrompting)
	req := &gateway.Request{
		Prompt: s.builder.Build(input),
		Schema: s.builder.Schema(),
	}

	// Step 3: Call the provider under a bounded timeout
	s.transition(span, entry, StateAwaitingAI)
	aiCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.generator.Generate(aiCtx, req)
	if err != nil {
		err = s.aiFailure(aiCtx, err)
		s.transition(span, entry, StateAIFailed)

		var aiErr *domain.AIServiceError
		errors.As(err, &aiErr)
		entry.WithError(err).WithFields(logrus.Fields{
			"provider": aiErr.Provider,
			"class":    string(aiErr.Class),
			"code":     aiErr.Code(),
		}).Error("AI provider call failed")

		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ErrAIService)
		return nil, err
	}

	// Step 4: Validate the reply against the output contract
	out, err := prediction.Parse(resp.Text)
	if err != nil {
		s.transition(span, entry, StateParseFailed)

		fields := logrus.Fields{"code": domain.ErrOutputValidation, "structured": resp.Structured}
		var ove *domain.OutputValidationError
		if errors.As(err, &ove) {
			fields["raw_reply"] = ove.Raw
		}
		entry.WithError(err).WithFields(fields).Error("AI produced invalid output")

		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ErrOutputValidation)
		return nil, err
	}
	s.transition(span, entry, StateParsed)

	span.SetAttributes(
		attribute.Float64("prediction.probability", out.Probability),
		attribute.String("prediction.confidence", string(out.Confidence)),
	)
	return out, nil
}

// aiFailure guarantees the error is an AIServiceError, reclassifying it as
// a timeout when the service deadline expired
func (s *PredictionService) aiFailure(ctx context.Context, err error) error {
	var aiErr *domain.AIServiceError
	if errors.As(err, &aiErr) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && aiErr.Class != domain.FailureTimeout {
			return domain.NewAIServiceError(aiErr.Provider, domain.FailureTimeout, err)
		}
		return err
	}

	class := gateway.Classify(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		class = domain.FailureTimeout
	}
	return domain.NewAIServiceError(s.generator.Name(), class, err)
}

func (s *PredictionService) transition(span trace.Span, entry *logrus.Entry, state State) {
	span.AddEvent(string(state))
	entry.WithField("state", string(state)).Debug("Prediction state transition")
}
