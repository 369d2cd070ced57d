package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/diapredict/diapredict/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeGenerator returns scripted results in order, repeating the last one
type fakeGenerator struct {
	mu      sync.Mutex
	results []fakeResult
	calls   int
}

type fakeResult struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++

	r := f.results[i]
	if r.err != nil {
		return nil, r.err
	}
	return &Response{Text: r.text, Model: "fake-model"}, nil
}

func (f *fakeGenerator) Name() string  { return "fake" }
func (f *fakeGenerator) Model() string { return "fake-model" }

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestResilient(next Generator, cfg *domain.AIConfig) *ResilientGenerator {
	r := NewResilientGenerator(next, cfg, newTestLogger())
	r.sleep = noSleep
	return r
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected domain.FailureClass
	}{
		{"Deadline", context.DeadlineExceeded, domain.FailureTimeout},
		{"Wrapped deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), domain.FailureTimeout},
		{"Canceled", context.Canceled, domain.FailureUnavailable},
		{"Breaker open", gobreaker.ErrOpenState, domain.FailureUnavailable},
		{"Not configured", ErrProviderNotConfigured, domain.FailureUnavailable},
		{"Genai 429", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, domain.FailureRateLimit},
		{"Genai 503", genai.APIError{Code: 503}, domain.FailureServer},
		{"Genai 400", genai.APIError{Code: 400}, domain.FailureClient},
		{"Status text 429", errors.New("request failed: status 429"), domain.FailureRateLimit},
		{"Status code 502", errors.New("status code: 502 bad gateway"), domain.FailureServer},
		{"Status 401", errors.New("status=401 unauthorized"), domain.FailureClient},
		{"Rate limit text", errors.New("Rate limit reached for requests"), domain.FailureRateLimit},
		{"Resource exhausted", errors.New("RESOURCE_EXHAUSTED"), domain.FailureRateLimit},
		{"Connection refused", errors.New("dial tcp: connection refused"), domain.FailureServer},
		{"Unknown", errors.New("boom"), domain.FailureUnknown},
		{"Existing classification", domain.NewAIServiceError("x", domain.FailureClient, errors.New("bad")), domain.FailureClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestUnconfigured(t *testing.T) {
	g := NewUnconfigured(ProviderGemini, DefaultGeminiModel)

	_, err := g.Generate(context.Background(), &Request{Prompt: "p"})
	require.Error(t, err)

	var aiErr *domain.AIServiceError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, domain.FailureUnavailable, aiErr.Class)
	assert.True(t, errors.Is(err, ErrProviderNotConfigured))
	assert.False(t, IsConfigured(g))
}

func TestNew_MissingKeyIsDegraded(t *testing.T) {
	cfg := &domain.AIConfig{Provider: ProviderGemini, MaxRetries: 2}

	g, err := New(context.Background(), cfg, newTestLogger())
	require.NoError(t, err)

	assert.False(t, IsConfigured(g))
	assert.Equal(t, ProviderGemini, g.Name())
	assert.Equal(t, DefaultGeminiModel, g.Model())
}

func TestNew_AnthropicConfigured(t *testing.T) {
	cfg := &domain.AIConfig{Provider: ProviderAnthropic, APIKey: "test-key", MaxTokens: 256}

	g, err := New(context.Background(), cfg, newTestLogger())
	require.NoError(t, err)

	assert.True(t, IsConfigured(g))
	assert.Equal(t, ProviderAnthropic, g.Name())
	assert.Equal(t, DefaultAnthropicModel, g.Model())
}

func TestNew_UnsupportedProvider(t *testing.T) {
	cfg := &domain.AIConfig{Provider: "mystery", APIKey: "k"}

	_, err := New(context.Background(), cfg, newTestLogger())
	assert.Error(t, err)
}

func TestResilient_RetriesTransientFailures(t *testing.T) {
	fake := &fakeGenerator{results: []fakeResult{
		{err: domain.NewAIServiceError("fake", domain.FailureRateLimit, errors.New("429"))},
		{err: domain.NewAIServiceError("fake", domain.FailureServer, errors.New("503"))},
		{text: `{"probability":0.4,"confidence":"Low"}`},
	}}
	r := newTestResilient(fake, &domain.AIConfig{MaxRetries: 2, RetryBackoff: time.Millisecond})

	resp, err := r.Generate(context.Background(), &Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"probability":0.4,"confidence":"Low"}`, resp.Text)
	assert.Equal(t, 3, fake.Calls())
}

func TestResilient_StopsAfterMaxRetries(t *testing.T) {
	fake := &fakeGenerator{results: []fakeResult{
		{err: domain.NewAIServiceError("fake", domain.FailureTimeout, context.DeadlineExceeded)},
	}}
	r := newTestResilient(fake, &domain.AIConfig{MaxRetries: 2})

	_, err := r.Generate(context.Background(), &Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 3, fake.Calls())

	var aiErr *domain.AIServiceError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, domain.FailureTimeout, aiErr.Class)
}

func TestResilient_DoesNotRetryClientErrors(t *testing.T) {
	fake := &fakeGenerator{results: []fakeResult{
		{err: errors.New("status 400 invalid argument")},
	}}
	r := newTestResilient(fake, &domain.AIConfig{MaxRetries: 2})

	_, err := r.Generate(context.Background(), &Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1, fake.Calls())

	var aiErr *domain.AIServiceError
	require.True(t, errors.As(err, &aiErr), "raw errors must be wrapped")
	assert.Equal(t, domain.FailureClient, aiErr.Class)
	assert.Equal(t, "fake", aiErr.Provider)
}

func TestResilient_CircuitBreakerOpens(t *testing.T) {
	fake := &fakeGenerator{results: []fakeResult{
		{err: errors.New("status 503 unavailable")},
	}}
	cfg := &domain.AIConfig{
		MaxRetries: 0,
		CircuitBreaker: domain.CircuitBreakerConfig{
			Enabled:      true,
			MaxRequests:  1,
			Timeout:      time.Minute,
			MinRequests:  2,
			FailureRatio: 0.5,
		},
	}
	r := newTestResilient(fake, cfg)

	for i := 0; i < 2; i++ {
		_, err := r.Generate(context.Background(), &Request{Prompt: "p"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", r.BreakerState())

	_, err := r.Generate(context.Background(), &Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 2, fake.Calls(), "open breaker must not reach the provider")

	var aiErr *domain.AIServiceError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, domain.FailureUnavailable, aiErr.Class)
}

func TestResilient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	fake := &fakeGenerator{results: []fakeResult{
		{err: errors.New("status 400 bad request")},
	}}
	cfg := &domain.AIConfig{
		CircuitBreaker: domain.CircuitBreakerConfig{Enabled: true, MinRequests: 1, FailureRatio: 0.1, Timeout: time.Minute},
	}
	r := newTestResilient(fake, cfg)

	for i := 0; i < 3; i++ {
		_, _ = r.Generate(context.Background(), &Request{Prompt: "p"})
	}
	assert.Equal(t, "closed", r.BreakerState())
	assert.Equal(t, 3, fake.Calls())
}

func TestResilient_CancelledContextStopsRetries(t *testing.T) {
	fake := &fakeGenerator{results: []fakeResult{
		{err: domain.NewAIServiceError("fake", domain.FailureServer, errors.New("503"))},
	}}
	r := NewResilientGenerator(fake, &domain.AIConfig{MaxRetries: 3, RetryBackoff: time.Hour}, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Generate(ctx, &Request{Prompt: "p"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, fake.Calls())
}

func TestResilient_DisabledBreakerState(t *testing.T) {
	r := newTestResilient(&fakeGenerator{results: []fakeResult{{text: "{}"}}}, &domain.AIConfig{})
	assert.Equal(t, "disabled", r.BreakerState())
	assert.True(t, IsConfigured(r))
}

// fakeModels records the last GenerateContent call
type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
	prompt string
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: parts}},
		},
	}
}

func TestGeminiGenerator_StructuredRequest(t *testing.T) {
	models := &fakeModels{resp: textResponse(
		&genai.Part{Text: "thinking...", Thought: true},
		&genai.Part{Text: `{"probability":0.42,"confidence":"Medium"}`},
	)}
	g := newGeminiGenerator(models, "", 512)

	resp, err := g.Generate(context.Background(), &Request{Prompt: "assess", Schema: domain.PredictionSchema()})
	require.NoError(t, err)

	assert.Equal(t, `{"probability":0.42,"confidence":"Medium"}`, resp.Text)
	assert.True(t, resp.Structured)
	assert.Equal(t, DefaultGeminiModel, models.model)
	assert.Equal(t, "assess", models.prompt)

	require.NotNil(t, models.config)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)
	assert.Equal(t, float32(0), *models.config.Temperature)
	assert.Equal(t, int32(512), models.config.MaxOutputTokens)

	schema := models.config.ResponseSchema
	require.NotNil(t, schema)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"probability", "confidence"}, schema.Required)
	assert.Equal(t, genai.TypeNumber, schema.Properties["probability"].Type)
	assert.Equal(t, 1.0, *schema.Properties["probability"].Maximum)
	assert.Equal(t, []string{"High", "Medium", "Low"}, schema.Properties["confidence"].Enum)
}

func TestGeminiGenerator_Errors(t *testing.T) {
	t.Run("API error", func(t *testing.T) {
		g := newGeminiGenerator(&fakeModels{err: genai.APIError{Code: 429}}, "m", 0)
		_, err := g.Generate(context.Background(), &Request{Prompt: "p"})

		var aiErr *domain.AIServiceError
		require.True(t, errors.As(err, &aiErr))
		assert.Equal(t, domain.FailureRateLimit, aiErr.Class)
		assert.Equal(t, ProviderGemini, aiErr.Provider)
	})

	t.Run("Empty candidates", func(t *testing.T) {
		g := newGeminiGenerator(&fakeModels{resp: &genai.GenerateContentResponse{}}, "m", 0)
		_, err := g.Generate(context.Background(), &Request{Prompt: "p"})

		var aiErr *domain.AIServiceError
		require.True(t, errors.As(err, &aiErr))
	})
}

type fakeMessager struct {
	resp   *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (f *fakeMessager) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.resp, f.err
}

func TestAnthropicGenerator_RawText(t *testing.T) {
	msgs := &fakeMessager{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "```json\n{\"probability\":0.2,"},
			{Type: "text", Text: "\"confidence\":\"Low\"}\n```"},
		},
	}}
	g := newAnthropicGenerator(msgs, "", 0)

	resp, err := g.Generate(context.Background(), &Request{Prompt: "assess", Schema: domain.PredictionSchema()})
	require.NoError(t, err)

	assert.False(t, resp.Structured)
	assert.Contains(t, resp.Text, `"confidence":"Low"`)
	assert.Equal(t, anthropic.Model(DefaultAnthropicModel), msgs.params.Model)
	assert.Equal(t, int64(1024), msgs.params.MaxTokens)
	require.Len(t, msgs.params.System, 1)
	assert.Contains(t, msgs.params.System[0].Text, "RETURN ONLY A STRICT JSON OBJECT")
	assert.Contains(t, msgs.params.System[0].Text, "confidence: string one of High|Medium|Low")
}

func TestAnthropicGenerator_Error(t *testing.T) {
	g := newAnthropicGenerator(&fakeMessager{err: errors.New("status 529 overloaded")}, "m", 0)

	_, err := g.Generate(context.Background(), &Request{Prompt: "p"})
	var aiErr *domain.AIServiceError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, domain.FailureServer, aiErr.Class)
}

func TestBuildStrictJSONSystem(t *testing.T) {
	got := buildStrictJSONSystem(domain.PredictionSchema(), "Be careful.")

	assert.Equal(t,
		"Be careful.\n\nRETURN ONLY A STRICT JSON OBJECT. NO PROSE, NO EXPLANATIONS, NO MARKDOWN.\n"+
			"Fields (all required): probability: number in [0, 1], confidence: string one of High|Medium|Low",
		got)
	assert.Equal(t, "Be careful.", buildStrictJSONSystem(nil, " Be careful. "))
}
