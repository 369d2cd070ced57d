package gateway

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/diapredict/diapredict/internal/domain"
)

// geminiModels is the subset of *genai.Models used by GeminiGenerator
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator calls the Gemini API in structured output mode
type GeminiGenerator struct {
	models    geminiModels
	model     string
	maxTokens int32
}

// NewGeminiGenerator creates a Gemini API client
func NewGeminiGenerator(ctx context.Context, apiKey, model, baseURL string, maxTokens int) (*GeminiGenerator, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	return newGeminiGenerator(client.Models, model, maxTokens), nil
}

func newGeminiGenerator(models geminiModels, model string, maxTokens int) *GeminiGenerator {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{
		models:    models,
		model:     model,
		maxTokens: int32(maxTokens),
	}
}

// Name returns the provider name
func (g *GeminiGenerator) Name() string { return ProviderGemini }

// Model returns the model name
func (g *GeminiGenerator) Model() string { return g.model }

// Generate sends the prompt with the request schema as the response schema
func (g *GeminiGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, wrap(ProviderGemini, err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, domain.NewAIServiceError(ProviderGemini, domain.FailureServer, errors.New("empty response from model"))
	}

	return &Response{
		Text:       text,
		Structured: req.Schema != nil,
		Model:      g.model,
	}, nil
}

// responseText concatenates the text parts of the first candidate, skipping
// thought parts
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}

// toGenaiSchema translates the provider-neutral output contract into a
// genai response schema
func toGenaiSchema(schema *domain.OutputSchema) *genai.Schema {
	out := &genai.Schema{
		Type:             genai.TypeObject,
		Title:            schema.Name,
		Properties:       make(map[string]*genai.Schema, len(schema.Fields)),
		Required:         schema.FieldNames(),
		PropertyOrdering: schema.FieldNames(),
	}

	for _, f := range schema.Fields {
		prop := &genai.Schema{
			Description: f.Description,
			Minimum:     f.Minimum,
			Maximum:     f.Maximum,
		}
		switch f.Type {
		case "number":
			prop.Type = genai.TypeNumber
		case "integer":
			prop.Type = genai.TypeInteger
		default:
			prop.Type = genai.TypeString
		}
		if len(f.Enum) > 0 {
			prop.Enum = append([]string(nil), f.Enum...)
			if prop.Type == genai.TypeString {
				prop.Format = "enum"
			}
		}
		out.Properties[f.Name] = prop
	}

	return out
}
