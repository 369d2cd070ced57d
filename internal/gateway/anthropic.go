package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/diapredict/diapredict/internal/domain"
)

const anthropicSystemPrompt = "You are a clinical risk assessment assistant. You produce conservative, structured outputs and do not invent facts."

// AnthropicMessager is the subset of the Messages service used by
// AnthropicGenerator
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicGenerator calls the Anthropic Messages API. It has no schema
// mode, so the output contract is sent as a strict JSON instruction and the
// reply is returned as raw text.
type AnthropicGenerator struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

// NewAnthropicGenerator creates an Anthropic API client. SDK level retries
// are disabled; ResilientGenerator owns the retry policy.
func NewAnthropicGenerator(apiKey, model, baseURL string, maxTokens int) *AnthropicGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := anthropic.NewClient(opts...)
	return newAnthropicGenerator(&c.Messages, model, maxTokens)
}

func newAnthropicGenerator(messages AnthropicMessager, model string, maxTokens int) *AnthropicGenerator {
	if model == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicGenerator{
		messages:  messages,
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Name returns the provider name
func (a *AnthropicGenerator) Name() string { return ProviderAnthropic }

// Model returns the model name
func (a *AnthropicGenerator) Model() string { return a.model }

// Generate sends the prompt and returns the concatenated text blocks
func (a *AnthropicGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: buildStrictJSONSystem(req.Schema, anthropicSystemPrompt)}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return nil, wrap(ProviderAnthropic, err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, domain.NewAIServiceError(ProviderAnthropic, domain.FailureServer, errors.New("empty response from model"))
	}

	return &Response{
		Text:  text,
		Model: a.model,
	}, nil
}

// buildStrictJSONSystem merges instruction with a schema hint listing every
// required field, its type and its allowed values
func buildStrictJSONSystem(schema *domain.OutputSchema, instruction string) string {
	instr := strings.TrimSpace(instruction)
	if schema == nil || len(schema.Fields) == 0 {
		return instr
	}

	var b strings.Builder
	b.WriteString("RETURN ONLY A STRICT JSON OBJECT. NO PROSE, NO EXPLANATIONS, NO MARKDOWN.\n")
	b.WriteString("Fields (all required): ")
	for i, f := range schema.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name + ": " + f.Type)
		switch {
		case len(f.Enum) > 0:
			b.WriteString(" one of " + strings.Join(f.Enum, "|"))
		case f.Minimum != nil && f.Maximum != nil:
			b.WriteString(fmt.Sprintf(" in [%g, %g]", *f.Minimum, *f.Maximum))
		}
	}

	if instr == "" {
		return b.String()
	}
	return instr + "\n\n" + b.String()
}
