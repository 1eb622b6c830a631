package generate

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxOutputTokens = 8192

// AnthropicProvider generates structured results through the Anthropic
// Messages API. Anthropic has no JSON response format toggle, so the system
// instruction carries the JSON-only contract and the processor validates.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

type AnthropicOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewAnthropicProvider(opts AnthropicOptions) (*AnthropicProvider, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("generate: missing anthropic api key")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("generate: missing anthropic model")
	}
	reqOpts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		reqOpts = append(reqOpts, aoption.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(reqOpts...), model: model}, nil
}

func (p *AnthropicProvider) GenerateStructured(ctx context.Context, req Request) ([]byte, error) {
	if p == nil {
		return nil, errors.New("generate: nil provider")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicDefaultMaxOutputTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt())),
		},
		Temperature: anthropic.Float(0.1),
	}
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	out := extractJSONObject(text.String())
	if out == "" {
		return nil, errors.New("generate: empty anthropic response")
	}
	return []byte(out), nil
}

// extractJSONObject trims any prose or code fences around the outermost JSON
// object in a model response.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
