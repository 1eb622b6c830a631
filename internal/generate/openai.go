package generate

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

const openAIDefaultMaxOutputTokens = 8192

// OpenAIProvider generates structured results through the OpenAI Responses
// API with a JSON-object response format.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	// Model is the default model when requests do not name one.
	Model string
}

func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("generate: missing openai api key")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("generate: missing openai model")
	}
	reqOpts := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		reqOpts = append(reqOpts, ooption.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(reqOpts...), model: model}, nil
}

func (p *OpenAIProvider) GenerateStructured(ctx context.Context, req Request) ([]byte, error) {
	if p == nil {
		return nil, errors.New("generate: nil provider")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.model
	}

	obj := oshared.NewResponseFormatJSONObjectParam()
	params := oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(model),
		MaxOutputTokens: openai.Int(openAIDefaultMaxOutputTokens),
		Temperature:     openai.Float(0.1),
		Input:           oresponses.ResponseNewParamsInputUnion{OfString: openai.String(req.UserPrompt())},
		Text: oresponses.ResponseTextConfigParam{
			Format: oresponses.ResponseFormatTextConfigUnionParam{OfJSONObject: &obj},
		},
	}
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		params.Instructions = openai.String(system)
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return nil, errors.New("generate: empty openai response")
	}
	return []byte(text), nil
}
