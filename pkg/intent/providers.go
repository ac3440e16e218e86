package intent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// OpenAIProvider talks to any OpenAI-compatible chat endpoint. Pointing
// BaseURL at a local Ollama server ("http://localhost:11434/v1") keeps
// classification fully on-device.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds the provider. apiKey may be a placeholder for
// local servers that ignore it.
func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("intent: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("intent: no choices in completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenAIProvider is the alternate backend for Gemini-style endpoints.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

// NewGenAIProvider builds the provider.
func NewGenAIProvider(ctx context.Context, apiKey, model string) (*GenAIProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("intent: genai client: %w", err)
	}
	return &GenAIProvider{client: client, model: model}, nil
}

func (p *GenAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{
			{Text: system},
			{Text: user},
		}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("intent: generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("intent: empty genai response")
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out, nil
}
