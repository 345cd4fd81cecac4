package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 1024

type AnthropicConfig struct {
	BaseURL    string
	Token      string
	Model      string
	HTTPClient *http.Client
}

type AnthropicClient struct {
	client anthropic.Client
	model  string
}

func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("anthropic token is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("anthropic model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system, rest := splitSystem(req.Messages)
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  buildAnthropicMessages(rest),
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("anthropic request: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.AsText().Text)
		}
	}
	input := int(resp.Usage.InputTokens)
	output := int(resp.Usage.OutputTokens)
	return ChatResponse{
		Content:      content.String(),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage: Usage{
			PromptTokens:     input,
			CompletionTokens: output,
			TotalTokens:      input + output,
		},
		RawRequest:  marshalRaw(params),
		RawResponse: resp.RawJSON(),
	}, nil
}

func buildAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, message := range messages {
		block := anthropic.NewTextBlock(message.Content)
		if message.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}
