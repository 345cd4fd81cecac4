package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ChatCompleter is the subset of openai.Client used here; it is easy to mock in tests.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIConfig struct {
	BaseURL    string
	Token      string
	Model      string
	HTTPClient *http.Client
}

type OpenAIClient struct {
	completer ChatCompleter
	model     string
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("openai base url is required")
	}
	// empty token is allowed for unauthenticated OpenAI-compatible servers
	token := strings.TrimSpace(cfg.Token)
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("openai model is required")
	}
	clientCfg := openai.DefaultConfig(token)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return NewOpenAIClientWithCompleter(openai.NewClientWithConfig(clientCfg), model), nil
}

func NewOpenAIClientWithCompleter(completer ChatCompleter, model string) *OpenAIClient {
	return &OpenAIClient{
		completer: completer,
		model:     model,
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	payload := openai.ChatCompletionRequest{
		Model:     c.resolveModel(req.Model),
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		payload.Temperature = float32(*req.Temperature)
	}

	resp, err := c.completer.CreateChatCompletion(ctx, payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, errors.New("openai response has no choices")
	}
	return ChatResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		RawRequest:  marshalRaw(payload),
		RawResponse: marshalRaw(resp),
	}, nil
}

func (c *OpenAIClient) resolveModel(override string) string {
	if strings.TrimSpace(override) == "" {
		return c.model
	}
	return override
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	return out
}

func marshalRaw(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
