package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

	geminiAPIKeyHeader = "x-goog-api-key"
)

type GeminiConfig struct {
	BaseURL    string
	Token      string
	Model      string
	HTTPClient *http.Client
}

type GeminiClient struct {
	baseURL    string
	token      string
	model      string
	httpClient *http.Client
}

func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("gemini token is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("gemini model is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiClient{
		baseURL:    baseURL,
		token:      token,
		model:      model,
		httpClient: client,
	}, nil
}

func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	contents, system := buildGeminiContents(req.Messages)
	payload := geminiGenerateContentRequest{
		Contents:          contents,
		SystemInstruction: system,
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		payload.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	var resp geminiGenerateContentResponse
	raw, err := c.do(ctx, payload, c.resolveModel(req.Model), &resp)
	if err != nil {
		return ChatResponse{}, err
	}
	if len(resp.Candidates) == 0 {
		return ChatResponse{}, errors.New("gemini response has no candidates")
	}
	content := flattenGeminiContent(resp.Candidates[0].Content)
	return ChatResponse{
		Content:      content,
		Model:        resp.ModelVersion,
		FinishReason: resp.Candidates[0].FinishReason,
		Usage: Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
		RawRequest:  marshalRaw(payload),
		RawResponse: raw,
	}, nil
}

func (c *GeminiClient) resolveModel(override string) string {
	if strings.TrimSpace(override) == "" {
		return c.model
	}
	return override
}

func (c *GeminiClient) do(ctx context.Context, payload geminiGenerateContentRequest, model string, out *geminiGenerateContentResponse) (string, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint, err := buildGeminiEndpoint(c.baseURL, model)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// url.Error echoes the query string, so the key goes in a header
	httpReq.Header.Set(geminiAPIKeyHeader, c.token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return "", readGeminiError(httpResp.Body, httpResp.StatusCode)
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("gemini error: %s", out.Error.Message)
	}
	return string(body), nil
}

func buildGeminiEndpoint(baseURL, model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("gemini model is required")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	apiPath := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(apiPath, "/v1") && !strings.HasSuffix(apiPath, "/v1beta") {
		apiPath = path.Join(apiPath, "/v1beta")
	}
	u.Path = path.Join(apiPath, "models", model+":generateContent")
	return u.String(), nil
}

func readGeminiError(body io.Reader, status int) error {
	var resp geminiGenerateContentResponse
	_ = json.NewDecoder(body).Decode(&resp)
	if resp.Error != nil && resp.Error.Message != "" {
		return fmt.Errorf("gemini request failed: %s (status %d)", resp.Error.Message, status)
	}
	return fmt.Errorf("gemini request failed with status %d", status)
}

func buildGeminiContents(messages []Message) ([]geminiContent, *geminiSystemInstruction) {
	system, rest := splitSystem(messages)
	var instruction *geminiSystemInstruction
	if system != "" {
		instruction = &geminiSystemInstruction{
			Parts: []geminiPart{{Text: system}},
		}
	}
	contents := make([]geminiContent, 0, len(rest))
	for _, message := range rest {
		role := message.Role
		if role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: message.Content}},
		})
	}
	return contents, instruction
}

func flattenGeminiContent(content geminiContent) string {
	var builder strings.Builder
	for _, part := range content.Parts {
		builder.WriteString(part.Text)
	}
	return builder.String()
}

type geminiGenerateContentRequest struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig  `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
	ModelVersion  string              `json:"modelVersion,omitempty"`
	Error         *geminiError        `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiError struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
