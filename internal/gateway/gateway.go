// Package gateway is an in-process inference client. It reads a
// TensorZero-style config file, calls the configured model provider directly
// and records each inference in the storage named by a URL.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"t0/internal/envfile"
	"t0/internal/llm"
	"t0/internal/metrics"
	"t0/internal/store"
)

const (
	DefaultFunctionName = "tensorzero::default"

	modelNamePrefix = "tensorzero::model_name::"
	shorthandSep    = "::"
)

var (
	ErrClosed          = errors.New("gateway client is closed")
	ErrInvalidParams   = errors.New("invalid inference params")
	ErrUnknownFunction = errors.New("unknown function")
	ErrUnknownVariant  = errors.New("unknown variant")
	ErrUnknownModel    = errors.New("unknown model")
	ErrMissingAPIKey   = errors.New("missing provider api key")
)

type Options struct {
	StorageURL string
	ConfigFile string
	Env        *envfile.Env
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// Store replaces the store opened from StorageURL.
	Store      store.Store
	HTTPClient *http.Client
}

type Input struct {
	System   string        `json:"system,omitempty"`
	Messages []llm.Message `json:"messages"`
}

type Params struct {
	FunctionName string
	ModelName    string
	VariantName  string
	EpisodeID    uuid.UUID
	Input        Input
	Tags         map[string]string
	// Dryrun skips storage.
	Dryrun bool
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Response struct {
	InferenceID  uuid.UUID      `json:"inference_id"`
	EpisodeID    uuid.UUID      `json:"episode_id"`
	VariantName  string         `json:"variant_name"`
	Content      []ContentBlock `json:"content"`
	Usage        Usage          `json:"usage"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

type Gateway struct {
	cfg        *Config
	env        *envfile.Env
	store      store.Store
	logger     *zap.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client

	mu     sync.RWMutex
	closed bool

	clientsMu sync.Mutex
	clients   map[string]llm.Client
}

// BuildEmbedded loads the config file and opens storage. The caller must
// Close the returned Gateway.
func BuildEmbedded(ctx context.Context, opts Options) (*Gateway, error) {
	if strings.TrimSpace(opts.ConfigFile) == "" {
		return nil, fmt.Errorf("%w: config file is required", ErrInvalidConfig)
	}
	cfg, err := LoadConfig(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:        cfg,
		env:        opts.Env,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		httpClient: opts.HTTPClient,
		clients:    make(map[string]llm.Client),
	}
	if g.env == nil {
		g.env = envfile.New(nil)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}

	switch {
	case opts.Store != nil:
		g.store = opts.Store
	case cfg.ObservabilityEnabled(opts.StorageURL):
		if strings.TrimSpace(opts.StorageURL) == "" {
			return nil, fmt.Errorf("%w: observability is enabled but no storage url is set", ErrInvalidConfig)
		}
		s, err := store.Open(ctx, opts.StorageURL)
		if err != nil {
			return nil, fmt.Errorf("open storage %s: %w", store.Redact(opts.StorageURL), err)
		}
		g.store = s
	default:
		g.store = store.Nop{}
	}
	if err := g.store.Ping(ctx); err != nil {
		_ = g.store.Close()
		return nil, fmt.Errorf("ping storage %s: %w", store.Redact(opts.StorageURL), err)
	}

	g.logger.Debug("embedded gateway ready",
		zap.String("config_file", opts.ConfigFile),
		zap.String("storage", store.Redact(opts.StorageURL)),
		zap.Int("functions", len(cfg.Functions)),
		zap.Int("models", len(cfg.Models)),
	)
	return g, nil
}

// Inference runs one function or model call.
func (g *Gateway) Inference(ctx context.Context, params Params) (*Response, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, ErrClosed
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	functionName, variantName, variant, model, err := g.resolve(params)
	if err != nil {
		return nil, err
	}
	providerName := model.Routing[0]
	provider := model.Providers[providerName]

	client, err := g.client(variant.Model, providerName, provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	chatResp, err := client.Chat(ctx, llm.ChatRequest{
		Model:       provider.ModelName,
		Messages:    buildMessages(params.Input, variant.system),
		Temperature: variant.Temperature,
		MaxTokens:   variant.MaxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		g.metrics.RecordInference(functionName, variantName, "error", elapsed)
		return nil, fmt.Errorf("%s/%s: %w", variant.Model, providerName, err)
	}
	g.metrics.RecordInference(functionName, variantName, "ok", elapsed)
	g.metrics.RecordTokens(variant.Model, chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)

	inferenceID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate inference id: %w", err)
	}
	episodeID := params.EpisodeID
	if episodeID == uuid.Nil {
		if episodeID, err = uuid.NewV7(); err != nil {
			return nil, fmt.Errorf("generate episode id: %w", err)
		}
	}

	resp := &Response{
		InferenceID:  inferenceID,
		EpisodeID:    episodeID,
		VariantName:  variantName,
		Content:      []ContentBlock{{Type: "text", Text: chatResp.Content}},
		Usage:        Usage{InputTokens: chatResp.Usage.PromptTokens, OutputTokens: chatResp.Usage.CompletionTokens},
		FinishReason: chatResp.FinishReason,
	}

	g.logger.Debug("inference complete",
		zap.String("function", functionName),
		zap.String("variant", variantName),
		zap.String("model", variant.Model),
		zap.String("provider", providerName),
		zap.Duration("elapsed", elapsed),
	)

	if !params.Dryrun {
		if err := g.write(ctx, functionName, providerName, variant.Model, params, resp, chatResp, elapsed); err != nil {
			g.metrics.RecordStorageFailure()
			g.logger.Warn("failed to store inference", zap.Error(err), zap.Stringer("inference_id", inferenceID))
		}
	}
	return resp, nil
}

// Close releases storage. It is safe to call more than once.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if err := g.store.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}

func validateParams(params Params) error {
	hasFunction := strings.TrimSpace(params.FunctionName) != ""
	hasModel := strings.TrimSpace(params.ModelName) != ""
	if hasFunction == hasModel {
		return fmt.Errorf("%w: exactly one of function name or model name is required", ErrInvalidParams)
	}
	if hasModel && params.VariantName != "" {
		return fmt.Errorf("%w: variant name cannot be used with a model name", ErrInvalidParams)
	}
	if len(params.Input.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidParams)
	}
	for i, message := range params.Input.Messages {
		if !llm.ValidRole(message.Role) {
			return fmt.Errorf("%w: message %d has invalid role %q", ErrInvalidParams, i, message.Role)
		}
	}
	return nil
}

func (g *Gateway) resolve(params Params) (string, string, VariantConfig, ModelConfig, error) {
	if params.ModelName != "" {
		modelName, model, err := g.resolveModel(params.ModelName)
		if err != nil {
			return "", "", VariantConfig{}, ModelConfig{}, err
		}
		return DefaultFunctionName, modelName, VariantConfig{Type: VariantTypeChatCompletion, Model: modelName}, model, nil
	}

	function, ok := g.cfg.Functions[params.FunctionName]
	if !ok {
		return "", "", VariantConfig{}, ModelConfig{}, fmt.Errorf("%w: %q", ErrUnknownFunction, params.FunctionName)
	}
	variantName, variant, err := function.selectVariant(params.VariantName)
	if err != nil {
		return "", "", VariantConfig{}, ModelConfig{}, err
	}
	model, ok := g.cfg.Models[variant.Model]
	if !ok {
		return "", "", VariantConfig{}, ModelConfig{}, fmt.Errorf("%w: %q", ErrUnknownModel, variant.Model)
	}
	return params.FunctionName, variantName, variant, model, nil
}

// resolveModel finds a configured model, or builds one from the
// "<provider_type>::<model_name>" shorthand.
func (g *Gateway) resolveModel(name string) (string, ModelConfig, error) {
	name = strings.TrimPrefix(name, modelNamePrefix)
	if model, ok := g.cfg.Models[name]; ok {
		return name, model, nil
	}
	providerType, modelName, ok := strings.Cut(name, shorthandSep)
	if !ok {
		return "", ModelConfig{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	provider := ProviderConfig{Type: providerType, ModelName: modelName}
	if err := provider.validate(); err != nil {
		return "", ModelConfig{}, fmt.Errorf("%w: %q: %v", ErrUnknownModel, name, err)
	}
	return name, ModelConfig{
		Routing:   []string{providerType},
		Providers: map[string]ProviderConfig{providerType: provider},
	}, nil
}

func (g *Gateway) client(modelName, providerName string, provider ProviderConfig) (llm.Client, error) {
	key := modelName + "/" + providerName
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()
	if client, ok := g.clients[key]; ok {
		return client, nil
	}
	client, err := g.newClient(provider)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", modelName, providerName, err)
	}
	g.clients[key] = client
	return client, nil
}

func (g *Gateway) newClient(provider ProviderConfig) (llm.Client, error) {
	apiKey, err := g.apiKey(provider)
	if err != nil {
		return nil, err
	}
	switch provider.Type {
	case ProviderOpenAI:
		baseURL := provider.APIBase
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:    baseURL,
			Token:      apiKey,
			Model:      provider.ModelName,
			HTTPClient: g.httpClient,
		})
	case ProviderGoogleAIStudioGemini:
		return llm.NewGeminiClient(llm.GeminiConfig{
			BaseURL:    provider.APIBase,
			Token:      apiKey,
			Model:      provider.ModelName,
			HTTPClient: g.httpClient,
		})
	case ProviderAnthropic:
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			BaseURL:    provider.APIBase,
			Token:      apiKey,
			Model:      provider.ModelName,
			HTTPClient: g.httpClient,
		})
	default:
		return nil, fmt.Errorf("unsupported provider type %q", provider.Type)
	}
}

func (g *Gateway) apiKey(provider ProviderConfig) (string, error) {
	location := provider.keyLocation()
	if location == locationNone {
		return "", nil
	}
	name := strings.TrimPrefix(location, envLocationPrefix)
	value := g.env.Get(name)
	if value == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, name)
	}
	return value, nil
}

func buildMessages(input Input, variantSystem string) []llm.Message {
	system := input.System
	if system == "" {
		system = variantSystem
	}
	messages := make([]llm.Message, 0, len(input.Messages)+1)
	if system != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	return append(messages, input.Messages...)
}

func (g *Gateway) write(
	ctx context.Context,
	functionName string,
	providerName, modelName string,
	params Params,
	resp *Response,
	chatResp llm.ChatResponse,
	elapsed time.Duration,
) error {
	input, err := json.Marshal(params.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	output, err := json.Marshal(resp.Content)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	modelInferenceID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate model inference id: %w", err)
	}
	now := time.Now().UTC()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.store.WriteChatInference(ctx, store.ChatInference{
			ID:             resp.InferenceID,
			FunctionName:   functionName,
			VariantName:    resp.VariantName,
			EpisodeID:      resp.EpisodeID,
			Input:          string(input),
			Output:         string(output),
			Tags:           params.Tags,
			ProcessingTime: elapsed,
			CreatedAt:      now,
		})
	})
	eg.Go(func() error {
		return g.store.WriteModelInference(ctx, store.ModelInference{
			ID:                modelInferenceID,
			InferenceID:       resp.InferenceID,
			RawRequest:        chatResp.RawRequest,
			RawResponse:       chatResp.RawResponse,
			ModelName:         modelName,
			ModelProviderName: providerName,
			InputTokens:       resp.Usage.InputTokens,
			OutputTokens:      resp.Usage.OutputTokens,
			ResponseTime:      elapsed,
			CreatedAt:         now,
		})
	})
	return eg.Wait()
}
