package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"t0/internal/envfile"
)

const (
	ProviderOpenAI               = "openai"
	ProviderGoogleAIStudioGemini = "google_ai_studio_gemini"
	ProviderAnthropic            = "anthropic"

	FunctionTypeChat          = "chat"
	VariantTypeChatCompletion = "chat_completion"

	envLocationPrefix = "env::"
	locationNone      = "none"
)

var ErrInvalidConfig = errors.New("invalid gateway config")

// Config is the subset of a TensorZero-style TOML file the embedded client
// understands. Unknown keys are ignored.
type Config struct {
	Gateway   GatewayConfig             `toml:"gateway"`
	Models    map[string]ModelConfig    `toml:"models"`
	Functions map[string]FunctionConfig `toml:"functions"`
}

type GatewayConfig struct {
	Observability ObservabilityConfig `toml:"observability"`
}

type ObservabilityConfig struct {
	// Enabled defaults to true when a storage URL is configured.
	Enabled *bool `toml:"enabled"`
}

type ModelConfig struct {
	Routing   []string                  `toml:"routing"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

type ProviderConfig struct {
	Type           string `toml:"type"`
	ModelName      string `toml:"model_name"`
	APIBase        string `toml:"api_base"`
	APIKeyLocation string `toml:"api_key_location"`
}

type FunctionConfig struct {
	Type     string                   `toml:"type"`
	Variants map[string]VariantConfig `toml:"variants"`
}

type VariantConfig struct {
	Type           string   `toml:"type"`
	Model          string   `toml:"model"`
	Weight         *float64 `toml:"weight"`
	SystemTemplate string   `toml:"system_template"`
	Temperature    *float64 `toml:"temperature"`
	MaxTokens      int      `toml:"max_tokens"`

	// system is the loaded content of SystemTemplate.
	system string
}

// LoadConfig reads and validates the TOML file at path. System templates are
// resolved relative to the file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gateway config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.loadTemplates(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode gateway config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for name, model := range c.Models {
		if len(model.Routing) == 0 {
			return fmt.Errorf("%w: model %q has empty routing", ErrInvalidConfig, name)
		}
		for _, providerName := range model.Routing {
			if _, ok := model.Providers[providerName]; !ok {
				return fmt.Errorf("%w: model %q routes to unknown provider %q", ErrInvalidConfig, name, providerName)
			}
		}
		for providerName, provider := range model.Providers {
			if err := provider.validate(); err != nil {
				return fmt.Errorf("%w: models.%s.providers.%s: %v", ErrInvalidConfig, name, providerName, err)
			}
		}
	}
	for name, function := range c.Functions {
		if function.Type != "" && function.Type != FunctionTypeChat {
			return fmt.Errorf("%w: function %q has unsupported type %q", ErrInvalidConfig, name, function.Type)
		}
		if len(function.Variants) == 0 {
			return fmt.Errorf("%w: function %q has no variants", ErrInvalidConfig, name)
		}
		for variantName, variant := range function.Variants {
			if variant.Type != "" && variant.Type != VariantTypeChatCompletion {
				return fmt.Errorf("%w: variant %s.%s has unsupported type %q", ErrInvalidConfig, name, variantName, variant.Type)
			}
			if _, ok := c.Models[variant.Model]; !ok {
				return fmt.Errorf("%w: variant %s.%s references unknown model %q", ErrInvalidConfig, name, variantName, variant.Model)
			}
		}
	}
	return nil
}

func (c *Config) loadTemplates(dir string) error {
	for name, function := range c.Functions {
		for variantName, variant := range function.Variants {
			if variant.SystemTemplate == "" {
				continue
			}
			path := variant.SystemTemplate
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read system template for %s.%s: %w", name, variantName, err)
			}
			variant.system = strings.TrimSpace(string(data))
			function.Variants[variantName] = variant
		}
	}
	return nil
}

// ObservabilityEnabled reports whether inferences should be stored.
func (c *Config) ObservabilityEnabled(storageURL string) bool {
	if c.Gateway.Observability.Enabled != nil {
		return *c.Gateway.Observability.Enabled
	}
	return strings.TrimSpace(storageURL) != ""
}

// selectVariant returns the pinned variant, or the highest weight with ties
// broken by name.
func (f FunctionConfig) selectVariant(pinned string) (string, VariantConfig, error) {
	if pinned != "" {
		variant, ok := f.Variants[pinned]
		if !ok {
			return "", VariantConfig{}, fmt.Errorf("%w: %q", ErrUnknownVariant, pinned)
		}
		return pinned, variant, nil
	}
	names := make([]string, 0, len(f.Variants))
	for name := range f.Variants {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	for _, name := range names[1:] {
		if f.Variants[name].weight() > f.Variants[best].weight() {
			best = name
		}
	}
	return best, f.Variants[best], nil
}

func (v VariantConfig) weight() float64 {
	if v.Weight == nil {
		return 0
	}
	return *v.Weight
}

func (p ProviderConfig) validate() error {
	switch p.Type {
	case ProviderOpenAI, ProviderGoogleAIStudioGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported provider type %q", p.Type)
	}
	if strings.TrimSpace(p.ModelName) == "" {
		return errors.New("model_name is required")
	}
	location := p.APIKeyLocation
	if location != "" && location != locationNone && !strings.HasPrefix(location, envLocationPrefix) {
		return fmt.Errorf("unsupported api_key_location %q", location)
	}
	return nil
}

// keyLocation returns the api_key_location or the default for the provider type.
func (p ProviderConfig) keyLocation() string {
	if p.APIKeyLocation != "" {
		return p.APIKeyLocation
	}
	switch p.Type {
	case ProviderOpenAI:
		return envLocationPrefix + envfile.OpenAIAPIKey
	case ProviderGoogleAIStudioGemini:
		return envLocationPrefix + envfile.GoogleAIStudioAPIKey
	case ProviderAnthropic:
		return envLocationPrefix + envfile.AnthropicAPIKey
	default:
		return locationNone
	}
}
