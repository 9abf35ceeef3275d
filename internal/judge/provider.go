package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
)

// Config selects and configures the recommendation provider.
type Config struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Mock        bool          `mapstructure:"mock"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// Known provider names. All of them speak the OpenAI chat completions API.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderDeepSeek   = "deepseek"
	ProviderOllama     = "ollama"
)

var defaultBaseURLs = map[string]string{
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderGemini:     "https://generativelanguage.googleapis.com/v1beta/openai",
	ProviderDeepSeek:   "https://api.deepseek.com/v1",
	ProviderOllama:     "http://localhost:11434/v1",
}

// Info describes the configured provider without exposing credentials.
type Info struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Mock     bool   `json:"mock"`
	HasKey   bool   `json:"hasKey"`
}

// Info reports what New would build for c.
func (c Config) Info() Info {
	_, live := c.fallbackReason()
	return Info{
		Provider: c.providerName(),
		Model:    c.Model,
		Mock:     !live,
		HasKey:   c.APIKey != "",
	}
}

func (c Config) providerName() string {
	if c.Provider == "" {
		return ProviderOpenAI
	}
	return strings.ToLower(c.Provider)
}

// fallbackReason returns why no live provider can be built, if any.
func (c Config) fallbackReason() (string, bool) {
	switch {
	case c.Mock:
		return ReasonMock, false
	case c.APIKey == "" && c.providerName() != ProviderOllama:
		return ReasonMissingKey, false
	default:
		return "", true
	}
}

// New builds the provider described by c. Mock mode or a missing API key
// yields a Static provider; only a broken configuration is an error.
func New(ctx context.Context, c Config, logger *slog.Logger) (Provider, error) {
	if reason, live := c.fallbackReason(); !live {
		return Static{Reason: reason}, nil
	}

	name := c.providerName()
	baseURL := c.BaseURL
	if baseURL == "" {
		def, ok := defaultBaseURLs[name]
		if !ok && name != ProviderOpenAI {
			return nil, fmt.Errorf("judge: unknown provider %q", c.Provider)
		}
		baseURL = def
	}
	if c.Model == "" {
		return nil, fmt.Errorf("judge: model is required for provider %q", name)
	}

	cfg := &openai.ChatModelConfig{
		Model:   c.Model,
		APIKey:  c.APIKey,
		BaseURL: baseURL,
		Timeout: c.Timeout,
	}
	if c.Temperature > 0 {
		t := float32(c.Temperature)
		cfg.Temperature = &t
	}
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		cfg.MaxTokens = &n
	}

	chat, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("judge: create %s chat model: %w", name, err)
	}
	return NewLLM(chat, c.Timeout, logger), nil
}
