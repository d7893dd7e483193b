package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// Completion drivers.
const (
	DriverHTTP = "http"
	DriverEino = "eino"
)

// Completion providers.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderArk        = "ark"
	ProviderClaude     = "claude"
)

// DefaultMaxTokens caps every completion unless COMPLETION_MAX_TOKENS overrides it.
const DefaultMaxTokens = 1000

type providerPreset struct {
	label    string
	keyEnv   string
	endpoint string // OpenAI-compatible chat completions URL, empty when unsupported
	baseURL  string // SDK base URL, empty means SDK default
	model    string
}

var presets = map[string]providerPreset{
	ProviderOpenAI: {
		label:    "ChatGPT",
		keyEnv:   "OPENAI_API_KEY",
		endpoint: "https://api.openai.com/v1/chat/completions",
		baseURL:  "https://api.openai.com/v1",
		model:    "gpt-4o-mini",
	},
	ProviderOpenRouter: {
		label:    "Gemini",
		keyEnv:   "OPENROUTER_API_KEY",
		endpoint: "https://openrouter.ai/api/v1/chat/completions",
		baseURL:  "https://openrouter.ai/api/v1",
		model:    "google/gemini-2.0-flash-001",
	},
	ProviderGemini: {
		label:    "Gemini",
		keyEnv:   "GEMINI_API_KEY",
		endpoint: "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
		model:    "gemini-2.0-flash",
	},
	ProviderArk: {
		label:    "Doubao",
		keyEnv:   "ARK_API_KEY",
		endpoint: "https://ark.cn-beijing.volces.com/api/v3/chat/completions",
		baseURL:  "https://ark.cn-beijing.volces.com/api/v3",
	},
	ProviderClaude: {
		label:  "Claude",
		keyEnv: "ANTHROPIC_API_KEY",
		model:  "claude-3-5-haiku-latest",
	},
}

// CompletionConfig 描述补全后端配置。密钥只在启动时读取一次。
type CompletionConfig struct {
	Driver    string
	Provider  string
	Label     string
	APIKey    string
	Model     string
	Endpoint  string
	BaseURL   string
	Region    string
	MaxTokens int
	Timeout   time.Duration
	Referer   string
	Title     string
}

// HasAPIKey 表示是否提供了密钥。缺失时请求会被后端拒绝，而不是启动失败。
func (c CompletionConfig) HasAPIKey() bool {
	return c.APIKey != ""
}

func loadCompletionConfig() (CompletionConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("COMPLETION_PROVIDER", ProviderGemini))
	preset, ok := presets[provider]
	if !ok {
		return CompletionConfig{}, fmt.Errorf("invalid COMPLETION_PROVIDER value %q", provider)
	}

	driver := strings.ToLower(getEnvOrDefault("COMPLETION_DRIVER", DriverHTTP))
	if driver != DriverHTTP && driver != DriverEino {
		return CompletionConfig{}, fmt.Errorf("invalid COMPLETION_DRIVER value %q: want %s or %s", driver, DriverHTTP, DriverEino)
	}

	endpoint := getEnvOrDefault("COMPLETION_ENDPOINT", preset.endpoint)
	if driver == DriverHTTP && endpoint == "" {
		return CompletionConfig{}, fmt.Errorf("provider %s has no chat completions endpoint, set COMPLETION_DRIVER=%s or COMPLETION_ENDPOINT", provider, DriverEino)
	}

	modelName := getEnvOrDefault("COMPLETION_MODEL", preset.model)
	if modelName == "" {
		return CompletionConfig{}, fmt.Errorf("provider %s requires COMPLETION_MODEL", provider)
	}

	maxTokens := DefaultMaxTokens
	if override, err := parseOptionalIntEnv("COMPLETION_MAX_TOKENS"); err != nil {
		return CompletionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return CompletionConfig{}, fmt.Errorf("invalid COMPLETION_MAX_TOKENS value %d: must be positive", *override)
		}
		maxTokens = *override
	}

	timeout, err := parseDurationEnv("COMPLETION_TIMEOUT", 120*time.Second)
	if err != nil {
		return CompletionConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("COMPLETION_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(preset.keyEnv))
	}

	return CompletionConfig{
		Driver:    driver,
		Provider:  provider,
		Label:     getEnvOrDefault("COMPLETION_LABEL", preset.label),
		APIKey:    apiKey,
		Model:     modelName,
		Endpoint:  endpoint,
		BaseURL:   getEnvOrDefault("COMPLETION_BASE_URL", preset.baseURL),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		MaxTokens: maxTokens,
		Timeout:   timeout,
		Referer:   strings.TrimSpace(os.Getenv("COMPLETION_REFERER")),
		Title:     strings.TrimSpace(os.Getenv("COMPLETION_TITLE")),
	}, nil
}

// NewChatModel 使用配置创建一个 eino 模型实例。
func (c CompletionConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	switch c.Provider {
	case ProviderOpenAI, ProviderOpenRouter:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: c.Timeout,
		})
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL: c.BaseURL,
			Region:  c.Region,
			APIKey:  c.APIKey,
			Model:   c.Model,
		})
	case ProviderClaude:
		var baseURL *string
		if c.BaseURL != "" {
			baseURL = &c.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    c.APIKey,
			BaseURL:   baseURL,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
		})
	case ProviderGemini:
		clientCfg := &genai.ClientConfig{
			APIKey:  c.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if c.BaseURL != "" {
			clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
		}
		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  c.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.Provider)
	}
}
