// Package llm is the completion capability used to customize PoC
// templates. The pipeline only depends on Completer; the bundled client
// speaks the OpenAI chat-completions protocol, which OpenAI, Ollama and
// NVIDIA NIM all serve.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/scanforge/scanforge/pkg/defaults"
)

// Completer turns a prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Provider selects the endpoint defaults.
type Provider string

const (
	ProviderNone   Provider = "none"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderNVIDIA Provider = "nvidia"
)

var (
	ErrUnknownProvider = errors.New("llm: unknown provider")
	ErrMissingAPIKey   = errors.New("llm: missing API key")
	ErrEmptyCompletion = errors.New("llm: empty completion")
)

// Config selects and tunes the completion client.
type Config struct {
	Provider    Provider      `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"-"`

	// RequestsPerSecond paces calls; zero means the default.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultConfig disables the LLM.
func DefaultConfig() Config {
	return Config{
		Provider:          defaults.LLMProvider,
		Model:             defaults.LLMModel,
		APIKeyEnv:         "OPENAI_API_KEY",
		Temperature:       defaults.LLMTemperature,
		MaxTokens:         defaults.LLMMaxTokens,
		RequestsPerSecond: defaults.LLMRequestsPerSecond,
	}
}

func (p Provider) baseURL() (string, bool) {
	switch p {
	case ProviderOpenAI:
		return defaults.LLMOpenAIURL, true
	case ProviderOllama:
		return defaults.LLMOllamaURL, false
	case ProviderNVIDIA:
		return defaults.LLMNVIDIAURL, true
	}
	return "", false
}

// New builds the configured completer. The "none" provider, or an empty
// one, yields a nil Completer and no error: PoCs then use plain templates.
func New(cfg Config) (Completer, error) {
	p := Provider(strings.ToLower(string(cfg.Provider)))
	if p == "" || p == ProviderNone {
		return nil, nil
	}
	base, needsKey := p.baseURL()
	if base == "" {
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = base
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if needsKey && key == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, cfg.APIKeyEnv)
	}
	c, err := NewOpenAIClient(cfg, key)
	if err != nil {
		return nil, err
	}
	return c, nil
}
