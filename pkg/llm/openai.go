package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/duration"
	"github.com/scanforge/scanforge/pkg/httpclient"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/retry"
)

const systemPrompt = "You adapt security proof-of-concept templates. " +
	"Reply with a single JSON object and nothing else. Never include destructive commands."

// APIError is an error reply from the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: api error %d: %s", e.StatusCode, e.Message)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	cfg        Config
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
}

// NewOpenAIClient creates a client for cfg.BaseURL. An empty key sends
// no Authorization header, which local servers accept.
func NewOpenAIClient(cfg Config, apiKey string) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.LLMOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.LLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = duration.HTTPAPI
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaults.LLMRequestsPerSecond
	}
	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	rc := retry.DefaultConfig()
	rc.MaxAttempts = defaults.RetryLLM
	return &OpenAIClient{
		cfg:        cfg,
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retry:      rc,
	}, nil
}

// WithHTTPClient swaps the transport, for tests.
func (c *OpenAIClient) WithHTTPClient(hc *http.Client) *OpenAIClient {
	c.httpClient = hc
	return c
}

// WithRetry overrides the retry policy.
func (c *OpenAIClient) WithRetry(rc retry.Config) *OpenAIClient {
	c.retry = rc
	return c
}

// Complete sends prompt as the user message and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := jsonutil.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	return retry.DoValue(ctx, c.retry, func() (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", retry.Stop(err)
		}
		return c.do(ctx, body)
	})
}

func (c *OpenAIClient) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Stop(err)
	}
	req.Header.Set("Content-Type", defaults.ContentTypeJSON)
	req.Header.Set("Accept", defaults.AcceptJSON)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := httpclient.ReadBody(resp.Body, defaults.BufferLLM)
	if err != nil {
		return "", retry.Stop(err)
	}
	var out chatResponse
	decodeErr := jsonutil.UnmarshalLenient(data, &out)

	if statusErr := retry.CheckStatus(c.endpoint, resp.StatusCode); statusErr != nil {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			apiErr.Message = out.Error.Message
		}
		var stop *retry.StopError
		if errors.As(statusErr, &stop) {
			return "", retry.Stop(apiErr)
		}
		return "", apiErr
	}
	if decodeErr != nil {
		return "", retry.Stop(fmt.Errorf("llm: decode response: %w", decodeErr))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", retry.Stop(ErrEmptyCompletion)
	}
	return out.Choices[0].Message.Content, nil
}
