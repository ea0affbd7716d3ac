package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewOpenAIClient(Config{BaseURL: srv.URL + "/v1/", Model: "test-model", RequestsPerSecond: 1000}, "sk-test")
	require.NoError(t, err)
	return c.WithHTTPClient(srv.Client()).
		WithRetry(retry.Config{MaxAttempts: 3, InitDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		assert.NoError(t, jsonutil.Unmarshal(body, &req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "user", req.Messages[1].Role)
			assert.Equal(t, "adapt this", req.Messages[1].Content)
		}
		_, _ = io.WriteString(w, `{"model":"test-model","choices":[{"message":{"role":"assistant","content":"{\"payload\":\"1\"}"},"finish_reason":"stop"}]}`)
	})
	got, err := c.Complete(context.Background(), "adapt this")
	require.NoError(t, err)
	assert.Equal(t, `{"payload":"1"}`, got)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})
	got, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"auth"}}`)
	})
	_, err := c.Complete(context.Background(), "p")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid api key", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_EmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})
	_, err := c.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNew(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = New(Config{Provider: "bard"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	t.Setenv("SCANFORGE_TEST_KEY", "")
	_, err = New(Config{Provider: ProviderOpenAI, APIKeyEnv: "SCANFORGE_TEST_KEY"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err = New(Config{Provider: "Ollama", APIKeyEnv: "SCANFORGE_TEST_KEY"})
	require.NoError(t, err)
	oc, ok := c.(*OpenAIClient)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(oc.endpoint, "http://localhost:11434/v1"))
}

func TestCompleterFunc(t *testing.T) {
	var c Completer = CompleterFunc(func(_ context.Context, p string) (string, error) { return strings.ToUpper(p), nil })
	got, err := c.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "X", got)
}
