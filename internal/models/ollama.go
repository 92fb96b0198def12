package models

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"tally/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// NewOllama creates a new Ollama ChatModel.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	opts := &einoollama.Options{}
	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}

	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
		Timeout: timeout,
		Options: opts,
		// Local Ollama setups often sit behind a proxy that answers with
		// plain text when the backend is down; surface that as a typed error.
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &validatingTransport{next: http.DefaultTransport, provider: "ollama"},
		},
	})
}

// validatingTransport rejects responses that cannot be Ollama's own: transport
// failures, error status codes, and bodies without a JSON content type all
// become ErrModelUnavailable carrying a short body excerpt.
type validatingTransport struct {
	next     http.RoundTripper
	provider string
}

func (t *validatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &ErrModelUnavailable{Provider: t.provider, Body: drainSnippet(resp)}
	}

	// Ollama responds with application/json, or x-ndjson when streaming.
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "ndjson") {
		return nil, &ErrModelUnavailable{Provider: t.provider, Body: drainSnippet(resp)}
	}

	return resp, nil
}

// drainSnippet consumes the response and returns the first 512 bytes of the
// body for error reporting.
func drainSnippet(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	return strings.TrimSpace(string(body))
}
