// Package llm contains the generative providers used to summarize session
// output: Gemini, Anthropic, OpenAI and a local Ollama daemon.
//
// Every provider implements Provider. Providers are cheap to construct and
// hold no state beyond their HTTP client, so the fallback engine creates a
// fresh one per chain entry.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/rs/zerolog/log"
)

// Request is a single generation call.
type Request struct {
	SystemMessage   string
	Prompt          string
	MaxTokens       int
	Temperature     float64
	DisableThinking bool
}

// Response carries the generated text and token usage.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is the generative capability.
type Provider interface {
	// Name returns the canonical provider name.
	Name() string

	// IsConfigured reports whether the credentials needed for a call are
	// present. It does not check that the backend is reachable.
	IsConfigured() bool

	// Generate runs one completion.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// EstimateCost returns the estimated USD cost for the given token counts.
	EstimateCost(inputTokens, outputTokens int) float64
}

// NormalizeModel strips a provider prefix such as "local/" or "gemini/" from
// a model name. Bare names are returned unchanged.
func NormalizeModel(model string) string {
	if i := strings.Index(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// Option configures the HTTP side of a provider.
type Option func(*options)

type options struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// WithBaseURL overrides the backend endpoint, for proxies or compatible servers.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func buildOptions(defaultBase string, defaultTimeout time.Duration, opts []Option) options {
	o := options{baseURL: defaultBase, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	o.baseURL = strings.TrimSuffix(o.baseURL, "/")
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	return o
}

// postJSON sends body as JSON and decodes a 2xx response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debug().Str("provider", provider).Str("url", redactKey(url)).Msg("Sending generation request")

	resp, err := client.Do(req)
	if err != nil {
		return errdefs.FromTransport(provider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errdefs.FromTransport(provider, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errdefs.NewRequestError(provider, resp.StatusCode, fmt.Errorf("body: %s", truncate(string(data), 512)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errdefs.NewRequestError(provider, resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// hasKey reports whether key is set and is not an unexpanded ${VAR} placeholder.
func hasKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "${")
}

func redactKey(url string) string {
	if i := strings.Index(url, "key="); i >= 0 {
		return url[:i] + "key=***"
	}
	return url
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// per1K converts a token count and a per-1K-token price into USD.
func per1K(tokens int, price float64) float64 {
	return float64(tokens) / 1000.0 * price
}
