package llm

import (
	"context"
	"strings"
	"time"
)

const ollamaBaseURL = "http://localhost:11434"

// Ollama calls a local Ollama daemon. It needs no credentials and is free.
type Ollama struct {
	model string
	opts  options
}

// NewOllama creates an Ollama provider. Local generation is slow on first
// load, so the default timeout is longer than for cloud providers.
func NewOllama(model string, opts ...Option) *Ollama {
	return &Ollama{
		model: NormalizeModel(model),
		opts:  buildOptions(ollamaBaseURL, 60*time.Second, opts),
	}
}

func (p *Ollama) Name() string { return "ollama" }

// IsConfigured always returns true, Ollama needs no credentials.
func (p *Ollama) IsConfigured() bool { return true }

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount *int   `json:"prompt_eval_count"`
	EvalCount       *int   `json:"eval_count"`
}

// Generate implements Provider.
func (p *Ollama) Generate(ctx context.Context, req *Request) (*Response, error) {
	body := ollamaRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		System: req.SystemMessage,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	var resp ollamaResponse
	if err := postJSON(ctx, p.opts.httpClient, p.Name(), p.opts.baseURL+"/api/generate", nil, body, &resp); err != nil {
		return nil, err
	}

	result := &Response{
		Text:  strings.TrimSpace(resp.Response),
		Model: p.model,
	}
	if resp.PromptEvalCount != nil {
		result.InputTokens = *resp.PromptEvalCount
	}
	if resp.EvalCount != nil {
		result.OutputTokens = *resp.EvalCount
	}
	return result, nil
}

// EstimateCost always returns 0 for local inference.
func (p *Ollama) EstimateCost(inputTokens, outputTokens int) float64 {
	return 0
}
