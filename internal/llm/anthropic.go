package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/errdefs"
)

const (
	anthropicBaseURL        = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	anthropicThinkingBudget = 1024

	anthropicInputPer1K  = 0.001
	anthropicOutputPer1K = 0.005
)

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	apiKey string
	model  string
	opts   options
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(apiKey, model string, opts ...Option) *Anthropic {
	return &Anthropic{
		apiKey: apiKey,
		model:  NormalizeModel(model),
		opts:   buildOptions(anthropicBaseURL, 10*time.Second, opts),
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) IsConfigured() bool { return hasKey(p.apiKey) }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Provider.
func (p *Anthropic) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.IsConfigured() {
		return nil, errdefs.NewConfigurationError(p.Name(), "No API key for Anthropic")
	}

	body := anthropicRequest{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
		System:    req.SystemMessage,
	}
	if req.DisableThinking {
		temp := req.Temperature
		body.Temperature = &temp
	} else {
		// Temperature must stay at its default while thinking is enabled, and
		// max_tokens has to cover the thinking budget.
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: anthropicThinkingBudget}
		body.MaxTokens = req.MaxTokens + anthropicThinkingBudget
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, p.opts.httpClient, p.Name(), p.opts.baseURL+"/messages", headers, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Content) == 0 {
		return nil, errdefs.NewRequestError(p.Name(), 0, fmt.Errorf("response has no content"))
	}

	// Thinking blocks are skipped, only text is spoken.
	var texts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Response{
		Text:         strings.TrimSpace(strings.Join(texts, "")),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// EstimateCost implements Provider.
func (p *Anthropic) EstimateCost(inputTokens, outputTokens int) float64 {
	return per1K(inputTokens, anthropicInputPer1K) + per1K(outputTokens, anthropicOutputPer1K)
}
