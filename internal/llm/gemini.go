package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/errdefs"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	geminiInputPer1K  = 0.000075
	geminiOutputPer1K = 0.00030
)

// Gemini calls the Gemini generateContent endpoint.
type Gemini struct {
	apiKey string
	model  string
	opts   options
}

// NewGemini creates a Gemini provider.
func NewGemini(apiKey, model string, opts ...Option) *Gemini {
	return &Gemini{
		apiKey: apiKey,
		model:  NormalizeModel(model),
		opts:   buildOptions(geminiBaseURL, 10*time.Second, opts),
	}
}

func (p *Gemini) Name() string { return "google" }

func (p *Gemini) IsConfigured() bool { return hasKey(p.apiKey) }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	Temperature     float64               `json:"temperature"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate implements Provider.
func (p *Gemini) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.IsConfigured() {
		return nil, errdefs.NewConfigurationError(p.Name(), "No API key for Google")
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.SystemMessage != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemMessage}}}
	}
	// 2.5 models think by default and spend the output budget on it.
	if req.DisableThinking && strings.Contains(p.model, "2.5") {
		body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: 0}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.opts.baseURL, p.model)
	headers := map[string]string{"x-goog-api-key": p.apiKey}

	var resp geminiResponse
	if err := postJSON(ctx, p.opts.httpClient, p.Name(), url, headers, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		return nil, errdefs.NewRequestError(p.Name(), 0, fmt.Errorf("no candidates in response"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())

	var in, out int
	if resp.UsageMetadata != nil {
		in = resp.UsageMetadata.PromptTokenCount
		out = resp.UsageMetadata.CandidatesTokenCount
	} else {
		// Rough estimate when usage metadata is missing.
		in = len(req.Prompt) / 4
		out = len(text) / 4
	}

	return &Response{
		Text:         text,
		Model:        p.model,
		InputTokens:  in,
		OutputTokens: out,
	}, nil
}

// EstimateCost implements Provider.
func (p *Gemini) EstimateCost(inputTokens, outputTokens int) float64 {
	return per1K(inputTokens, geminiInputPer1K) + per1K(outputTokens, geminiOutputPer1K)
}
