package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/daikw/ccvoice/internal/errdefs"
)

const (
	openAIInputPer1K  = 0.00015
	openAIOutputPer1K = 0.0006
)

// OpenAI calls the OpenAI chat completions API through the official SDK.
type OpenAI struct {
	apiKey string
	model  string
	client oai.Client
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(apiKey, model string, opts ...Option) *OpenAI {
	o := buildOptions("", 10*time.Second, opts)

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(o.httpClient),
		// The fallback chain is the retry policy.
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL+"/"))
	}

	return &OpenAI{
		apiKey: apiKey,
		model:  NormalizeModel(model),
		client: oai.NewClient(reqOpts...),
	}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) IsConfigured() bool { return hasKey(p.apiKey) }

// isReasoningModel reports whether model belongs to a family that rejects
// temperature and max_tokens.
func isReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (p *OpenAI) buildParams(req *Request) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemMessage != "" {
		messages = append(messages, oai.SystemMessage(req.SystemMessage))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	if isReasoningModel(p.model) {
		if req.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
		}
		if req.DisableThinking {
			params.ReasoningEffort = shared.ReasoningEffortLow
		} else {
			params.ReasoningEffort = shared.ReasoningEffortHigh
		}
		return params
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	params.Temperature = param.NewOpt(req.Temperature)
	return params
}

// Generate implements Provider.
func (p *OpenAI) Generate(ctx context.Context, req *Request) (*Response, error) {
	if !p.IsConfigured() {
		return nil, errdefs.NewConfigurationError(p.Name(), "No API key for OpenAI")
	}

	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, errdefs.NewRequestError(p.Name(), apiErr.StatusCode, err)
		}
		return nil, errdefs.FromTransport(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, errdefs.NewRequestError(p.Name(), 0, fmt.Errorf("no choices in response"))
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Response{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:        model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// EstimateCost implements Provider.
func (p *OpenAI) EstimateCost(inputTokens, outputTokens int) float64 {
	return per1K(inputTokens, openAIInputPer1K) + per1K(outputTokens, openAIOutputPer1K)
}
