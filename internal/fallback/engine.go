// Package fallback runs a provider chain: entries are tried in order and the
// first success wins.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/cost"
	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/daikw/ccvoice/internal/llm"
	"github.com/daikw/ccvoice/internal/provider"
	"github.com/daikw/ccvoice/internal/tts"
	"github.com/rs/zerolog/log"
)

// Chain is an ordered list of provider entries for one role. An explicit
// chain holds a single user-requested entry and never falls through.
type Chain struct {
	Role     provider.Role
	Entries  []config.ProviderConfig
	Explicit bool
}

// Configured returns the chain from configuration.
func Configured(role provider.Role, entries []config.ProviderConfig) Chain {
	return Chain{Role: role, Entries: entries}
}

// Override returns a single-entry explicit chain.
func Override(role provider.Role, entry config.ProviderConfig) Chain {
	return Chain{Role: role, Entries: []config.ProviderConfig{entry}, Explicit: true}
}

// Factory constructs providers for chain entries.
type Factory interface {
	CreateLLM(cfg config.ProviderConfig) (llm.Provider, error)
	CreateTTS(cfg config.ProviderConfig) (tts.Provider, error)
}

// BudgetChecker is consulted before each LLM attempt.
type BudgetChecker interface {
	CheckBudget(ctx context.Context) error
}

// UsageRecorder receives usage after each successful generation.
type UsageRecorder interface {
	Record(ctx context.Context, u cost.Usage) error
}

// Outcome classifies one attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
)

// Attempt records one entry of a chain run.
type Attempt struct {
	Index    int
	Provider string
	Model    string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// ChainExhaustedError is returned when no entry of a chain succeeded.
type ChainExhaustedError struct {
	Role     provider.Role
	Attempts []Attempt
}

func (e *ChainExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no %s providers configured", e.Role)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %s (%v)", a.Provider, a.Outcome, a.Err))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Outcome))
		}
	}
	return fmt.Sprintf("all %s providers failed: %s", e.Role, strings.Join(parts, "; "))
}

// IsExhausted reports whether err is a ChainExhaustedError.
func IsExhausted(err error) bool {
	var target *ChainExhaustedError
	return errors.As(err, &target)
}

// GenerateResult is a successful LLM chain run.
type GenerateResult struct {
	Response *llm.Response
	Provider string
	CostUSD  float64
	Attempts []Attempt
}

// SpeakResult is a successful TTS chain run.
type SpeakResult struct {
	Provider string
	Attempts []Attempt
}

// Engine executes chains.
type Engine struct {
	factory  Factory
	budget   BudgetChecker
	recorder UsageRecorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithBudget sets the budget checker.
func WithBudget(b BudgetChecker) Option {
	return func(e *Engine) { e.budget = b }
}

// WithUsageRecorder sets the usage recorder.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an engine.
func New(factory Factory, opts ...Option) *Engine {
	e := &Engine{factory: factory}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func entryTimeout(role provider.Role, name string, cfg config.ProviderConfig) time.Duration {
	if role == provider.RoleTTS {
		return cfg.TimeoutOr(provider.DefaultTTSTimeout)
	}
	if name == "ollama" {
		return cfg.TimeoutOr(provider.DefaultOllamaTimeout)
	}
	return cfg.TimeoutOr(provider.DefaultLLMTimeout)
}

func logAttempt(role provider.Role, a Attempt) {
	event := log.Info()
	switch a.Outcome {
	case OutcomeSkipped:
		event = log.Debug()
	case OutcomeFailed, OutcomeTimeout:
		event = log.Warn()
	}
	event = event.
		Str("role", role.String()).
		Int("index", a.Index).
		Str("provider", a.Provider).
		Str("model", a.Model).
		Str("outcome", string(a.Outcome)).
		Dur("duration", a.Duration)
	if a.Err != nil {
		event = event.Err(a.Err)
	}
	event.Msg("Provider attempt")
}

func classify(provider string, timeout time.Duration, err error) (Outcome, error) {
	err = errdefs.FromTransport(provider, err)
	var timeoutErr *errdefs.TimeoutError
	if errors.As(err, &timeoutErr) {
		if timeoutErr.After == 0 {
			timeoutErr.After = timeout
		}
		return OutcomeTimeout, err
	}
	if errdefs.IsConfiguration(err) {
		return OutcomeSkipped, err
	}
	return OutcomeFailed, err
}

// Generate runs an LLM chain.
func (e *Engine) Generate(ctx context.Context, chain Chain, req *llm.Request) (*GenerateResult, error) {
	var attempts []Attempt

	for i, entry := range chain.Entries {
		if e.budget != nil {
			if err := e.budget.CheckBudget(ctx); err != nil {
				if errdefs.IsBudgetExceeded(err) {
					return nil, err
				}
				log.Warn().Err(err).Msg("Budget check failed, continuing")
			}
		}

		attempt := Attempt{Index: i, Provider: entry.Name, Model: llm.NormalizeModel(entry.Model)}
		start := time.Now()

		p, err := e.factory.CreateLLM(entry)
		if err == nil && !p.IsConfigured() {
			err = fmt.Errorf("%s: %w", p.Name(), errdefs.ErrUnavailable)
		}
		if err != nil {
			attempt.Outcome, attempt.Err = OutcomeSkipped, err
			attempt.Duration = time.Since(start)
			attempts = append(attempts, attempt)
			logAttempt(chain.Role, attempt)
			if chain.Explicit {
				return nil, err
			}
			continue
		}
		attempt.Provider = p.Name()
		if attempt.Model == "" {
			attempt.Model = provider.DefaultModel(p.Name())
		}

		timeout := entryTimeout(provider.RoleLLM, p.Name(), entry)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := p.Generate(attemptCtx, req)
		cancel()
		attempt.Duration = time.Since(start)

		if err != nil {
			attempt.Outcome, attempt.Err = classify(p.Name(), timeout, err)
			attempts = append(attempts, attempt)
			logAttempt(chain.Role, attempt)
			if chain.Explicit {
				return nil, attempt.Err
			}
			continue
		}

		attempt.Outcome = OutcomeSuccess
		if resp.Model != "" {
			attempt.Model = resp.Model
		}
		attempts = append(attempts, attempt)
		logAttempt(chain.Role, attempt)

		costUSD := p.EstimateCost(resp.InputTokens, resp.OutputTokens)
		e.record(ctx, cost.Usage{
			Provider:     p.Name(),
			Model:        attempt.Model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      costUSD,
		})

		return &GenerateResult{
			Response: resp,
			Provider: p.Name(),
			CostUSD:  costUSD,
			Attempts: attempts,
		}, nil
	}

	return nil, &ChainExhaustedError{Role: chain.Role, Attempts: attempts}
}

// record never fails the run.
func (e *Engine) record(ctx context.Context, u cost.Usage) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, u); err != nil {
		log.Warn().Err(err).Msg("Failed to record usage")
	}
}

// Speak runs a TTS chain. Entry rate and volume apply when the request
// leaves them unset.
func (e *Engine) Speak(ctx context.Context, chain Chain, req *tts.Request) (*SpeakResult, error) {
	var attempts []Attempt

	for i, entry := range chain.Entries {
		attempt := Attempt{Index: i, Provider: entry.Name, Model: entry.Voice}
		start := time.Now()

		p, err := e.factory.CreateTTS(entry)
		if err == nil && !p.IsConfigured() {
			err = fmt.Errorf("%s: %w", p.Name(), errdefs.ErrUnavailable)
		}
		if err != nil {
			attempt.Outcome, attempt.Err = OutcomeSkipped, err
			attempt.Duration = time.Since(start)
			attempts = append(attempts, attempt)
			logAttempt(chain.Role, attempt)
			if chain.Explicit {
				return nil, err
			}
			continue
		}
		attempt.Provider = p.Name()

		entryReq := *req
		if entryReq.Rate == 0 {
			entryReq.Rate = entry.Rate
		}
		if entryReq.Volume == nil {
			entryReq.Volume = entry.Volume
		}

		timeout := entryTimeout(provider.RoleTTS, p.Name(), entry)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err = p.Speak(attemptCtx, &entryReq)
		cancel()
		closeProvider(p)
		attempt.Duration = time.Since(start)

		if err != nil {
			attempt.Outcome, attempt.Err = classify(p.Name(), timeout, err)
			attempts = append(attempts, attempt)
			logAttempt(chain.Role, attempt)
			if chain.Explicit {
				return nil, attempt.Err
			}
			continue
		}

		attempt.Outcome = OutcomeSuccess
		attempts = append(attempts, attempt)
		logAttempt(chain.Role, attempt)
		log.Debug().
			Str("provider", p.Name()).
			Int("chars", len(entryReq.Text)).
			Float64("estimated_cost_usd", p.EstimateCost(len(entryReq.Text))).
			Msg("Speech cost")
		return &SpeakResult{Provider: p.Name(), Attempts: attempts}, nil
	}

	return nil, &ChainExhaustedError{Role: chain.Role, Attempts: attempts}
}

// closeProvider releases SDK clients that hold connections.
func closeProvider(p tts.Provider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Str("provider", p.Name()).Msg("Failed to close provider")
		}
	}
}
