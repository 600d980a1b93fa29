// Package notify turns one hook event into speech: it reads the finished
// turn, summarizes it through the LLM chain and speaks the result through
// the TTS chain.
package notify

import (
	"context"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/daikw/ccvoice/internal/fallback"
	"github.com/daikw/ccvoice/internal/hook"
	"github.com/daikw/ccvoice/internal/llm"
	"github.com/daikw/ccvoice/internal/provider"
	"github.com/daikw/ccvoice/internal/tts"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

const (
	defaultSyncDelay  = 50 * time.Millisecond
	defaultRetryDelay = 100 * time.Millisecond
)

// Engine runs provider chains. *fallback.Engine implements it.
type Engine interface {
	Generate(ctx context.Context, chain fallback.Chain, req *llm.Request) (*fallback.GenerateResult, error)
	Speak(ctx context.Context, chain fallback.Chain, req *tts.Request) (*fallback.SpeakResult, error)
}

// TranscriptSource reads assistant text for the last turns of a session.
type TranscriptSource interface {
	ReadLastTurns(path string, n int) ([]string, error)
}

// Options are per-invocation overrides from the command line.
type Options struct {
	// Provider and Model pin the LLM to one explicit entry.
	Provider string
	Model    string
	Timeout  time.Duration

	// TTS names a TTS provider; "" or "auto" uses the configured chain.
	TTS    string
	Voice  string
	Rate   int
	Volume *int

	// MaxLength overrides summarization.max_length when > 0.
	MaxLength int

	SyncDelay  time.Duration
	RetryDelay time.Duration
}

// Orchestrator handles hook events.
type Orchestrator struct {
	cfg         *config.Config
	engine      Engine
	transcripts TranscriptSource
	opts        Options
	stderr      io.Writer
	dedup       *Dedup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStderr sets where user-visible degradation notices are printed.
func WithStderr(w io.Writer) Option {
	return func(o *Orchestrator) { o.stderr = w }
}

// WithDedup enables duplicate suppression for completion events.
func WithDedup(d *Dedup) Option {
	return func(o *Orchestrator) { o.dedup = d }
}

// New creates an orchestrator.
func New(cfg *config.Config, engine Engine, transcripts TranscriptSource, opts Options, extra ...Option) *Orchestrator {
	if opts.SyncDelay == 0 {
		opts.SyncDelay = defaultSyncDelay
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	o := &Orchestrator{
		cfg:         cfg,
		engine:      engine,
		transcripts: transcripts,
		opts:        opts,
		stderr:      os.Stderr,
	}
	for _, opt := range extra {
		opt(o)
	}
	return o
}

// Handle processes one event. Provider failures never surface as errors.
func (o *Orchestrator) Handle(ctx context.Context, event *hook.Event) error {
	log.Debug().
		Str("source", string(event.Source)).
		Str("kind", event.Kind.String()).
		Str("event", event.Name).
		Str("session_id", event.SessionID).
		Msg("Received hook event")

	if event.StopHookActive {
		log.Warn().Msg("Stop hook already active, skipping to avoid a loop")
		return nil
	}
	if !o.cfg.Enabled {
		log.Debug().Msg("Voice notifications disabled")
		return nil
	}

	switch event.Kind {
	case hook.KindNotification:
		o.handleNotification(ctx, event)
	case hook.KindCompletion:
		o.handleCompletion(ctx, event)
	case hook.KindGeneric:
		o.speak(ctx, event.Message, "")
	default:
		log.Debug().Str("event", event.Name).Msg("Unhandled hook event")
	}
	return nil
}

func (o *Orchestrator) handleNotification(ctx context.Context, event *hook.Event) {
	if event.Message == "" {
		log.Warn().Msg("Notification has no message")
		return
	}
	notificationType := event.NotificationType
	if notificationType == "" {
		notificationType = "unknown"
	}

	hooks := o.cfg.Hooks.ClaudeCode
	if !notificationAllowed(hooks.NotificationFilter, notificationType) {
		log.Debug().Str("type", notificationType).Msg("Notification type filtered out")
		return
	}

	text := event.Message
	if hooks.SummarizeNotifications {
		prompt := strings.ReplaceAll(o.cfg.Summarization.NotificationPrompt, "{message}", event.Message)
		rewritten, err := o.generate(ctx, o.cfg.Summarization.NotificationSystemMessage, prompt)
		if err != nil {
			o.reportBudget(err)
			log.Warn().Err(err).Msg("Failed to rewrite notification, speaking it as is")
		} else if rewritten != "" {
			text = rewritten
		}
	}

	o.speak(ctx, text, hooks.NotificationTTSProvider)
}

func notificationAllowed(filter []string, notificationType string) bool {
	if len(filter) == 0 {
		return false
	}
	return slices.Contains(filter, "*") || slices.Contains(filter, notificationType)
}

func (o *Orchestrator) handleCompletion(ctx context.Context, event *hook.Event) {
	texts := o.completionTexts(ctx, event)
	if len(texts) == 0 {
		log.Warn().Msg("No assistant text found for completion event")
		return
	}
	contextText := strings.Join(texts, "\n\n")

	dedup := o.dedup != nil && o.cfg.Advanced.Dedup
	if dedup && o.dedup.IsDuplicate(event.SessionID, contextText) {
		log.Debug().Str("session_id", event.SessionID).Msg("Already spoke this turn, skipping")
		return
	}

	summary := o.Summarize(ctx, texts)
	o.speak(ctx, summary, o.cfg.Hooks.ClaudeCode.StopTTSProvider)

	if dedup {
		o.dedup.Record(event.SessionID, contextText)
	}
}

// completionTexts returns inline context when the event carries it, else
// the last turns of the transcript. The transcript may still be flushing
// when the hook fires, so an empty read is retried once.
func (o *Orchestrator) completionTexts(ctx context.Context, event *hook.Event) []string {
	if event.InlineContext != "" {
		return []string{event.InlineContext}
	}
	if event.TranscriptPath == "" {
		return nil
	}

	turns := o.cfg.Summarization.Turns
	if turns < 1 {
		turns = 1
	}

	if !sleep(ctx, o.opts.SyncDelay) {
		return nil
	}
	texts, err := o.transcripts.ReadLastTurns(event.TranscriptPath, turns)
	if err != nil {
		log.Warn().Err(err).Str("path", event.TranscriptPath).Msg("Failed to read transcript")
		return nil
	}
	if len(texts) > 0 {
		return texts
	}

	log.Debug().Dur("delay", o.opts.RetryDelay).Msg("Transcript empty, retrying")
	if !sleep(ctx, o.opts.RetryDelay) {
		return nil
	}
	texts, err = o.transcripts.ReadLastTurns(event.TranscriptPath, turns)
	if err != nil {
		log.Warn().Err(err).Str("path", event.TranscriptPath).Msg("Failed to read transcript")
		return nil
	}
	return texts
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Summarize returns a short spoken summary of texts. It always returns
// something to say: any LLM failure yields the fallback message.
func (o *Orchestrator) Summarize(ctx context.Context, texts []string) string {
	maxLength := o.cfg.Summarization.MaxLength
	if o.opts.MaxLength > 0 {
		maxLength = o.opts.MaxLength
	}

	prompt := strings.NewReplacer(
		"{max_length}", strconv.Itoa(maxLength),
		"{context}", strings.Join(texts, "\n\n"),
	).Replace(o.cfg.Summarization.PromptTemplate)

	summary, err := o.generate(ctx, o.cfg.Summarization.SystemMessage, prompt)
	if err != nil {
		o.reportBudget(err)
		log.Warn().Err(err).Msg("Summarization failed, using fallback message")
		return o.fallbackMessage()
	}
	if summary == "" {
		log.Warn().Msg("LLM returned an empty summary, using fallback message")
		return o.fallbackMessage()
	}
	log.Info().Str("summary", summary).Msg("Generated summary")
	return summary
}

func (o *Orchestrator) fallbackMessage() string {
	if o.cfg.Summarization.FallbackMessage != "" {
		return o.cfg.Summarization.FallbackMessage
	}
	return config.DefaultFallbackMessage
}

// reportBudget makes the budget fallback visible to the user.
func (o *Orchestrator) reportBudget(err error) {
	if errdefs.IsBudgetExceeded(err) {
		_, _ = color.New(color.FgYellow).Fprintf(o.stderr, "ccvoice: %v, using fallback message\n", err)
	}
}

func (o *Orchestrator) generate(ctx context.Context, systemMessage, prompt string) (string, error) {
	params := o.cfg.LLM.Parameters
	req := &llm.Request{
		SystemMessage:   systemMessage,
		Prompt:          prompt,
		MaxTokens:       params.MaxTokens,
		Temperature:     params.Temperature,
		DisableThinking: params.DisableThinking,
	}

	result, err := o.engine.Generate(ctx, o.LLMChain(), req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Response.Text), nil
}

// LLMChain returns the chain for this invocation. --provider or --model
// narrow it to one explicit entry.
func (o *Orchestrator) LLMChain() fallback.Chain {
	params := o.cfg.LLM.Parameters

	if o.opts.Provider == "" && o.opts.Model == "" {
		entries := make([]config.ProviderConfig, len(o.cfg.LLM.Providers))
		for i, entry := range o.cfg.LLM.Providers {
			// Local inference keeps its longer default unless set explicitly.
			if entry.Timeout == 0 && params.Timeout > 0 && !isOllama(entry.Name) {
				entry.Timeout = params.Timeout
			}
			entries[i] = entry
		}
		return fallback.Configured(provider.RoleLLM, entries)
	}

	name := o.opts.Provider
	if name == "" {
		name = "google"
	}
	entry := config.ProviderConfig{Name: name}
	if match, ok := findEntry(provider.RoleLLM, o.cfg.LLM.Providers, name); ok {
		entry.APIKey = match.APIKey
		entry.BaseURL = match.BaseURL
	}
	entry.Model = o.opts.Model
	if o.opts.Timeout > 0 {
		entry.Timeout = int(o.opts.Timeout / time.Second)
	}
	return fallback.Override(provider.RoleLLM, entry)
}

func isOllama(name string) bool {
	canonical, err := provider.Canonical(provider.RoleLLM, name)
	return err == nil && canonical == "ollama"
}

// findEntry matches on canonical names so aliases find their config.
func findEntry(role provider.Role, entries []config.ProviderConfig, name string) (config.ProviderConfig, bool) {
	want, err := provider.Canonical(role, name)
	if err != nil {
		return config.ProviderConfig{}, false
	}
	for _, entry := range entries {
		if got, err := provider.Canonical(role, entry.Name); err == nil && got == want {
			return entry, true
		}
	}
	return config.ProviderConfig{}, false
}

// TTSChain returns the chain for this invocation. A hook pin wins over
// --tts, which wins over the configured chain.
func (o *Orchestrator) TTSChain(pin string) fallback.Chain {
	name := pin
	if name == "" && o.opts.TTS != "" && !strings.EqualFold(o.opts.TTS, "auto") {
		name = o.opts.TTS
	}
	if name == "" {
		return fallback.Configured(provider.RoleTTS, o.cfg.TTS.Providers)
	}

	entry, ok := findEntry(provider.RoleTTS, o.cfg.TTS.Providers, name)
	if !ok {
		entry = config.ProviderConfig{Name: name}
	}
	if o.opts.Voice != "" {
		entry.Voice = o.opts.Voice
	}
	if o.opts.Rate > 0 {
		entry.Rate = o.opts.Rate
	}
	return fallback.Override(provider.RoleTTS, entry)
}

// Say speaks text through the TTS chain selected by the options.
func (o *Orchestrator) Say(ctx context.Context, text string) error {
	_, err := o.engine.Speak(ctx, o.TTSChain(""), o.speechRequest(text))
	return err
}

func (o *Orchestrator) speechRequest(text string) *tts.Request {
	return &tts.Request{Text: text, Rate: o.opts.Rate, Volume: o.opts.Volume}
}

// speak degrades silently: a failed notification must never alarm the user.
func (o *Orchestrator) speak(ctx context.Context, text, pin string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	result, err := o.engine.Speak(ctx, o.TTSChain(pin), o.speechRequest(text))
	if err != nil {
		log.Warn().Err(err).Msg("Speech failed, staying silent")
		return
	}
	log.Debug().Str("provider", result.Provider).Msg("Spoke notification")
}
