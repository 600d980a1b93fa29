package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/daikw/ccvoice/internal/fallback"
	"github.com/daikw/ccvoice/internal/hook"
	"github.com/daikw/ccvoice/internal/llm"
	"github.com/daikw/ccvoice/internal/provider"
	"github.com/daikw/ccvoice/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spoken struct {
	chain fallback.Chain
	req   tts.Request
}

// fakeEngine records every chain run and answers generation with text or
// err.
type fakeEngine struct {
	text     string
	genErr   error
	speakErr error

	prompts []llm.Request
	chains  []fallback.Chain
	spoken  []spoken
}

func (f *fakeEngine) Generate(ctx context.Context, chain fallback.Chain, req *llm.Request) (*fallback.GenerateResult, error) {
	f.prompts = append(f.prompts, *req)
	f.chains = append(f.chains, chain)
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &fallback.GenerateResult{Response: &llm.Response{Text: f.text}, Provider: "fake"}, nil
}

func (f *fakeEngine) Speak(ctx context.Context, chain fallback.Chain, req *tts.Request) (*fallback.SpeakResult, error) {
	f.spoken = append(f.spoken, spoken{chain: chain, req: *req})
	if f.speakErr != nil {
		return nil, f.speakErr
	}
	return &fallback.SpeakResult{Provider: "fake"}, nil
}

func (f *fakeEngine) texts() []string {
	var out []string
	for _, s := range f.spoken {
		out = append(out, s.req.Text)
	}
	return out
}

// fakeTranscripts returns each reads entry in turn, then the last one.
type fakeTranscripts struct {
	reads [][]string
	err   error
	calls int
	turns int
}

func (f *fakeTranscripts) ReadLastTurns(path string, n int) ([]string, error) {
	f.calls++
	f.turns = n
	if f.err != nil {
		return nil, f.err
	}
	if len(f.reads) == 0 {
		return nil, nil
	}
	i := f.calls - 1
	if i >= len(f.reads) {
		i = len(f.reads) - 1
	}
	return f.reads[i], nil
}

func fastOptions() Options {
	return Options{SyncDelay: time.Millisecond, RetryDelay: time.Millisecond}
}

func stopEvent() *hook.Event {
	return &hook.Event{
		Source:         hook.SourceClaudeCode,
		Kind:           hook.KindCompletion,
		Name:           hook.EventStop,
		SessionID:      "session-1",
		TranscriptPath: "/tmp/session-1.jsonl",
	}
}

func notificationEvent(notificationType, message string) *hook.Event {
	return &hook.Event{
		Source:           hook.SourceClaudeCode,
		Kind:             hook.KindNotification,
		Name:             hook.EventNotification,
		SessionID:        "session-1",
		Message:          message,
		NotificationType: notificationType,
	}
}

func TestHandle_Notification(t *testing.T) {
	tests := []struct {
		name       string
		filter     []string
		eventType  string
		wantSpoken bool
	}{
		{"listed type", []string{"permission_prompt", "idle_prompt"}, "idle_prompt", true},
		{"unlisted type", []string{"permission_prompt"}, "auth_success", false},
		{"wildcard", []string{"*"}, "auth_success", true},
		{"empty filter disables", []string{}, "permission_prompt", false},
		{"missing type is unknown", []string{"unknown"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Hooks.ClaudeCode.NotificationFilter = tt.filter
			engine := &fakeEngine{}
			o := New(cfg, engine, &fakeTranscripts{}, fastOptions())

			require.NoError(t, o.Handle(context.Background(), notificationEvent(tt.eventType, "Claude needs your permission")))

			assert.Empty(t, engine.prompts, "notifications skip the LLM by default")
			if tt.wantSpoken {
				assert.Equal(t, []string{"Claude needs your permission"}, engine.texts())
			} else {
				assert.Empty(t, engine.spoken)
			}
		})
	}
}

func TestHandle_NotificationPinnedProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Hooks.ClaudeCode.NotificationTTSProvider = "say"
	engine := &fakeEngine{}
	o := New(cfg, engine, &fakeTranscripts{}, Options{TTS: "google"})

	require.NoError(t, o.Handle(context.Background(), notificationEvent("permission_prompt", "Approve?")))

	require.Len(t, engine.spoken, 1)
	chain := engine.spoken[0].chain
	assert.True(t, chain.Explicit)
	require.Len(t, chain.Entries, 1)
	assert.Equal(t, "macos", chain.Entries[0].Name, "the pin resolves to the configured macos entry")
	assert.Equal(t, 200, chain.Entries[0].Rate)
}

func TestHandle_SummarizedNotification(t *testing.T) {
	cfg := config.Default()
	cfg.Hooks.ClaudeCode.SummarizeNotifications = true

	t.Run("rewritten", func(t *testing.T) {
		engine := &fakeEngine{text: " Permission needed for Bash. "}
		o := New(cfg, engine, &fakeTranscripts{}, fastOptions())

		require.NoError(t, o.Handle(context.Background(), notificationEvent("permission_prompt", "Claude needs your permission to use Bash")))

		require.Len(t, engine.prompts, 1)
		assert.Equal(t, "Rewrite this notification as one short spoken sentence: Claude needs your permission to use Bash", engine.prompts[0].Prompt)
		assert.Equal(t, config.DefaultNotificationSystemMessage, engine.prompts[0].SystemMessage)
		assert.Equal(t, []string{"Permission needed for Bash."}, engine.texts())
	})

	t.Run("failure keeps original", func(t *testing.T) {
		engine := &fakeEngine{genErr: &fallback.ChainExhaustedError{Role: provider.RoleLLM}}
		o := New(cfg, engine, &fakeTranscripts{}, fastOptions())

		require.NoError(t, o.Handle(context.Background(), notificationEvent("idle_prompt", "Waiting for input")))
		assert.Equal(t, []string{"Waiting for input"}, engine.texts())
	})

	t.Run("empty output keeps original", func(t *testing.T) {
		engine := &fakeEngine{text: ""}
		o := New(cfg, engine, &fakeTranscripts{}, fastOptions())

		require.NoError(t, o.Handle(context.Background(), notificationEvent("idle_prompt", "Waiting for input")))
		assert.Equal(t, []string{"Waiting for input"}, engine.texts())
	})
}

func TestHandle_Stop(t *testing.T) {
	cfg := config.Default()
	cfg.Summarization.Turns = 2
	cfg.Hooks.ClaudeCode.StopTTSProvider = "macos"
	engine := &fakeEngine{text: "Tests pass now."}
	transcripts := &fakeTranscripts{reads: [][]string{{"Fixed the parser", "All tests pass"}}}
	o := New(cfg, engine, transcripts, fastOptions())

	require.NoError(t, o.Handle(context.Background(), stopEvent()))

	assert.Equal(t, 2, transcripts.turns)
	require.Len(t, engine.prompts, 1)
	req := engine.prompts[0]
	assert.Contains(t, req.Prompt, "at most 50 characters")
	assert.Contains(t, req.Prompt, "Fixed the parser\n\nAll tests pass")
	assert.NotContains(t, req.Prompt, "{context}")
	assert.Equal(t, config.DefaultSystemMessage, req.SystemMessage)
	assert.Equal(t, 100, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	assert.True(t, req.DisableThinking)

	assert.False(t, engine.chains[0].Explicit)
	assert.Len(t, engine.chains[0].Entries, 4)

	require.Len(t, engine.spoken, 1)
	assert.Equal(t, "Tests pass now.", engine.spoken[0].req.Text)
	assert.True(t, engine.spoken[0].chain.Explicit)
	assert.Equal(t, "macos", engine.spoken[0].chain.Entries[0].Name)
}

func TestHandle_StopRetriesEmptyTranscript(t *testing.T) {
	engine := &fakeEngine{text: "Done."}
	transcripts := &fakeTranscripts{reads: [][]string{nil, {"late flush"}}}
	o := New(config.Default(), engine, transcripts, fastOptions())

	require.NoError(t, o.Handle(context.Background(), stopEvent()))
	assert.Equal(t, 2, transcripts.calls)
	assert.Equal(t, []string{"Done."}, engine.texts())
}

func TestHandle_StopWithNothingToSay(t *testing.T) {
	t.Run("empty after retry", func(t *testing.T) {
		engine := &fakeEngine{text: "x"}
		transcripts := &fakeTranscripts{}
		o := New(config.Default(), engine, transcripts, fastOptions())

		require.NoError(t, o.Handle(context.Background(), stopEvent()))
		assert.Equal(t, 2, transcripts.calls)
		assert.Empty(t, engine.prompts)
		assert.Empty(t, engine.spoken)
	})

	t.Run("unreadable transcript", func(t *testing.T) {
		engine := &fakeEngine{text: "x"}
		o := New(config.Default(), engine, &fakeTranscripts{err: errors.New("failed to open transcript")}, fastOptions())

		require.NoError(t, o.Handle(context.Background(), stopEvent()))
		assert.Empty(t, engine.spoken)
	})
}

func TestHandle_StopFallbackMessage(t *testing.T) {
	tests := []struct {
		name   string
		engine *fakeEngine
	}{
		{"exhausted", &fakeEngine{genErr: &fallback.ChainExhaustedError{Role: provider.RoleLLM}}},
		{"explicit failure", &fakeEngine{genErr: errdefs.NewRequestError("openai", 500, errors.New("boom"))}},
		{"empty summary", &fakeEngine{text: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Summarization.FallbackMessage = "Task finished"
			var stderr bytes.Buffer
			o := New(cfg, tt.engine, &fakeTranscripts{reads: [][]string{{"work"}}}, fastOptions(), WithStderr(&stderr))

			require.NoError(t, o.Handle(context.Background(), stopEvent()))
			assert.Equal(t, []string{"Task finished"}, tt.engine.texts())
			assert.Empty(t, stderr.String())
		})
	}
}

type exceededBudget struct{}

func (exceededBudget) CheckBudget(ctx context.Context) error {
	return &errdefs.BudgetExceededError{Spent: 0.12, Limit: 0.10}
}

type recordingFactory struct {
	llmCalls int
	spoken   []string
}

type recordingTTS struct{ f *recordingFactory }

func (r recordingTTS) Name() string             { return "macos" }
func (r recordingTTS) IsConfigured() bool       { return true }
func (r recordingTTS) EstimateCost(int) float64 { return 0 }

func (r recordingTTS) Speak(ctx context.Context, req *tts.Request) error {
	r.f.spoken = append(r.f.spoken, req.Text)
	return nil
}

func (f *recordingFactory) CreateLLM(cfg config.ProviderConfig) (llm.Provider, error) {
	f.llmCalls++
	return nil, errors.New("must not be constructed")
}

func (f *recordingFactory) CreateTTS(cfg config.ProviderConfig) (tts.Provider, error) {
	return recordingTTS{f: f}, nil
}

// A spent budget skips every LLM provider and speaks the fallback message.
func TestHandle_BudgetExceededSpeaksFallback(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Providers = []config.ProviderConfig{{Name: "macos"}}
	factory := &recordingFactory{}
	engine := fallback.New(factory, fallback.WithBudget(exceededBudget{}))
	var stderr bytes.Buffer

	o := New(cfg, engine, &fakeTranscripts{reads: [][]string{{"Refactored the loader"}}}, fastOptions(), WithStderr(&stderr))
	require.NoError(t, o.Handle(context.Background(), stopEvent()))

	assert.Zero(t, factory.llmCalls)
	assert.Equal(t, []string{config.DefaultFallbackMessage}, factory.spoken)
	assert.Contains(t, stderr.String(), "budget exceeded")
	assert.Contains(t, stderr.String(), "using fallback message")
}

func TestHandle_StopDedup(t *testing.T) {
	cfg := config.Default()
	engine := &fakeEngine{text: "Done."}
	transcripts := &fakeTranscripts{reads: [][]string{{"same turn"}}}
	o := New(cfg, engine, transcripts, fastOptions(), WithDedup(NewDedupAt(t.TempDir())))

	require.NoError(t, o.Handle(context.Background(), stopEvent()))
	require.NoError(t, o.Handle(context.Background(), stopEvent()))
	assert.Len(t, engine.spoken, 1)
	assert.Len(t, engine.prompts, 1)

	other := stopEvent()
	other.SessionID = "session-2"
	require.NoError(t, o.Handle(context.Background(), other))
	assert.Len(t, engine.spoken, 2)

	t.Run("disabled in config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Advanced.Dedup = false
		engine := &fakeEngine{text: "Done."}
		o := New(cfg, engine, transcripts, fastOptions(), WithDedup(NewDedupAt(t.TempDir())))

		require.NoError(t, o.Handle(context.Background(), stopEvent()))
		require.NoError(t, o.Handle(context.Background(), stopEvent()))
		assert.Len(t, engine.spoken, 2)
	})
}

func TestHandle_CodexInlineContext(t *testing.T) {
	engine := &fakeEngine{text: "Bug fixed."}
	transcripts := &fakeTranscripts{}
	o := New(config.Default(), engine, transcripts, fastOptions())

	event := &hook.Event{Source: hook.SourceCodex, Kind: hook.KindCompletion, SessionID: "t", InlineContext: "I've fixed the bug."}
	require.NoError(t, o.Handle(context.Background(), event))

	assert.Zero(t, transcripts.calls)
	require.Len(t, engine.prompts, 1)
	assert.Contains(t, engine.prompts[0].Prompt, "I've fixed the bug.")
	assert.Equal(t, []string{"Bug fixed."}, engine.texts())
}

func TestHandle_EarlyExits(t *testing.T) {
	t.Run("stop hook active", func(t *testing.T) {
		engine := &fakeEngine{text: "x"}
		transcripts := &fakeTranscripts{reads: [][]string{{"t"}}}
		event := stopEvent()
		event.StopHookActive = true

		require.NoError(t, New(config.Default(), engine, transcripts, fastOptions()).Handle(context.Background(), event))
		assert.Zero(t, transcripts.calls)
		assert.Empty(t, engine.spoken)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Enabled = false
		engine := &fakeEngine{}
		event := &hook.Event{Kind: hook.KindGeneric, Message: "hi"}

		require.NoError(t, New(cfg, engine, &fakeTranscripts{}, fastOptions()).Handle(context.Background(), event))
		assert.Empty(t, engine.spoken)
	})

	t.Run("ignored hook", func(t *testing.T) {
		engine := &fakeEngine{}
		event := &hook.Event{Kind: hook.KindIgnored, Name: "UserPromptSubmit"}

		require.NoError(t, New(config.Default(), engine, &fakeTranscripts{}, fastOptions()).Handle(context.Background(), event))
		assert.Empty(t, engine.spoken)
	})
}

func TestHandle_GenericAndSilentTTSFailure(t *testing.T) {
	engine := &fakeEngine{speakErr: &fallback.ChainExhaustedError{Role: provider.RoleTTS}}
	var stderr bytes.Buffer
	o := New(config.Default(), engine, &fakeTranscripts{}, Options{Rate: 250}, WithStderr(&stderr))

	err := o.Handle(context.Background(), &hook.Event{Kind: hook.KindGeneric, Message: "Build finished"})
	require.NoError(t, err)
	require.Len(t, engine.spoken, 1)
	assert.Equal(t, 250, engine.spoken[0].req.Rate)
	assert.Empty(t, stderr.String())
}

func TestLLMChain(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Providers = []config.ProviderConfig{
		{Name: "gemini", Model: "gemini-2.5-flash", APIKey: "cfg-key", BaseURL: "http://gemini.test"},
		{Name: "ollama", Model: "llama3.2"},
		{Name: "openai", Timeout: 3},
	}

	t.Run("configured", func(t *testing.T) {
		chain := New(cfg, &fakeEngine{}, nil, Options{}).LLMChain()
		assert.False(t, chain.Explicit)
		require.Len(t, chain.Entries, 3)
		assert.Equal(t, 10, chain.Entries[0].Timeout, "parameters.timeout fills unset cloud timeouts")
		assert.Zero(t, chain.Entries[1].Timeout, "local inference keeps its own default")
		assert.Equal(t, 3, chain.Entries[2].Timeout)
		assert.Zero(t, cfg.LLM.Providers[0].Timeout, "config is not modified")
	})

	t.Run("provider override", func(t *testing.T) {
		chain := New(cfg, &fakeEngine{}, nil, Options{Provider: "google", Timeout: 7 * time.Second}).LLMChain()
		assert.True(t, chain.Explicit)
		require.Len(t, chain.Entries, 1)
		entry := chain.Entries[0]
		assert.Equal(t, "google", entry.Name)
		assert.Equal(t, "cfg-key", entry.APIKey, "credentials come from the matching alias entry")
		assert.Equal(t, "http://gemini.test", entry.BaseURL)
		assert.Empty(t, entry.Model, "the factory applies the provider default model")
		assert.Equal(t, 7, entry.Timeout)
	})

	t.Run("model only defaults to google", func(t *testing.T) {
		chain := New(cfg, &fakeEngine{}, nil, Options{Model: "gemini-2.0-flash"}).LLMChain()
		assert.True(t, chain.Explicit)
		assert.Equal(t, "google", chain.Entries[0].Name)
		assert.Equal(t, "gemini-2.0-flash", chain.Entries[0].Model)
	})
}

func TestTTSChain(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name      string
		opts      Options
		pin       string
		wantNames []string
		explicit  bool
		wantVoice string
		wantRate  int
	}{
		{"configured chain", Options{TTS: "auto"}, "", []string{"google", "macos"}, false, "", 0},
		{"flag override", Options{TTS: "say", Voice: "Samantha"}, "", []string{"macos"}, true, "Samantha", 200},
		{"pin beats flag", Options{TTS: "macos"}, "gemini", []string{"google"}, true, "Aoede", 0},
		{"rate applies to override", Options{TTS: "macos", Rate: 260}, "", []string{"macos"}, true, "", 260},
		{"unconfigured provider", Options{TTS: "polly"}, "", []string{"polly"}, true, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := New(cfg, &fakeEngine{}, nil, tt.opts).TTSChain(tt.pin)
			assert.Equal(t, tt.explicit, chain.Explicit)
			var names []string
			for _, e := range chain.Entries {
				names = append(names, e.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			if tt.explicit {
				assert.Equal(t, tt.wantVoice, chain.Entries[0].Voice)
				assert.Equal(t, tt.wantRate, chain.Entries[0].Rate)
			}
		})
	}
}

func TestSay(t *testing.T) {
	engine := &fakeEngine{}
	volume := 30
	o := New(config.Default(), engine, nil, Options{TTS: "macos", Volume: &volume})

	require.NoError(t, o.Say(context.Background(), "hello"))
	require.Len(t, engine.spoken, 1)
	assert.Equal(t, 30, *engine.spoken[0].req.Volume)

	engine.speakErr = errors.New("no audio player found")
	assert.Error(t, o.Say(context.Background(), "hello"))
}
