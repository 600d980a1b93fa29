// Package provider builds LLM and TTS providers from chain entries.
package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/credentials"
	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/daikw/ccvoice/internal/llm"
	"github.com/daikw/ccvoice/internal/tts"
	"golang.org/x/text/cases"
)

// Role selects which capability a chain provides.
type Role string

const (
	RoleLLM Role = "llm"
	RoleTTS Role = "tts"
)

func (r Role) String() string {
	if r == RoleTTS {
		return "TTS"
	}
	return "LLM"
}

var aliases = map[Role]map[string]string{
	RoleLLM: {
		"google":    "google",
		"gemini":    "google",
		"anthropic": "anthropic",
		"claude":    "anthropic",
		"openai":    "openai",
		"gpt":       "openai",
		"ollama":    "ollama",
		"local":     "ollama",
	},
	RoleTTS: {
		"macos":      "macos",
		"say":        "macos",
		"google":     "google",
		"google_tts": "google",
		"gemini":     "google",
		"gemini_tts": "google",
		"polly":      "polly",
		"aws":        "polly",
		"gcp":        "gcp",
		"gcloud":     "gcp",
		"cloudtts":   "gcp",
		"openai":     "openai",
	},
}

// Canonical resolves a provider name or alias, ignoring case.
func Canonical(role Role, name string) (string, error) {
	if canonical, ok := aliases[role][cases.Fold().String(name)]; ok {
		return canonical, nil
	}
	return "", errdefs.NewConfigurationError("", "unknown %s provider %q", role, name)
}

// Names returns the canonical provider names for role.
func Names(role Role) []string {
	seen := map[string]bool{}
	var names []string
	for _, canonical := range aliases[role] {
		if !seen[canonical] {
			seen[canonical] = true
			names = append(names, canonical)
		}
	}
	sort.Strings(names)
	return names
}

// CredentialName maps a canonical provider to its key in the credential
// store. Gemini TTS has its own entry so it can use a separate key.
func CredentialName(role Role, canonical string) string {
	if role == RoleTTS && canonical == "google" {
		return "google_tts"
	}
	return canonical
}

var displayNames = map[string]string{
	"google":     "Google",
	"anthropic":  "Anthropic",
	"openai":     "OpenAI",
	"google_tts": "Google TTS",
}

// ValidateConfig runs cfg.Validate and checks every provider name.
func ValidateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, p := range cfg.LLM.Providers {
		if _, err := Canonical(RoleLLM, p.Name); err != nil {
			return err
		}
	}
	for _, p := range cfg.TTS.Providers {
		if _, err := Canonical(RoleTTS, p.Name); err != nil {
			return err
		}
	}
	return nil
}

const (
	DefaultLLMTimeout    = 10 * time.Second
	DefaultOllamaTimeout = 60 * time.Second
	DefaultTTSTimeout    = 30 * time.Second
)

var defaultModels = map[string]string{
	"google":    "gemini-2.5-flash",
	"anthropic": "claude-haiku-4-5",
	"openai":    "gpt-4o-mini",
	"ollama":    "llama3.2",
}

// DefaultModel returns the model used for an LLM provider when none is set.
func DefaultModel(canonical string) string {
	return defaultModels[canonical]
}

// CredentialResolver returns a secret for a credential name.
type CredentialResolver func(provider string) (string, bool)

// Factory constructs providers. It implements the fallback engine's factory
// contract.
type Factory struct {
	resolve     CredentialResolver
	player      tts.Player
	runner      tts.Runner
	output      tts.OutputRunner
	pollyClient tts.PollyClient
	gcpClient   tts.GCPClient
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithPlayer sets the audio player handed to cloud TTS providers.
func WithPlayer(p tts.Player) FactoryOption {
	return func(f *Factory) { f.player = p }
}

// WithCommandRunner replaces command execution for the say provider.
func WithCommandRunner(run tts.Runner, output tts.OutputRunner) FactoryOption {
	return func(f *Factory) { f.runner, f.output = run, output }
}

// WithPollyClient uses client instead of loading the AWS config.
func WithPollyClient(client tts.PollyClient) FactoryOption {
	return func(f *Factory) { f.pollyClient = client }
}

// WithGCPClient uses client instead of dialing Cloud TTS.
func WithGCPClient(client tts.GCPClient) FactoryOption {
	return func(f *Factory) { f.gcpClient = client }
}

// NewFactory creates a factory. A nil resolver means only config keys are
// used.
func NewFactory(resolve CredentialResolver, opts ...FactoryOption) *Factory {
	if resolve == nil {
		resolve = func(string) (string, bool) { return "", false }
	}
	f := &Factory{resolve: resolve}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// apiKey applies the priority environment > credentials file > config.
func (f *Factory) apiKey(credName string, cfg config.ProviderConfig) string {
	if key, ok := f.resolve(credName); ok && key != "" && !config.IsPlaceholder(key) {
		return key
	}
	return cfg.Key()
}

func missingKey(provider, credName string) error {
	hint := "ccvoice credentials set " + credName
	if vars := credentials.EnvVars(credName); len(vars) > 0 {
		return errdefs.NewConfigurationError(provider, "No API key for %s (set %s or run '%s')",
			displayNames[credName], vars[0], hint)
	}
	return errdefs.NewConfigurationError(provider, "No API key for %s (run '%s')", credName, hint)
}

// CreateLLM builds the LLM provider for one chain entry.
func (f *Factory) CreateLLM(cfg config.ProviderConfig) (llm.Provider, error) {
	name, err := Canonical(RoleLLM, cfg.Name)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[name]
	}

	timeout := DefaultLLMTimeout
	if name == "ollama" {
		timeout = DefaultOllamaTimeout
	}
	opts := []llm.Option{llm.WithTimeout(cfg.TimeoutOr(timeout))}
	if cfg.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.BaseURL))
	}

	if name == "ollama" {
		return llm.NewOllama(model, opts...), nil
	}

	credName := CredentialName(RoleLLM, name)
	key := f.apiKey(credName, cfg)
	if key == "" {
		return nil, missingKey(name, credName)
	}

	switch name {
	case "google":
		return llm.NewGemini(key, model, opts...), nil
	case "anthropic":
		return llm.NewAnthropic(key, model, opts...), nil
	case "openai":
		return llm.NewOpenAI(key, model, opts...), nil
	default:
		return nil, errdefs.NewConfigurationError(name, "unsupported LLM provider")
	}
}

// CreateTTS builds the TTS provider for one chain entry.
func (f *Factory) CreateTTS(cfg config.ProviderConfig) (tts.Provider, error) {
	name, err := Canonical(RoleTTS, cfg.Name)
	if err != nil {
		return nil, err
	}

	switch name {
	case "macos":
		return tts.NewMacOS(
			tts.WithMacOSVoice(cfg.Voice),
			tts.WithMacOSRate(cfg.Rate),
			tts.WithMacOSAsync(cfg.AsyncOr(true)),
			tts.WithMacOSRunner(f.runner, f.output),
		), nil

	case "google":
		credName := CredentialName(RoleTTS, name)
		key := f.apiKey(credName, cfg)
		if key == "" {
			return nil, missingKey(name, credName)
		}
		opts := []tts.GeminiOption{
			tts.WithGeminiTimeout(cfg.TimeoutOr(DefaultTTSTimeout)),
			tts.WithGeminiVolume(cfg.Volume),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, tts.WithGeminiBaseURL(cfg.BaseURL))
		}
		if f.player != nil {
			opts = append(opts, tts.WithGeminiPlayer(f.player))
		}
		return tts.NewGeminiTTS(key, cfg.Model, cfg.Voice, opts...), nil

	case "openai":
		credName := CredentialName(RoleTTS, name)
		key := f.apiKey(credName, cfg)
		if key == "" {
			return nil, missingKey(name, credName)
		}
		opts := []tts.OpenAIOption{tts.WithOpenAITimeout(cfg.TimeoutOr(DefaultTTSTimeout))}
		if cfg.BaseURL != "" {
			opts = append(opts, tts.WithOpenAIBaseURL(cfg.BaseURL))
		}
		if f.player != nil {
			opts = append(opts, tts.WithOpenAIPlayer(f.player))
		}
		return tts.NewOpenAITTS(key, cfg.Model, cfg.Voice, opts...), nil

	case "polly":
		opts := []tts.PollyOption{
			tts.WithPollyVoice(cfg.Voice),
			tts.WithPollyEngine(cfg.Engine),
			tts.WithPollyVolume(cfg.Volume),
		}
		if f.player != nil {
			opts = append(opts, tts.WithPollyPlayer(f.player))
		}
		if f.pollyClient != nil {
			return tts.NewPollyWithClient(f.pollyClient, opts...), nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutOr(DefaultTTSTimeout))
		defer cancel()
		return tts.NewPolly(ctx, cfg.Region, opts...)

	case "gcp":
		opts := []tts.GCPOption{
			tts.WithGCPVoice(cfg.Voice),
			tts.WithGCPLanguage(cfg.Language),
			tts.WithGCPVolume(cfg.Volume),
		}
		if f.player != nil {
			opts = append(opts, tts.WithGCPPlayer(f.player))
		}
		if f.gcpClient != nil {
			return tts.NewGCPWithClient(f.gcpClient, opts...), nil
		}
		// The client outlives construction, so it is not bound to a deadline.
		return tts.NewGCP(context.Background(), cfg.Key(), opts...)

	default:
		return nil, errdefs.NewConfigurationError(name, "unsupported TTS provider")
	}
}

// Describe returns a one-line description of an entry for status output.
func Describe(role Role, cfg config.ProviderConfig) string {
	name, err := Canonical(role, cfg.Name)
	if err != nil {
		return cfg.Name
	}
	if role == RoleLLM {
		model := cfg.Model
		if model == "" {
			model = defaultModels[name]
		}
		return fmt.Sprintf("%s (%s)", name, llm.NormalizeModel(model))
	}
	if cfg.Voice != "" {
		return fmt.Sprintf("%s (%s)", name, cfg.Voice)
	}
	return name
}
