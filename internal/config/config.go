// Package config loads and validates the ccvoice configuration file.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root of ccvoice.json.
type Config struct {
	Version       string              `json:"version" yaml:"version"`
	Enabled       bool                `json:"enabled" yaml:"enabled"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	LLM           LLMConfig           `json:"llm" yaml:"llm"`
	TTS           TTSConfig           `json:"tts" yaml:"tts"`
	Summarization SummarizationConfig `json:"summarization" yaml:"summarization"`
	Hooks         HooksConfig         `json:"hooks" yaml:"hooks"`
	Advanced      AdvancedConfig      `json:"advanced" yaml:"advanced"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// LLMConfig holds the ordered LLM provider chain.
type LLMConfig struct {
	Providers   []ProviderConfig `json:"providers" yaml:"providers"`
	Parameters  LLMParameters    `json:"parameters" yaml:"parameters"`
	CostControl CostControl      `json:"cost_control" yaml:"cost_control"`
}

type LLMParameters struct {
	MaxTokens       int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	Timeout         int     `json:"timeout" yaml:"timeout"`
	DisableThinking bool    `json:"disable_thinking" yaml:"disable_thinking"`
}

// CostControl configures the daily usage ledger. A DailyLimitUSD of 0 means
// unlimited.
type CostControl struct {
	DailyLimitUSD float64 `json:"daily_limit_usd" yaml:"daily_limit_usd"`
	UsageTracking bool    `json:"usage_tracking" yaml:"usage_tracking"`
	UsageFile     string  `json:"usage_file" yaml:"usage_file"`
}

// TTSConfig holds the ordered TTS provider chain.
type TTSConfig struct {
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
}

// ProviderConfig is one entry of an LLM or TTS chain. Fields that do not
// apply to a provider are ignored.
type ProviderConfig struct {
	Name    string `json:"name" yaml:"name"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Voice   string `json:"voice,omitempty" yaml:"voice,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Timeout in seconds.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	Rate     int    `json:"rate,omitempty" yaml:"rate,omitempty"`
	Volume   *int   `json:"volume,omitempty" yaml:"volume,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Engine   string `json:"engine,omitempty" yaml:"engine,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Async    *bool  `json:"async,omitempty" yaml:"async,omitempty"`
}

type SummarizationConfig struct {
	Turns                     int    `json:"turns" yaml:"turns"`
	MaxLength                 int    `json:"max_length" yaml:"max_length"`
	PromptTemplate            string `json:"prompt_template" yaml:"prompt_template"`
	SystemMessage             string `json:"system_message" yaml:"system_message"`
	NotificationPrompt        string `json:"notification_prompt" yaml:"notification_prompt"`
	NotificationSystemMessage string `json:"notification_system_message" yaml:"notification_system_message"`
	FallbackMessage           string `json:"fallback_message" yaml:"fallback_message"`
}

type HooksConfig struct {
	ClaudeCode ClaudeCodeHookConfig `json:"claude_code" yaml:"claude_code"`
}

// ClaudeCodeHookConfig controls which events speak and through which TTS.
type ClaudeCodeHookConfig struct {
	// NotificationFilter lists notification types to speak. "*" means all,
	// an empty list disables notifications.
	NotificationFilter      []string `json:"notification_filter" yaml:"notification_filter"`
	NotificationTTSProvider string   `json:"notification_tts_provider,omitempty" yaml:"notification_tts_provider,omitempty"`
	StopTTSProvider         string   `json:"stop_tts_provider,omitempty" yaml:"stop_tts_provider,omitempty"`
	SummarizeNotifications  bool     `json:"summarize_notifications" yaml:"summarize_notifications"`
}

type AdvancedConfig struct {
	Dedup bool `json:"dedup" yaml:"dedup"`
}

const (
	DefaultFallbackMessage = "Claude Code task completed"
	DefaultPromptTemplate  = "Summarize what was just done in one spoken sentence of at most {max_length} characters. " +
		"Say what changed and whether it succeeded.\n\n{context}"
	DefaultSystemMessage = "You write short voice notifications for a developer. " +
		"Reply with one plain sentence, no markdown, no code, no lists."
	DefaultNotificationPrompt        = "Rewrite this notification as one short spoken sentence: {message}"
	DefaultNotificationSystemMessage = "You turn tool notifications into short spoken sentences. Reply with the sentence only."
	DefaultUsageFile                 = "~/.claude/ccvoice-usage.json"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1.0",
		Enabled: true,
		Logging: LoggingConfig{Level: "warn"},
		LLM: LLMConfig{
			Providers: []ProviderConfig{
				{Name: "google", Model: "gemini-2.5-flash"},
				{Name: "anthropic", Model: "claude-haiku-4-5"},
				{Name: "openai", Model: "gpt-4o-mini"},
				{Name: "ollama", Model: "llama3.2"},
			},
			Parameters: LLMParameters{
				MaxTokens:       100,
				Temperature:     0.3,
				Timeout:         10,
				DisableThinking: true,
			},
			CostControl: CostControl{
				DailyLimitUSD: 0.10,
				UsageTracking: true,
				UsageFile:     DefaultUsageFile,
			},
		},
		TTS: TTSConfig{
			Providers: []ProviderConfig{
				{Name: "google", Model: "gemini-2.5-flash-preview-tts", Voice: "Aoede"},
				{Name: "macos", Rate: 200},
			},
		},
		Summarization: SummarizationConfig{
			Turns:                     1,
			MaxLength:                 50,
			PromptTemplate:            DefaultPromptTemplate,
			SystemMessage:             DefaultSystemMessage,
			NotificationPrompt:        DefaultNotificationPrompt,
			NotificationSystemMessage: DefaultNotificationSystemMessage,
			FallbackMessage:           DefaultFallbackMessage,
		},
		Hooks: HooksConfig{
			ClaudeCode: ClaudeCodeHookConfig{
				NotificationFilter: []string{"permission_prompt", "idle_prompt", "elicitation_dialog"},
			},
		},
		Advanced: AdvancedConfig{Dedup: true},
	}
}

// IsPlaceholder reports whether v is an unexpanded ${VAR} reference.
func IsPlaceholder(v string) bool {
	return strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}")
}

// Key returns the configured API key, or "" when unset or an unexpanded
// placeholder.
func (p ProviderConfig) Key() string {
	if IsPlaceholder(p.APIKey) {
		return ""
	}
	return p.APIKey
}

// TimeoutOr returns the configured timeout or def.
func (p ProviderConfig) TimeoutOr(def time.Duration) time.Duration {
	if p.Timeout > 0 {
		return time.Duration(p.Timeout) * time.Second
	}
	return def
}

// AsyncOr returns the configured async flag or def.
func (p ProviderConfig) AsyncOr(def bool) bool {
	if p.Async != nil {
		return *p.Async
	}
	return def
}

// FindLLM returns the first LLM entry whose name matches, ignoring case.
func (c *Config) FindLLM(name string) (ProviderConfig, bool) {
	return find(c.LLM.Providers, name)
}

// FindTTS returns the first TTS entry whose name matches, ignoring case.
func (c *Config) FindTTS(name string) (ProviderConfig, bool) {
	return find(c.TTS.Providers, name)
}

func find(entries []ProviderConfig, name string) (ProviderConfig, bool) {
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return ProviderConfig{}, false
}

// Validate checks value ranges. Provider names are checked by the provider
// package, which owns the alias table.
func (c *Config) Validate() error {
	for i, p := range c.TTS.Providers {
		if p.Name == "" {
			return fmt.Errorf("tts.providers[%d]: name is required", i)
		}
		if p.Rate != 0 && (p.Rate < 90 || p.Rate > 300) {
			return fmt.Errorf("tts.providers[%d] (%s): rate %d out of range [90-300]", i, p.Name, p.Rate)
		}
		if p.Volume != nil && (*p.Volume < 0 || *p.Volume > 100) {
			return fmt.Errorf("tts.providers[%d] (%s): volume %d out of range [0-100]", i, p.Name, *p.Volume)
		}
	}
	for i, p := range c.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm.providers[%d]: name is required", i)
		}
	}

	params := c.LLM.Parameters
	if params.Temperature < 0 || params.Temperature > 2 {
		return fmt.Errorf("temperature %g out of range [0.0-2.0]", params.Temperature)
	}
	if params.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be greater than 0")
	}
	if c.LLM.CostControl.DailyLimitUSD < 0 {
		return fmt.Errorf("daily_limit_usd cannot be negative")
	}
	if c.Summarization.Turns < 0 {
		return fmt.Errorf("summarization.turns cannot be negative")
	}
	return nil
}

// MaskSecrets returns a copy safe for display. Set keys only reveal their
// length.
func (c *Config) MaskSecrets() *Config {
	if c == nil {
		return nil
	}
	masked := *c
	masked.LLM.Providers = maskProviders(c.LLM.Providers)
	masked.TTS.Providers = maskProviders(c.TTS.Providers)
	return &masked
}

func maskProviders(in []ProviderConfig) []ProviderConfig {
	if in == nil {
		return nil
	}
	out := make([]ProviderConfig, len(in))
	for i, p := range in {
		if p.APIKey != "" && !IsPlaceholder(p.APIKey) {
			p.APIKey = fmt.Sprintf("[set, %d chars]", len(p.APIKey))
		}
		out[i] = p
	}
	return out
}
