// Package tts contains the speech providers: Gemini TTS, OpenAI TTS, the
// macOS say command, Amazon Polly and Google Cloud Text-to-Speech.
package tts

import (
	"context"
)

// Request is one utterance.
type Request struct {
	Text  string
	Voice string
	// Rate is in words per minute, 0 means provider default.
	Rate int
	// Volume is 0-100. Nil means provider default. Providers without volume
	// control ignore it.
	Volume *int
}

// Provider is the speech capability.
type Provider interface {
	// Name returns the canonical provider name.
	Name() string

	// IsConfigured is a cheap local check that credentials are present.
	IsConfigured() bool

	// Speak synthesizes text and plays it. No payload on success.
	Speak(ctx context.Context, req *Request) error

	// EstimateCost returns the estimated USD cost for speaking chars characters.
	EstimateCost(chars int) float64
}

// Voice describes a selectable voice.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

// VoiceLister is implemented by providers that can enumerate voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// DefaultRate is the speaking rate that maps to "normal speed" on
// providers that take a relative rate.
const DefaultRate = 200
