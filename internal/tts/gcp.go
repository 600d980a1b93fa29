package tts

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	DefaultGCPVoice    = "en-US-Neural2-F"
	DefaultGCPLanguage = "en-US"

	gcpPremiumCostPerChar  = 0.000016
	gcpStandardCostPerChar = 0.000004
)

// GCPClient is the subset of the Cloud Text-to-Speech client used here.
type GCPClient interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// GCP speaks through Google Cloud Text-to-Speech.
type GCP struct {
	client   GCPClient
	voice    string
	language string
	volume   *int
	player   Player
}

// GCPOption configures GCP.
type GCPOption func(*GCP)

// WithGCPVoice sets the default voice name.
func WithGCPVoice(voice string) GCPOption {
	return func(p *GCP) {
		if voice != "" {
			p.voice = voice
		}
	}
}

// WithGCPLanguage sets the default language code.
func WithGCPLanguage(lang string) GCPOption {
	return func(p *GCP) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithGCPVolume sets the default volume (0-100).
func WithGCPVolume(volume *int) GCPOption {
	return func(p *GCP) { p.volume = volume }
}

// WithGCPPlayer replaces the audio player.
func WithGCPPlayer(player Player) GCPOption {
	return func(p *GCP) { p.player = player }
}

// NewGCP creates a Cloud TTS client. Authentication uses apiKey when set,
// otherwise Application Default Credentials.
func NewGCP(ctx context.Context, apiKey string, opts ...GCPOption) (*GCP, error) {
	var clientOpts []option.ClientOption
	if apiKey != "" && !strings.HasPrefix(apiKey, "${") {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}

	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errdefs.NewConfigurationError("gcp", "failed to create Cloud TTS client: %v", err)
	}
	return NewGCPWithClient(client, opts...), nil
}

// NewGCPWithClient creates the provider around an existing client.
func NewGCPWithClient(client GCPClient, opts ...GCPOption) *GCP {
	p := &GCP{
		client:   client,
		voice:    DefaultGCPVoice,
		language: DefaultGCPLanguage,
		player:   NewCommandPlayer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GCP) Name() string { return "gcp" }

func (p *GCP) IsConfigured() bool { return p.client != nil }

// EstimateCost implements Provider.
func (p *GCP) EstimateCost(chars int) float64 {
	if detectEngineType(p.voice) == "Standard" {
		return float64(chars) * gcpStandardCostPerChar
	}
	return float64(chars) * gcpPremiumCostPerChar
}

// Close releases the underlying client.
func (p *GCP) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// ListVoices implements VoiceLister.
func (p *GCP) ListVoices(ctx context.Context) ([]Voice, error) {
	resp, err := p.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list GCP voices: %w", err)
	}

	var voices []Voice
	for _, v := range resp.Voices {
		gender := "unknown"
		switch v.SsmlGender {
		case texttospeechpb.SsmlVoiceGender_MALE:
			gender = "male"
		case texttospeechpb.SsmlVoiceGender_FEMALE:
			gender = "female"
		case texttospeechpb.SsmlVoiceGender_NEUTRAL:
			gender = "neutral"
		}
		for _, langCode := range v.LanguageCodes {
			voices = append(voices, Voice{
				ID:          v.Name,
				Name:        v.Name,
				Language:    langCode,
				Gender:      gender,
				Description: fmt.Sprintf("%s voice", detectEngineType(v.Name)),
			})
		}
	}

	log.Debug().Int("count", len(voices)).Msg("Listed GCP TTS voices")
	return voices, nil
}

// Speak implements Provider.
func (p *GCP) Speak(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}

	voice := p.voice
	if req.Voice != "" {
		voice = req.Voice
	}
	volume := p.volume
	if req.Volume != nil {
		volume = req.Volume
	}

	input := &texttospeechpb.SynthesisInput{
		InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
	}
	if isSSML(req.Text) {
		input.InputSource = &texttospeechpb.SynthesisInput_Ssml{Ssml: req.Text}
	}

	audioConfig := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		SpeakingRate:  speakingRate(req.Rate),
	}
	if volume != nil {
		audioConfig.VolumeGainDb = clamp(gainDB(*volume), -96, 16)
	}

	lang := languageFromVoice(voice, p.language)
	log.Debug().
		Str("voice", voice).
		Str("language", lang).
		Float64("speaking_rate", audioConfig.SpeakingRate).
		Msg("Making GCP TTS synthesis request")

	resp, err := p.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input:       input,
		Voice:       &texttospeechpb.VoiceSelectionParams{LanguageCode: lang, Name: voice},
		AudioConfig: audioConfig,
	})
	if err != nil {
		return errdefs.FromTransport(p.Name(), err)
	}

	log.Debug().Int("audio_bytes", len(resp.AudioContent)).Msg("GCP TTS synthesis successful")

	if err := playStream(ctx, p.player, bytes.NewReader(resp.AudioContent), "mp3"); err != nil {
		return errdefs.NewRequestError(p.Name(), 0, err)
	}
	return nil
}

// speakingRate maps words per minute onto the 0.25-4.0 multiplier.
func speakingRate(rate int) float64 {
	if rate <= 0 {
		return 1.0
	}
	return clamp(float64(rate)/DefaultRate, 0.25, 4.0)
}

// languageFromVoice extracts "ja-JP" from "ja-JP-Neural2-B".
func languageFromVoice(voice, fallback string) string {
	parts := strings.Split(voice, "-")
	if len(parts) >= 3 {
		return parts[0] + "-" + parts[1]
	}
	return fallback
}

func detectEngineType(voiceName string) string {
	name := strings.ToLower(voiceName)
	switch {
	case strings.Contains(name, "wavenet"):
		return "WaveNet"
	case strings.Contains(name, "neural2"):
		return "Neural2"
	case strings.Contains(name, "studio"):
		return "Studio"
	case strings.Contains(name, "chirp"):
		return "Chirp"
	case strings.Contains(name, "polyglot"):
		return "Polyglot"
	case strings.Contains(name, "news"):
		return "News"
	case strings.Contains(name, "casual"):
		return "Casual"
	default:
		return "Standard"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
