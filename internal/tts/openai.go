package tts

import (
	"context"
	"errors"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/rs/zerolog/log"

	"github.com/daikw/ccvoice/internal/errdefs"
)

const (
	// DefaultOpenAITTSModel is the model used when none is configured.
	DefaultOpenAITTSModel = "tts-1"
	// DefaultOpenAIVoice is the voice used when none is configured.
	DefaultOpenAIVoice = "alloy"

	openAITTSCostPerChar = 0.000015
)

var openAIVoices = []Voice{
	{ID: "alloy", Name: "Alloy", Gender: "neutral", Description: "Balanced, clear voice"},
	{ID: "echo", Name: "Echo", Gender: "male", Description: "Deep, resonant voice"},
	{ID: "fable", Name: "Fable", Gender: "neutral", Description: "Expressive, storytelling voice"},
	{ID: "onyx", Name: "Onyx", Gender: "male", Description: "Strong, authoritative voice"},
	{ID: "nova", Name: "Nova", Gender: "female", Description: "Bright, energetic voice"},
	{ID: "shimmer", Name: "Shimmer", Gender: "female", Description: "Warm, friendly voice"},
}

// OpenAITTS synthesizes MP3 audio with the OpenAI speech endpoint.
type OpenAITTS struct {
	apiKey string
	model  string
	voice  string
	client oai.Client
	player Player
}

// OpenAIOption configures OpenAITTS.
type OpenAIOption func(*openAISettings)

type openAISettings struct {
	baseURL string
	timeout time.Duration
	player  Player
}

// WithOpenAIBaseURL overrides the API endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(s *openAISettings) { s.baseURL = strings.TrimSuffix(url, "/") }
}

// WithOpenAITimeout sets the HTTP timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(s *openAISettings) { s.timeout = d }
}

// WithOpenAIPlayer replaces the audio player.
func WithOpenAIPlayer(player Player) OpenAIOption {
	return func(s *openAISettings) { s.player = player }
}

// NewOpenAITTS creates an OpenAI TTS provider.
func NewOpenAITTS(apiKey, model, voice string, opts ...OpenAIOption) *OpenAITTS {
	s := openAISettings{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}
	if model == "" {
		model = DefaultOpenAITTSModel
	}
	if voice == "" {
		voice = DefaultOpenAIVoice
	}
	if s.player == nil {
		s.player = NewCommandPlayer()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(s.timeout),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL+"/"))
	}

	return &OpenAITTS{
		apiKey: apiKey,
		model:  model,
		voice:  voice,
		client: oai.NewClient(reqOpts...),
		player: s.player,
	}
}

func (p *OpenAITTS) Name() string { return "openai" }

func (p *OpenAITTS) IsConfigured() bool {
	return p.apiKey != "" && !strings.HasPrefix(p.apiKey, "${")
}

// EstimateCost implements Provider.
func (p *OpenAITTS) EstimateCost(chars int) float64 {
	return float64(chars) * openAITTSCostPerChar
}

// ListVoices implements VoiceLister. The voice set is fixed.
func (p *OpenAITTS) ListVoices(ctx context.Context) ([]Voice, error) {
	voices := make([]Voice, len(openAIVoices))
	copy(voices, openAIVoices)
	return voices, nil
}

// openAISpeed maps words per minute onto the 0.25-4.0 speed multiplier.
func openAISpeed(rate int) float64 {
	if rate <= 0 {
		return 1.0
	}
	return clamp(float64(rate)/DefaultRate, 0.25, 4.0)
}

// Speak implements Provider. Volume is not supported by the endpoint and is
// ignored.
func (p *OpenAITTS) Speak(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}
	if !p.IsConfigured() {
		return errdefs.NewConfigurationError(p.Name(), "No API key for OpenAI")
	}

	voice := p.voice
	if req.Voice != "" {
		voice = req.Voice
	}
	speed := openAISpeed(req.Rate)

	log.Debug().
		Str("voice", voice).
		Str("model", p.model).
		Float64("speed", speed).
		Msg("Making OpenAI TTS request")

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          param.NewOpt(speed),
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return errdefs.NewRequestError(p.Name(), apiErr.StatusCode, err)
		}
		return errdefs.FromTransport(p.Name(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := playStream(ctx, p.player, resp.Body, "mp3"); err != nil {
		return errdefs.NewRequestError(p.Name(), 0, err)
	}
	return nil
}
