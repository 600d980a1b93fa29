package tts

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultPollyRegion = "us-east-1"
	DefaultPollyVoice  = "Joanna"

	pollyNeuralCostPerChar   = 0.000016
	pollyStandardCostPerChar = 0.000004
)

// PollyClient is the subset of the Polly API used here.
type PollyClient interface {
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly speaks through Amazon Polly.
type Polly struct {
	client     PollyClient
	configured bool
	voice      string
	engine     string
	volume     *int
	player     Player
}

// PollyOption configures Polly.
type PollyOption func(*Polly)

// WithPollyVoice sets the default voice ID.
func WithPollyVoice(voice string) PollyOption {
	return func(p *Polly) {
		if voice != "" {
			p.voice = voice
		}
	}
}

// WithPollyEngine sets the engine: standard, neural, long-form or generative.
func WithPollyEngine(engine string) PollyOption {
	return func(p *Polly) {
		if engine != "" {
			p.engine = engine
		}
	}
}

// WithPollyVolume sets the default volume (0-100).
func WithPollyVolume(volume *int) PollyOption {
	return func(p *Polly) { p.volume = volume }
}

// WithPollyPlayer replaces the audio player.
func WithPollyPlayer(player Player) PollyOption {
	return func(p *Polly) { p.player = player }
}

// NewPolly loads the default AWS config chain for region and creates the
// provider.
func NewPolly(ctx context.Context, region string, opts ...PollyOption) (*Polly, error) {
	if region == "" {
		region = DefaultPollyRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errdefs.NewConfigurationError("polly", "failed to load AWS config: %v", err)
	}

	p := NewPollyWithClient(polly.NewFromConfig(cfg), opts...)
	p.configured = cfg.Credentials != nil && cfg.Region != ""
	return p, nil
}

// NewPollyWithClient creates the provider around an existing client.
func NewPollyWithClient(client PollyClient, opts ...PollyOption) *Polly {
	p := &Polly{
		client:     client,
		configured: client != nil,
		voice:      DefaultPollyVoice,
		engine:     string(types.EngineNeural),
		player:     NewCommandPlayer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Polly) Name() string { return "polly" }

func (p *Polly) IsConfigured() bool { return p.client != nil && p.configured }

// EstimateCost implements Provider.
func (p *Polly) EstimateCost(chars int) float64 {
	if p.pollyEngine() == types.EngineStandard {
		return float64(chars) * pollyStandardCostPerChar
	}
	return float64(chars) * pollyNeuralCostPerChar
}

func (p *Polly) pollyEngine() types.Engine {
	switch strings.ToLower(p.engine) {
	case "standard":
		return types.EngineStandard
	case "neural":
		return types.EngineNeural
	case "long-form":
		return types.EngineLongForm
	case "generative":
		return types.EngineGenerative
	default:
		log.Warn().Str("engine", p.engine).Msg("Unknown engine, using neural")
		return types.EngineNeural
	}
}

// ListVoices implements VoiceLister.
func (p *Polly) ListVoices(ctx context.Context) ([]Voice, error) {
	result, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list Polly voices: %w", err)
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		voice := Voice{
			ID:       string(v.Id),
			Name:     aws.ToString(v.Name),
			Language: string(v.LanguageCode),
			Description: fmt.Sprintf("%s voice, %s engine supported",
				cases.Title(language.English).String(string(v.Gender)),
				formatSupportedEngines(v.SupportedEngines)),
		}
		switch v.Gender {
		case types.GenderFemale:
			voice.Gender = "female"
		case types.GenderMale:
			voice.Gender = "male"
		}
		voices = append(voices, voice)
	}
	return voices, nil
}

// Speak implements Provider.
func (p *Polly) Speak(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}

	voiceID := p.voice
	if req.Voice != "" {
		voiceID = req.Voice
	}
	volume := p.volume
	if req.Volume != nil {
		volume = req.Volume
	}

	input := &polly.SynthesizeSpeechInput{
		VoiceId:      types.VoiceId(voiceID),
		OutputFormat: types.OutputFormatMp3,
		Engine:       p.pollyEngine(),
	}
	if isSSML(req.Text) {
		input.Text = aws.String(req.Text)
		input.TextType = types.TextTypeSsml
	} else if ssml, ok := prosodySSML(req.Text, req.Rate, volume); ok {
		input.Text = aws.String(ssml)
		input.TextType = types.TextTypeSsml
	} else {
		input.Text = aws.String(req.Text)
		input.TextType = types.TextTypeText
	}

	log.Debug().
		Str("voice_id", voiceID).
		Str("engine", string(input.Engine)).
		Str("text_type", string(input.TextType)).
		Msg("Making Polly synthesis request")

	result, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return errdefs.FromTransport(p.Name(), err)
	}
	defer func() {
		_ = result.AudioStream.Close()
	}()

	if err := playStream(ctx, p.player, result.AudioStream, "mp3"); err != nil {
		return errdefs.NewRequestError(p.Name(), 0, err)
	}
	return nil
}

// prosodySSML wraps text in a prosody element when rate or volume differ
// from the defaults.
func prosodySSML(text string, rate int, volume *int) (string, bool) {
	var attrs []string
	if rate > 0 && rate != DefaultRate {
		attrs = append(attrs, fmt.Sprintf(`rate="%d%%"`, rate*100/DefaultRate))
	}
	if volume != nil && *volume < 100 {
		attrs = append(attrs, fmt.Sprintf(`volume="%s"`, volumeDB(*volume)))
	}
	if len(attrs) == 0 {
		return "", false
	}

	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(text))
	return fmt.Sprintf("<speak><prosody %s>%s</prosody></speak>", strings.Join(attrs, " "), escaped.String()), true
}

// volumeDB converts a 0-100 volume to an SSML gain.
func volumeDB(volume int) string {
	if volume <= 0 {
		return "silent"
	}
	return fmt.Sprintf("%+.1fdB", gainDB(volume))
}

func gainDB(volume int) float64 {
	if volume <= 0 {
		return -96
	}
	return 20 * math.Log10(float64(volume)/100)
}

// isSSML reports whether text already carries SSML markup.
func isSSML(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<speak") ||
		strings.Contains(trimmed, "<prosody") ||
		strings.Contains(trimmed, "<break") ||
		strings.Contains(trimmed, "<emphasis")
}

func formatSupportedEngines(engines []types.Engine) string {
	if len(engines) == 0 {
		return "unknown"
	}
	names := make([]string, len(engines))
	for i, engine := range engines {
		names[i] = string(engine)
	}
	return strings.Join(names, ", ")
}
