package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/rs/zerolog/log"
)

const (
	geminiTTSBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiTTSModel is the model used when none is configured.
	DefaultGeminiTTSModel = "gemini-2.5-flash-preview-tts"
	// DefaultGeminiVoice is the prebuilt voice used when none is configured.
	DefaultGeminiVoice = "Aoede"

	geminiSampleRate  = 24000
	geminiCostPerChar = 0.000016
)

// GeminiVoices are the prebuilt voices offered for Gemini TTS.
var GeminiVoices = []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck", "Orus", "Zephyr"}

// GeminiTTS synthesizes speech with the Gemini generateContent API and plays
// the returned PCM audio.
type GeminiTTS struct {
	apiKey     string
	model      string
	voice      string
	volume     *int
	baseURL    string
	httpClient *http.Client
	player     Player
}

// GeminiOption configures GeminiTTS.
type GeminiOption func(*GeminiTTS)

// WithGeminiBaseURL overrides the API endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(p *GeminiTTS) { p.baseURL = strings.TrimSuffix(url, "/") }
}

// WithGeminiTimeout sets the HTTP timeout.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(p *GeminiTTS) { p.httpClient = &http.Client{Timeout: d} }
}

// WithGeminiVolume sets the default volume (0-100).
func WithGeminiVolume(volume *int) GeminiOption {
	return func(p *GeminiTTS) { p.volume = volume }
}

// WithGeminiPlayer replaces the audio player.
func WithGeminiPlayer(player Player) GeminiOption {
	return func(p *GeminiTTS) { p.player = player }
}

// NewGeminiTTS creates a Gemini TTS provider.
func NewGeminiTTS(apiKey, model, voice string, opts ...GeminiOption) *GeminiTTS {
	if model == "" {
		model = DefaultGeminiTTSModel
	}
	if voice == "" {
		voice = DefaultGeminiVoice
	}
	p := &GeminiTTS{
		apiKey:     apiKey,
		model:      model,
		voice:      voice,
		baseURL:    geminiTTSBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		player:     NewCommandPlayer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GeminiTTS) Name() string { return "google" }

func (p *GeminiTTS) IsConfigured() bool {
	return p.apiKey != "" && !strings.HasPrefix(p.apiKey, "${")
}

// EstimateCost implements Provider.
func (p *GeminiTTS) EstimateCost(chars int) float64 {
	return float64(chars) * geminiCostPerChar
}

// ListVoices implements VoiceLister.
func (p *GeminiTTS) ListVoices(ctx context.Context) ([]Voice, error) {
	voices := make([]Voice, 0, len(GeminiVoices))
	for _, v := range GeminiVoices {
		voices = append(voices, Voice{ID: v, Name: v, Description: "Gemini prebuilt voice"})
	}
	return voices, nil
}

type geminiTTSRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		SpeechConfig       struct {
			VoiceConfig struct {
				PrebuiltVoiceConfig struct {
					VoiceName string `json:"voiceName"`
				} `json:"prebuiltVoiceConfig"`
			} `json:"voiceConfig"`
		} `json:"speechConfig"`
	} `json:"generationConfig"`
}

type geminiTTSResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (p *GeminiTTS) buildRequest(text, voice string) geminiTTSRequest {
	var body geminiTTSRequest
	body.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	body.Contents[0].Parts = []struct {
		Text string `json:"text"`
	}{{Text: "Read this aloud: " + text}}
	body.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	body.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice
	return body
}

// Speak implements Provider.
func (p *GeminiTTS) Speak(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}
	if !p.IsConfigured() {
		return errdefs.NewConfigurationError(p.Name(), "No API key for Google TTS")
	}

	voice := p.voice
	if req.Voice != "" {
		voice = req.Voice
	}
	volume := p.volume
	if req.Volume != nil {
		volume = req.Volume
	}

	pcm, err := p.synthesize(ctx, req.Text, voice)
	if err != nil {
		return err
	}
	if volume != nil {
		pcm = scalePCM(pcm, *volume)
	}

	log.Debug().Str("voice", voice).Int("pcm_bytes", len(pcm)).Msg("Gemini TTS synthesis successful")

	if err := playStream(ctx, p.player, bytes.NewReader(wavFromPCM(pcm, geminiSampleRate)), "wav"); err != nil {
		return errdefs.NewRequestError(p.Name(), 0, err)
	}
	return nil
}

func (p *GeminiTTS) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	payload, err := json.Marshal(p.buildRequest(text, voice))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errdefs.FromTransport(p.Name(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errdefs.FromTransport(p.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errdefs.NewRequestError(p.Name(), resp.StatusCode, fmt.Errorf("body: %s", string(data)))
	}

	var parsed geminiTTSResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errdefs.NewRequestError(p.Name(), resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].InlineData == nil {
		return nil, errdefs.NewRequestError(p.Name(), resp.StatusCode, fmt.Errorf("no audio in response"))
	}

	pcm, err := base64.StdEncoding.DecodeString(parsed.Candidates[0].Content.Parts[0].InlineData.Data)
	if err != nil {
		return nil, errdefs.NewRequestError(p.Name(), resp.StatusCode, fmt.Errorf("failed to decode audio: %w", err))
	}
	return pcm, nil
}

// scalePCM scales signed 16-bit little-endian samples by volume/100.
func scalePCM(pcm []byte, volume int) []byte {
	if volume >= 100 {
		return pcm
	}
	if volume < 0 {
		volume = 0
	}
	out := make([]byte, len(pcm))
	copy(out, pcm)
	for i := 0; i+1 < len(out); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(out[i:]))
		scaled := int16(int32(sample) * int32(volume) / 100)
		binary.LittleEndian.PutUint16(out[i:], uint16(scaled))
	}
	return out
}

// wavFromPCM frames mono 16-bit PCM in a RIFF/WAVE header.
func wavFromPCM(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := new(bytes.Buffer)
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
