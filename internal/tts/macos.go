package tts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/rs/zerolog/log"
)

// Runner executes a command. When wait is false the process is started and
// left running.
type Runner func(ctx context.Context, wait bool, name string, args ...string) error

// OutputRunner executes a command and returns its stdout.
type OutputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// MacOS speaks through the say command.
type MacOS struct {
	voice  string
	rate   int
	async  bool
	run    Runner
	output OutputRunner
}

// MacOSOption configures MacOS.
type MacOSOption func(*MacOS)

// WithMacOSVoice sets the default voice. Empty uses the system voice.
func WithMacOSVoice(voice string) MacOSOption {
	return func(p *MacOS) { p.voice = voice }
}

// WithMacOSRate sets the default rate in words per minute.
func WithMacOSRate(rate int) MacOSOption {
	return func(p *MacOS) {
		if rate > 0 {
			p.rate = rate
		}
	}
}

// WithMacOSAsync controls whether Speak returns before speech finishes.
func WithMacOSAsync(async bool) MacOSOption {
	return func(p *MacOS) { p.async = async }
}

// WithMacOSRunner replaces command execution.
func WithMacOSRunner(run Runner, output OutputRunner) MacOSOption {
	return func(p *MacOS) {
		if run != nil {
			p.run = run
		}
		if output != nil {
			p.output = output
		}
	}
}

// NewMacOS creates a say-based provider. Async by default.
func NewMacOS(opts ...MacOSOption) *MacOS {
	p := &MacOS{
		rate:   DefaultRate,
		async:  true,
		run:    execRunner,
		output: execOutput,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func execRunner(ctx context.Context, wait bool, name string, args ...string) error {
	if !wait {
		// Not bound to ctx: the process must outlive the hook invocation.
		cmd := exec.Command(name, args...)
		if err := cmd.Start(); err != nil {
			return err
		}
		go func() {
			_ = cmd.Wait()
		}()
		return nil
	}
	return exec.CommandContext(ctx, name, args...).Run()
}

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (p *MacOS) Name() string { return "macos" }

// IsConfigured is always true; a missing say binary surfaces from Speak.
func (p *MacOS) IsConfigured() bool { return true }

func (p *MacOS) EstimateCost(chars int) float64 { return 0 }

// Speak implements Provider. Volume is not supported by say and is ignored.
func (p *MacOS) Speak(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}

	voice := p.voice
	if req.Voice != "" {
		voice = req.Voice
	}
	rate := p.rate
	if req.Rate > 0 {
		rate = req.Rate
	}

	var args []string
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, "-r", strconv.Itoa(rate), req.Text)

	if req.Volume != nil {
		log.Debug().Int("volume", *req.Volume).Msg("say has no volume control, ignoring")
	}
	log.Debug().Str("voice", voice).Int("rate", rate).Bool("async", p.async).Msg("Running say")

	if err := p.run(ctx, !p.async, "say", args...); err != nil {
		return errdefs.NewRequestError(p.Name(), 0, fmt.Errorf("say failed: %w", err))
	}
	return nil
}

// sayVoiceLine matches "Alex                en_US    # Most people recognize me by my voice."
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#\s*(.*)$`)

// ListVoices implements VoiceLister by parsing `say -v ?`.
func (p *MacOS) ListVoices(ctx context.Context) ([]Voice, error) {
	out, err := p.output(ctx, "say", "-v", "?")
	if err != nil {
		return nil, fmt.Errorf("failed to list say voices: %w", err)
	}
	return parseSayVoices(out), nil
}

func parseSayVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := sayVoiceLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), " "))
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, Voice{
			ID:          name,
			Name:        name,
			Language:    m[2],
			Description: m[3],
		})
	}
	return voices
}
