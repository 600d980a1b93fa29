package tts

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// Player plays an audio file through the local output device.
type Player interface {
	Play(ctx context.Context, path string) error
}

// CommandPlayer plays audio with the first available system player.
type CommandPlayer struct {
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewCommandPlayer creates a player that shells out to afplay, paplay, aplay
// or ffplay.
func NewCommandPlayer() *CommandPlayer {
	return &CommandPlayer{
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// command picks the player binary and its arguments for path.
func (p *CommandPlayer) command(path string) (string, []string, error) {
	switch {
	case p.available("afplay"):
		// macOS
		return "afplay", []string{path}, nil
	case p.available("paplay"):
		// Linux with PulseAudio
		return "paplay", []string{path}, nil
	case p.available("aplay"):
		// Linux with ALSA
		return "aplay", []string{"-q", path}, nil
	case p.available("ffplay"):
		return "ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}, nil
	default:
		return "", nil, fmt.Errorf("no audio player found")
	}
}

func (p *CommandPlayer) available(name string) bool {
	_, err := p.lookPath(name)
	return err == nil
}

// Play blocks until playback finishes.
func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	name, args, err := p.command(path)
	if err != nil {
		return err
	}

	log.Debug().Str("player", name).Str("file", path).Msg("Playing audio")
	if err := p.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to play audio with %s: %w", name, err)
	}
	return nil
}

// playStream copies audio into a temp file, plays it and removes the file.
func playStream(ctx context.Context, player Player, audio io.Reader, ext string) error {
	tmpFile, err := os.CreateTemp("", "ccvoice_*."+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmpFile.Name()
	defer func() {
		_ = os.Remove(path)
	}()

	if _, err := io.Copy(tmpFile, audio); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to save audio: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}

	return player.Play(ctx, path)
}
