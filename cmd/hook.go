package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/daikw/ccvoice/internal/hook"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// handleHook is the default action: read one event, summarize and speak.
// Provider failures never fail the hook.
func handleHook(ctx context.Context, c *cli.Command) error {
	// Suppress normal output when running as hook
	if !c.Bool("verbose") {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	event, err := hook.Parse(hookInput(c))
	if err != nil {
		return fmt.Errorf("failed to read hook event: %w", err)
	}

	a, err := newApp(c)
	if err != nil {
		return err
	}
	applyLogLevel(c, a.cfg)

	log.Debug().
		Str("source", string(event.Source)).
		Str("kind", event.Kind.String()).
		Str("event", event.Name).
		Str("session_id", event.SessionID).
		Str("cwd", event.CWD).
		Msg("Received hook event")

	return a.orch.Handle(ctx, event)
}

// hookInput is stdin, or the JSON argument Codex's notify passes.
func hookInput(c *cli.Command) io.Reader {
	if arg := strings.TrimSpace(c.Args().First()); strings.HasPrefix(arg, "{") {
		return strings.NewReader(arg)
	}
	return os.Stdin
}

func setLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}
