package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/daikw/ccvoice/internal/transcript"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// handleSay speaks its arguments, or stdin when there are none.
func handleSay(ctx context.Context, c *cli.Command) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		text = strings.TrimSpace(string(b))
	}
	if text == "" {
		return fmt.Errorf("no text provided")
	}

	a, err := newApp(c)
	if err != nil {
		return err
	}
	if err := a.orch.Say(ctx, text); err != nil {
		return fmt.Errorf("failed to speak: %w", err)
	}
	return nil
}

func handleSummarize(ctx context.Context, c *cli.Command) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}

	path := c.String("transcript")
	if path == "" {
		dir, err := transcript.DefaultProjectsDir()
		if err != nil {
			return err
		}
		path, err = transcript.FindLatest(dir)
		if err != nil {
			return fmt.Errorf("failed to find transcript: %w", err)
		}
	}
	log.Debug().Str("path", path).Msg("Using transcript file")

	turns := int(c.Int("turns"))
	if turns <= 0 {
		turns = a.cfg.Summarization.Turns
	}
	texts, err := transcript.NewReader().ReadLastTurns(path, turns)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	if len(texts) == 0 {
		return fmt.Errorf("no assistant text in %s", path)
	}

	fmt.Println(a.orch.Summarize(ctx, texts))
	return nil
}
