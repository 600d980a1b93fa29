package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	version  = "dev"
	revision = "none"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	loadDotenv()

	app := &cli.Command{
		Name:  "ccvoice",
		Usage: "Speak AI coding assistant session events",
		Description: `ccvoice reads a hook event from stdin, summarizes the session with an LLM
and speaks the summary. LLM and TTS providers are tried in the configured
order until one succeeds.`,
		Version: fmt.Sprintf("%s (rev: %s)", version, revision),
		Flags:   rootFlags(),
		Action:  handleHook,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration",
				Action: handleInit,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "project",
						Usage: "Write .claude/ccvoice.json in the current directory instead of ~/.claude",
					},
				},
			},
			{
				Name:  "credentials",
				Usage: "Manage stored API keys",
				Commands: []*cli.Command{
					{
						Name:      "set",
						Usage:     "Store an API key",
						ArgsUsage: "<provider>",
						Action:    handleCredentialsSet,
					},
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "Show which keys are available and where they come from",
						Action:  handleCredentialsList,
					},
					{
						Name:      "test",
						Usage:     "Run a tiny request against an LLM provider",
						ArgsUsage: "<provider>",
						Action:    handleCredentialsTest,
					},
					{
						Name:      "remove",
						Aliases:   []string{"rm"},
						Usage:     "Delete a stored API key",
						ArgsUsage: "<provider>",
						Action:    handleCredentialsRemove,
					},
				},
			},
			{
				Name:      "say",
				Usage:     "Speak text through the TTS chain",
				ArgsUsage: "<text...>",
				Action:    handleSay,
			},
			{
				Name:   "summarize",
				Usage:  "Print the summary of a transcript without speaking",
				Action: handleSummarize,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "transcript",
						Usage: "Transcript file (default: latest under ~/.claude/projects)",
					},
					&cli.IntFlag{
						Name:  "turns",
						Usage: "Number of turns to summarize (0 = use config)",
					},
				},
			},
			{
				Name:   "voices",
				Usage:  "List the voices of a TTS provider",
				Action: handleVoices,
			},
			{
				Name:   "usage",
				Usage:  "Show today's LLM usage",
				Action: handleUsage,
			},
			{
				Name:   "status",
				Usage:  "Show configuration and provider availability",
				Action: handleStatus,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose logging",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file path (.json, .yaml or .yml)",
		},
		&cli.StringFlag{
			Name:  "provider",
			Usage: "Use only this LLM provider: google, anthropic, openai, ollama",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "LLM model for --provider",
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "LLM timeout in seconds for --provider",
			Value: 10,
		},
		&cli.StringFlag{
			Name:  "tts",
			Usage: "TTS provider: auto, macos, google, openai, polly, gcp",
			Value: "auto",
		},
		&cli.StringFlag{
			Name:  "tts-voice",
			Usage: "Voice for --tts",
		},
		&cli.IntFlag{
			Name:  "rate",
			Usage: "Speaking rate in words per minute",
			Value: 200,
		},
		&cli.IntFlag{
			Name:  "volume",
			Usage: "Volume 0-100 (ignored by macos)",
		},
		&cli.IntFlag{
			Name:  "max-length",
			Usage: "Maximum summary length in characters (0 = use config)",
		},
	}
}

// loadDotenv loads ~/.config/ccvoice/.env. Variables already set win.
func loadDotenv() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".config", "ccvoice", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load .env")
	}
}
