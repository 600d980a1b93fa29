package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// runRoot parses args with the root flags and calls fn with the command.
func runRoot(t *testing.T, args []string, fn func(c *cli.Command) error) error {
	t.Helper()
	cmd := &cli.Command{
		Name:  "ccvoice",
		Flags: rootFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			return fn(c)
		},
	}
	return cmd.Run(context.Background(), append([]string{"ccvoice"}, args...))
}

func TestOrchestratorOptions(t *testing.T) {
	t.Run("defaults leave rate and volume to config", func(t *testing.T) {
		var opts notify.Options
		err := runRoot(t, nil, func(c *cli.Command) error {
			opts = orchestratorOptions(c)
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, "auto", opts.TTS)
		assert.Equal(t, 10*time.Second, opts.Timeout)
		assert.Zero(t, opts.Rate)
		assert.Nil(t, opts.Volume)
		assert.Zero(t, opts.MaxLength)
	})

	t.Run("flags", func(t *testing.T) {
		var opts notify.Options
		err := runRoot(t, []string{
			"--provider", "anthropic", "--model", "claude-haiku-4-5", "--timeout", "5",
			"--tts", "macos", "--tts-voice", "Samantha", "--rate", "180", "--volume", "40",
			"--max-length", "80",
		}, func(c *cli.Command) error {
			opts = orchestratorOptions(c)
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, "anthropic", opts.Provider)
		assert.Equal(t, "claude-haiku-4-5", opts.Model)
		assert.Equal(t, 5*time.Second, opts.Timeout)
		assert.Equal(t, "macos", opts.TTS)
		assert.Equal(t, "Samantha", opts.Voice)
		assert.Equal(t, 180, opts.Rate)
		require.NotNil(t, opts.Volume)
		assert.Equal(t, 40, *opts.Volume)
		assert.Equal(t, 80, opts.MaxLength)
	})
}

func TestHookInput(t *testing.T) {
	payload := `{"type":"agent-turn-complete","thread-id":"t"}`
	var got string
	err := runRoot(t, []string{payload}, func(c *cli.Command) error {
		b, err := io.ReadAll(hookInput(c))
		got = string(b)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit file", func(t *testing.T) {
		cfg := config.Default()
		cfg.Summarization.MaxLength = 120
		path := filepath.Join(dir, "custom.json")
		require.NoError(t, config.Save(cfg, path))

		var loaded *config.Config
		var loadedPath string
		err := runRoot(t, []string{"--config", path}, func(c *cli.Command) error {
			var err error
			loaded, loadedPath, err = loadConfig(c)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, path, loadedPath)
		assert.Equal(t, 120, loaded.Summarization.MaxLength)
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		cfg := config.Default()
		cfg.TTS.Providers = []config.ProviderConfig{{Name: "espeak"}}
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, config.Save(cfg, path))

		err := runRoot(t, []string{"--config", path}, func(c *cli.Command) error {
			_, _, err := loadConfig(c)
			return err
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		err := runRoot(t, []string{"--config", filepath.Join(dir, "nope.json")}, func(c *cli.Command) error {
			_, _, err := loadConfig(c)
			return err
		})
		require.Error(t, err)
	})
}

func TestHandleInit_DoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccvoice.json")

	cmd := &cli.Command{
		Name:     "ccvoice",
		Flags:    rootFlags(),
		Commands: []*cli.Command{{Name: "init", Action: handleInit}},
	}
	require.NoError(t, cmd.Run(context.Background(), []string{"ccvoice", "--config", path, "init"}))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().LLM.Providers, cfg.LLM.Providers)

	require.NoError(t, os.WriteFile(path, []byte(`{"enabled": false}`), 0o600))
	require.NoError(t, cmd.Run(context.Background(), []string{"ccvoice", "--config", path, "init"}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"enabled": false}`, string(b))
}

func TestCredentialArg(t *testing.T) {
	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{"google", "google", false},
		{"OpenAI", "openai", false},
		{"google_tts", "google_tts", false},
		{"", "", true},
		{"elevenlabs", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			var args []string
			if tt.arg != "" {
				args = []string{tt.arg}
			}
			var got string
			err := runRoot(t, args, func(c *cli.Command) error {
				var err error
				got, err = credentialArg(c)
				return err
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.WarnLevel,
		"":        zerolog.WarnLevel,
	}
	for in, want := range tests {
		setLevel(in)
		assert.Equal(t, want, zerolog.GlobalLevel(), in)
	}
}
