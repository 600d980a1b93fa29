package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/credentials"
	"github.com/daikw/ccvoice/internal/llm"
	"github.com/daikw/ccvoice/internal/provider"
	"github.com/daikw/ccvoice/internal/tts"
	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

const credentialTestTimeout = 20 * time.Second

func credentialArg(c *cli.Command) (string, error) {
	name := strings.ToLower(strings.TrimSpace(c.Args().First()))
	if name == "" {
		return "", fmt.Errorf("provider name is required (one of: %s)", strings.Join(credentials.Names(), ", "))
	}
	if !slices.Contains(credentials.Names(), name) {
		return "", fmt.Errorf("unknown provider %q (one of: %s)", name, strings.Join(credentials.Names(), ", "))
	}
	return name, nil
}

func handleCredentialsSet(ctx context.Context, c *cli.Command) error {
	name, err := credentialArg(c)
	if err != nil {
		return err
	}

	key, err := readSecret(fmt.Sprintf("API key for %s: ", name))
	if err != nil {
		return err
	}

	store := credentials.NewStore("")
	if err := store.Set(name, key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	color.Green("✅ Stored %s key in %s", name, store.Path())
	if envs := credentials.EnvVars(name); store.Source(name) == "env" {
		color.Yellow("⚠️  %s is set in the environment and takes priority", strings.Join(envs, " or "))
	}
	return nil
}

// readSecret reads a line without echo when stdin is a terminal, and a plain
// line otherwise so keys can be piped in.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read API key from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func handleCredentialsList(ctx context.Context, c *cli.Command) error {
	store := credentials.NewStore("")
	fmt.Printf("📁 Credentials file: %s\n\n", store.Path())

	for _, name := range credentials.Names() {
		key, ok := store.Resolve(name)
		if !ok {
			fmt.Printf("  %-11s %s\n", name, color.HiBlackString("not set"))
			continue
		}
		source := store.Source(name)
		if source == "env" {
			source = "env: " + strings.Join(credentials.EnvVars(name), "|")
		}
		fmt.Printf("  %-11s %s %s\n", name, color.GreenString(credentials.Mask(key)), color.HiBlackString("(%s)", source))
	}
	return nil
}

func handleCredentialsRemove(ctx context.Context, c *cli.Command) error {
	name, err := credentialArg(c)
	if err != nil {
		return err
	}
	store := credentials.NewStore("")
	if err := store.Remove(name); err != nil {
		return fmt.Errorf("failed to remove API key: %w", err)
	}
	color.Green("✅ Removed %s key", name)
	return nil
}

// handleCredentialsTest runs one tiny generation, or speaks a short phrase
// for google_tts.
func handleCredentialsTest(ctx context.Context, c *cli.Command) error {
	name, err := credentialArg(c)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}

	store := credentials.NewStore("")
	factory := provider.NewFactory(store.Resolve)

	ctx, cancel := context.WithTimeout(ctx, credentialTestTimeout)
	defer cancel()

	start := time.Now()
	if name == provider.CredentialName(provider.RoleTTS, "google") {
		entry, ok := cfg.FindTTS("google")
		if !ok {
			entry = config.ProviderConfig{Name: "google"}
		}
		p, err := factory.CreateTTS(entry)
		if err != nil {
			return reportTestFailure(name, err)
		}
		if err := p.Speak(ctx, &tts.Request{Text: "ccvoice is ready"}); err != nil {
			return reportTestFailure(name, err)
		}
		color.Green("✅ %s works (%s)", name, time.Since(start).Round(time.Millisecond))
		return nil
	}

	entry, ok := cfg.FindLLM(name)
	if !ok {
		entry = config.ProviderConfig{Name: name}
	}
	p, err := factory.CreateLLM(entry)
	if err != nil {
		return reportTestFailure(name, err)
	}
	resp, err := p.Generate(ctx, &llm.Request{
		Prompt:          "Reply with the single word OK.",
		MaxTokens:       10,
		DisableThinking: true,
	})
	if err != nil {
		return reportTestFailure(name, err)
	}
	color.Green("✅ %s works (%s, %s): %s", name, resp.Model, time.Since(start).Round(time.Millisecond), strings.TrimSpace(resp.Text))
	return nil
}

func reportTestFailure(name string, err error) error {
	color.Red("❌ %s failed", name)
	return err
}
