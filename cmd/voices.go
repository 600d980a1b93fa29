package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/provider"
	"github.com/daikw/ccvoice/internal/tts"
	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

// handleVoices lists voices for --tts, or the first configured TTS provider.
func handleVoices(ctx context.Context, c *cli.Command) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}

	chain := a.orch.TTSChain("")
	if len(chain.Entries) == 0 {
		return fmt.Errorf("no TTS providers configured")
	}
	entry := chain.Entries[0]

	p, err := a.factory.CreateTTS(entry)
	if err != nil {
		return err
	}
	defer closeProvider(p)

	lister, ok := p.(tts.VoiceLister)
	if !ok {
		return fmt.Errorf("%s cannot list voices", p.Name())
	}
	voices, err := lister.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s voices: %w", p.Name(), err)
	}

	fmt.Printf("🎤 Voices for %s:\n\n", describeTTS(entry))
	for _, v := range voices {
		var details []string
		for _, d := range []string{v.Language, v.Gender, v.Description} {
			if d != "" {
				details = append(details, d)
			}
		}
		line := "  " + color.CyanString(v.ID)
		if v.Name != "" && v.Name != v.ID {
			line += " - " + v.Name
		}
		if len(details) > 0 {
			line += color.HiBlackString(" (%s)", strings.Join(details, ", "))
		}
		fmt.Println(line)
	}
	return nil
}

func describeTTS(entry config.ProviderConfig) string {
	return provider.Describe(provider.RoleTTS, entry)
}

// closeProvider releases SDK clients held by a provider.
func closeProvider(p any) {
	if closer, ok := p.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
