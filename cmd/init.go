package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func handleInit(ctx context.Context, c *cli.Command) error {
	path := c.String("config")
	switch {
	case path != "":
	case c.Bool("project"):
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, ".claude", "ccvoice.json")
	default:
		cwd, _ := os.Getwd()
		path = config.NewLoader(cwd).GlobalPath()
	}

	if _, err := os.Stat(path); err == nil {
		color.Yellow("⚠️  Config already exists: %s", path)
		fmt.Println("   Edit it directly or remove it first.")
		return nil
	}

	if err := config.Save(config.Default(), path); err != nil {
		return err
	}

	color.Green("✅ Created %s", path)
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Println("  - 'ccvoice credentials set google' to store a Gemini API key")
	fmt.Println("  - 'ccvoice status' to check which providers are ready")
	showHookInstructions()
	return nil
}

func showHookInstructions() {
	fmt.Println("")
	fmt.Println("📌 Add the hooks to ~/.claude/settings.json:")
	fmt.Println("")
	fmt.Println(`   {
     "hooks": {
       "Stop": [{"hooks": [{"type": "command", "command": "ccvoice"}]}],
       "Notification": [{"hooks": [{"type": "command", "command": "ccvoice"}]}]
     }
   }`)
	fmt.Println("")
	fmt.Println("📌 For Codex, add to ~/.codex/config.toml:")
	fmt.Println("")
	fmt.Println(`   notify = ["ccvoice"]`)
	fmt.Println("")
}
