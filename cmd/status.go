package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/credentials"
	"github.com/daikw/ccvoice/internal/fallback"
	"github.com/daikw/ccvoice/internal/provider"
	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func handleStatus(ctx context.Context, c *cli.Command) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}

	fmt.Printf("📄 Config: %s\n", displayPath(a.cfgPath))
	if !a.cfg.Enabled {
		color.Yellow("⚠️  ccvoice is disabled (enabled: false)")
	}
	fmt.Printf("🔑 Credentials: %s\n", a.store.Path())

	issues := 0
	fmt.Println("")
	fmt.Println("🧠 LLM chain:")
	issues += printChain(a, a.orch.LLMChain())

	fmt.Println("")
	fmt.Println("🔊 TTS chain:")
	issues += printChain(a, a.orch.TTSChain(""))

	hooks := a.cfg.Hooks.ClaudeCode
	fmt.Println("")
	fmt.Printf("🔔 Notifications: %s\n", notificationSummary(hooks.NotificationFilter))
	if hooks.NotificationTTSProvider != "" {
		fmt.Printf("   notification TTS: %s\n", hooks.NotificationTTSProvider)
	}
	if hooks.StopTTSProvider != "" {
		fmt.Printf("   stop TTS: %s\n", hooks.StopTTSProvider)
	}

	if a.tracker != nil {
		if ledger, err := a.tracker.Summary(); err == nil {
			limit := "unlimited"
			if a.cfg.LLM.CostControl.DailyLimitUSD > 0 {
				limit = fmt.Sprintf("$%.2f", a.cfg.LLM.CostControl.DailyLimitUSD)
			}
			fmt.Printf("💰 Today: $%.4f of %s\n", ledger.CostUSD, limit)
		}
	}

	fmt.Println("")
	if issues == 0 {
		color.Green("✅ Every provider is ready")
	} else {
		color.Yellow("⚠️  %d provider(s) will be skipped", issues)
	}
	return nil
}

// printChain prints one line per entry and returns how many would be
// skipped.
func printChain(a *app, chain fallback.Chain) int {
	if len(chain.Entries) == 0 {
		fmt.Println("   (none)")
		return 0
	}
	if chain.Explicit {
		fmt.Println(color.HiBlackString("   (overridden by flags, no fallback)"))
	}

	skipped := 0
	for i, entry := range chain.Entries {
		ready, detail := checkEntry(a, chain.Role, entry)
		mark := color.GreenString("✓")
		if !ready {
			mark = color.RedString("✗")
			skipped++
		}
		fmt.Printf("   %d. %s %s %s\n", i+1, mark, provider.Describe(chain.Role, entry), color.HiBlackString(detail))
	}
	return skipped
}

func checkEntry(a *app, role provider.Role, entry config.ProviderConfig) (bool, string) {
	canonical, err := provider.Canonical(role, entry.Name)
	if err != nil {
		return false, err.Error()
	}

	var configured bool
	if role == provider.RoleLLM {
		p, err := a.factory.CreateLLM(entry)
		if err != nil {
			return false, err.Error()
		}
		configured = p.IsConfigured()
	} else {
		p, err := a.factory.CreateTTS(entry)
		if err != nil {
			return false, err.Error()
		}
		defer closeProvider(p)
		configured = p.IsConfigured()
	}
	if !configured {
		return false, "not configured"
	}
	return true, credentialSource(a.store, role, canonical, entry)
}

func credentialSource(store *credentials.Store, role provider.Role, canonical string, entry config.ProviderConfig) string {
	name := provider.CredentialName(role, canonical)
	if len(credentials.EnvVars(name)) == 0 {
		return ""
	}
	switch store.Source(name) {
	case "env":
		return "key from env"
	case "file":
		return "key from credentials file"
	}
	if entry.APIKey != "" && !config.IsPlaceholder(entry.APIKey) {
		return "key from config"
	}
	return ""
}

func notificationSummary(filter []string) string {
	if len(filter) == 0 {
		return "off"
	}
	return strings.Join(filter, ", ")
}
