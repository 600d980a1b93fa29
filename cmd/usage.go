package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func handleUsage(ctx context.Context, c *cli.Command) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	cc := cfg.LLM.CostControl
	if !cc.UsageTracking {
		color.Yellow("⚠️  Usage tracking is disabled (llm.cost_control.usage_tracking)")
		return nil
	}
	tracker := newTracker(cfg)
	ledger, err := tracker.Summary()
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	fmt.Printf("📅 %s\n", ledger.Date)
	fmt.Printf("💰 Cost: $%.4f", ledger.CostUSD)
	if cc.DailyLimitUSD > 0 {
		remaining := cc.DailyLimitUSD - ledger.CostUSD
		printer := color.GreenString
		if remaining <= 0 {
			printer = color.RedString
		}
		fmt.Printf(" of $%.2f %s", cc.DailyLimitUSD, printer("($%.4f left)", max(remaining, 0)))
	}
	fmt.Println()
	fmt.Printf("📞 Calls: %d\n", ledger.Calls)
	fmt.Printf("🔢 Tokens: %d in, %d out\n", ledger.Tokens.Input, ledger.Tokens.Output)

	if len(ledger.Models) == 0 {
		return nil
	}
	models := make([]string, 0, len(ledger.Models))
	for m := range ledger.Models {
		models = append(models, m)
	}
	sort.Strings(models)

	fmt.Println()
	for _, m := range models {
		u := ledger.Models[m]
		fmt.Printf("  %-30s %3d calls  $%.4f\n", m, u.Calls, u.CostUSD)
	}
	fmt.Println()
	fmt.Println(color.HiBlackString(tracker.Path()))
	return nil
}
