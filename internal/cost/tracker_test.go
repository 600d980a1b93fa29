package cost

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(day string) func() time.Time {
	ts, _ := time.ParseInLocation(dateLayout, day, time.Local)
	return func() time.Time { return ts.Add(10 * time.Hour) }
}

func TestTracker_RecordAndSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	tracker := NewTracker(path, 0.10, WithClock(fixedClock("2026-10-18")))
	ctx := context.Background()

	require.NoError(t, tracker.Record(ctx, Usage{Provider: "google", Model: "gemini-2.5-flash", InputTokens: 100, OutputTokens: 20, CostUSD: 0.01}))
	require.NoError(t, tracker.Record(ctx, Usage{Provider: "google", Model: "gemini-2.5-flash", InputTokens: 50, OutputTokens: 10, CostUSD: 0.02}))
	require.NoError(t, tracker.Record(ctx, Usage{Provider: "ollama", Model: "llama3.2", InputTokens: 10, OutputTokens: 5}))

	ledger, err := tracker.Summary()
	require.NoError(t, err)

	assert.Equal(t, "2026-10-18", ledger.Date)
	assert.Equal(t, 3, ledger.Calls)
	assert.InDelta(t, 0.03, ledger.CostUSD, 1e-9)
	assert.Equal(t, TokenUsage{Input: 160, Output: 35, Total: 195}, ledger.Tokens)
	assert.Equal(t, 2, ledger.Models["gemini-2.5-flash"].Calls)
	assert.Equal(t, TokenUsage{Input: 10, Output: 5, Total: 15}, ledger.Models["llama3.2"].Tokens)

	// The on-disk shape uses snake_case keys.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "cost_usd")
	assert.Contains(t, doc, "models")
}

func TestTracker_CheckBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("under limit", func(t *testing.T) {
		tracker := NewTracker(filepath.Join(t.TempDir(), "usage.json"), 0.10)
		require.NoError(t, tracker.Record(ctx, Usage{Model: "m", CostUSD: 0.05}))
		assert.NoError(t, tracker.CheckBudget(ctx))
	})

	t.Run("limit reached", func(t *testing.T) {
		tracker := NewTracker(filepath.Join(t.TempDir(), "usage.json"), 0.10)
		require.NoError(t, tracker.Record(ctx, Usage{Model: "m", CostUSD: 0.10}))

		err := tracker.CheckBudget(ctx)
		var budgetErr *errdefs.BudgetExceededError
		require.ErrorAs(t, err, &budgetErr)
		assert.InDelta(t, 0.10, budgetErr.Spent, 1e-9)
		assert.InDelta(t, 0.10, budgetErr.Limit, 1e-9)
	})

	t.Run("zero limit is unlimited", func(t *testing.T) {
		tracker := NewTracker(filepath.Join(t.TempDir(), "usage.json"), 0)
		require.NoError(t, tracker.Record(ctx, Usage{Model: "m", CostUSD: 50}))
		assert.NoError(t, tracker.CheckBudget(ctx))
	})
}

func TestTracker_ResetsOnNewDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	ctx := context.Background()

	yesterday := NewTracker(path, 0.10, WithClock(fixedClock("2026-10-17")))
	require.NoError(t, yesterday.Record(ctx, Usage{Model: "m", CostUSD: 0.5}))
	assert.Error(t, yesterday.CheckBudget(ctx))

	today := NewTracker(path, 0.10, WithClock(fixedClock("2026-10-18")))
	assert.NoError(t, today.CheckBudget(ctx))

	require.NoError(t, today.Record(ctx, Usage{Model: "m", CostUSD: 0.01}))
	ledger, err := today.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Calls)
	assert.InDelta(t, 0.01, ledger.CostUSD, 1e-9)
}

func TestTracker_EmptyAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	emptyPath := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(emptyPath, []byte("  \n"), 0o600))
	ledger, err := NewTracker(emptyPath, 0.1).Summary()
	require.NoError(t, err)
	assert.Zero(t, ledger.Calls)

	corruptPath := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("{oops"), 0o600))
	tracker := NewTracker(corruptPath, 0.1)
	assert.ErrorContains(t, tracker.CheckBudget(context.Background()), "failed to parse usage file")

	// A failed record leaves the previous file untouched.
	assert.Error(t, tracker.Record(context.Background(), Usage{Model: "m", CostUSD: 1}))
	raw, err := os.ReadFile(corruptPath)
	require.NoError(t, err)
	assert.Equal(t, "{oops", string(raw))
}

func TestTracker_ConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker := NewTracker(path, 0)
			assert.NoError(t, tracker.Record(ctx, Usage{Model: "m", InputTokens: 1, CostUSD: 0.001}))
		}()
	}
	wg.Wait()

	ledger, err := NewTracker(path, 0).Summary()
	require.NoError(t, err)
	assert.Equal(t, 8, ledger.Calls)
	assert.Equal(t, 8, ledger.Tokens.Input)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".claude", "ccvoice-usage.json"), NewTracker("~/.claude/ccvoice-usage.json", 0).Path())
}
