// Package cost keeps the daily LLM usage ledger and enforces the daily
// budget.
package cost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daikw/ccvoice/internal/errdefs"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// Usage is one successful generation.
type Usage struct {
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

type ModelUsage struct {
	Calls   int        `json:"calls"`
	CostUSD float64    `json:"cost_usd"`
	Tokens  TokenUsage `json:"tokens"`
}

// Ledger is the on-disk usage for one local day.
type Ledger struct {
	Date    string                `json:"date"`
	CostUSD float64               `json:"cost_usd"`
	Calls   int                   `json:"calls"`
	Tokens  TokenUsage            `json:"tokens"`
	Models  map[string]ModelUsage `json:"models"`
}

const (
	dateLayout = "2006-01-02"
	lockRetry  = 10 * time.Millisecond
	lockWait   = 2 * time.Second
)

// Tracker reads and updates the ledger file. Writers serialize on a
// sidecar lock file so concurrent hook processes do not lose updates.
type Tracker struct {
	path       string
	dailyLimit float64
	now        func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. A dailyLimit of 0 disables the budget.
func NewTracker(path string, dailyLimit float64, opts ...Option) *Tracker {
	t := &Tracker{
		path:       expandHome(path),
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the ledger location.
func (t *Tracker) Path() string { return t.path }

func (t *Tracker) today() string {
	return t.now().Format(dateLayout)
}

func (t *Tracker) empty() *Ledger {
	return &Ledger{Date: t.today(), Models: map[string]ModelUsage{}}
}

// Summary returns today's ledger. A ledger from an earlier day reads as
// empty.
func (t *Tracker) Summary() (*Ledger, error) {
	ledger, err := t.load()
	if err != nil {
		return nil, err
	}
	if ledger.Date != t.today() {
		return t.empty(), nil
	}
	return ledger, nil
}

// CheckBudget returns a BudgetExceededError once today's spend reaches the
// limit.
func (t *Tracker) CheckBudget(ctx context.Context) error {
	if t.dailyLimit <= 0 {
		return nil
	}
	ledger, err := t.Summary()
	if err != nil {
		return fmt.Errorf("failed to check budget: %w", err)
	}
	if ledger.CostUSD >= t.dailyLimit {
		return &errdefs.BudgetExceededError{Spent: ledger.CostUSD, Limit: t.dailyLimit}
	}
	return nil
}

// Record adds u to today's ledger.
func (t *Tracker) Record(ctx context.Context, u Usage) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return fmt.Errorf("failed to create usage directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	fileLock := flock.New(t.path + ".lock")
	locked, err := fileLock.TryLockContext(lockCtx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to lock usage file: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock usage file: timed out")
	}
	defer func() {
		_ = fileLock.Unlock()
	}()

	ledger, err := t.Summary()
	if err != nil {
		return err
	}

	tokens := TokenUsage{
		Input:  u.InputTokens,
		Output: u.OutputTokens,
		Total:  u.InputTokens + u.OutputTokens,
	}

	ledger.Calls++
	ledger.CostUSD += u.CostUSD
	ledger.Tokens = addTokens(ledger.Tokens, tokens)

	model := ledger.Models[u.Model]
	model.Calls++
	model.CostUSD += u.CostUSD
	model.Tokens = addTokens(model.Tokens, tokens)
	ledger.Models[u.Model] = model

	if err := t.save(ledger); err != nil {
		return err
	}

	log.Debug().
		Str("model", u.Model).
		Float64("cost_usd", u.CostUSD).
		Int("tokens", tokens.Total).
		Msg("Recorded usage")
	return nil
}

func addTokens(a, b TokenUsage) TokenUsage {
	return TokenUsage{Input: a.Input + b.Input, Output: a.Output + b.Output, Total: a.Total + b.Total}
}

func (t *Tracker) load() (*Ledger, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return t.empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usage file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return t.empty(), nil
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to parse usage file: %w", err)
	}
	if ledger.Models == nil {
		ledger.Models = map[string]ModelUsage{}
	}
	return &ledger, nil
}

// save writes through a temp file so a failed write leaves the previous
// ledger intact.
func (t *Tracker) save(ledger *Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize usage data: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write usage file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write usage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write usage file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write usage file: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
