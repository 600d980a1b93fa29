package main

import (
	"fmt"
	"os"
	"time"

	"github.com/daikw/ccvoice/internal/config"
	"github.com/daikw/ccvoice/internal/cost"
	"github.com/daikw/ccvoice/internal/credentials"
	"github.com/daikw/ccvoice/internal/fallback"
	"github.com/daikw/ccvoice/internal/notify"
	"github.com/daikw/ccvoice/internal/provider"
	"github.com/daikw/ccvoice/internal/transcript"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

const dedupMaxAge = 24 * time.Hour

// app holds everything one invocation needs.
type app struct {
	cfg     *config.Config
	cfgPath string
	store   *credentials.Store
	factory *provider.Factory
	tracker *cost.Tracker
	engine  *fallback.Engine
	orch    *notify.Orchestrator
}

// loadConfig resolves the config from --config, the project, the home
// directory or the defaults, and validates it.
func loadConfig(c *cli.Command) (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	cfg, path, err := config.NewLoader(cwd).Load(c.String("config"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	if err := provider.ValidateConfig(cfg); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", displayPath(path), err)
	}
	return cfg, path, nil
}

func newApp(c *cli.Command) (*app, error) {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, cfgPath: path, store: credentials.NewStore("")}
	a.factory = provider.NewFactory(a.store.Resolve)

	var opts []fallback.Option
	if cfg.LLM.CostControl.UsageTracking {
		a.tracker = newTracker(cfg)
		opts = append(opts, fallback.WithBudget(a.tracker), fallback.WithUsageRecorder(a.tracker))
	}
	a.engine = fallback.New(a.factory, opts...)

	var extra []notify.Option
	if cfg.Advanced.Dedup {
		dedup := notify.NewDedup()
		dedup.Cleanup(dedupMaxAge)
		extra = append(extra, notify.WithDedup(dedup))
	}
	a.orch = notify.New(cfg, a.engine, transcript.NewReader(), orchestratorOptions(c), extra...)
	return a, nil
}

// orchestratorOptions maps the root flags. Rate and volume only apply when
// given so configured per-provider values are not overridden by defaults.
func orchestratorOptions(c *cli.Command) notify.Options {
	opts := notify.Options{
		Provider:  c.String("provider"),
		Model:     c.String("model"),
		Timeout:   time.Duration(c.Int("timeout")) * time.Second,
		TTS:       c.String("tts"),
		Voice:     c.String("tts-voice"),
		MaxLength: int(c.Int("max-length")),
	}
	if c.IsSet("rate") {
		opts.Rate = int(c.Int("rate"))
	}
	if c.IsSet("volume") {
		v := int(c.Int("volume"))
		opts.Volume = &v
	}
	return opts
}

func newTracker(cfg *config.Config) *cost.Tracker {
	cc := cfg.LLM.CostControl
	path := cc.UsageFile
	if path == "" {
		path = config.DefaultUsageFile
	}
	return cost.NewTracker(path, cc.DailyLimitUSD)
}

func displayPath(path string) string {
	if path == "" {
		return "(built-in defaults)"
	}
	return path
}

// applyLogLevel uses logging.level unless --verbose was given.
func applyLogLevel(c *cli.Command, cfg *config.Config) {
	if c.Bool("verbose") {
		return
	}
	setLevel(cfg.Logging.Level)
	log.Debug().Str("level", cfg.Logging.Level).Msg("Applied configured log level")
}
