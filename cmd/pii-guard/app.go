package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/cache"
	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/guard"
	"github.com/RoyNativ-AI/pii-guard/internal/logger"
	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
	"github.com/RoyNativ-AI/pii-guard/internal/report"
)

// app holds the configured engine shared by every command.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	protector *privacy.Protector
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if v := cmd.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := cmd.String("locale"); v != "" {
		cfg.Privacy.Locale = v
	}
	if v := cmd.String("guard"); v != "" {
		cfg.Guard.Provider = v
	}
	if cmd.IsSet("seed") {
		seed := cmd.Int64("seed")
		cfg.Privacy.Seed = &seed
	}
	if v := cmd.StringSlice("detectors"); len(v) > 0 {
		cfg.Privacy.Detectors = v
	}
	if cmd.Bool("no-consistency") {
		cfg.Privacy.ConsistentReplacements = false
	}
	if v := cmd.String("cache"); v != "" {
		cfg.Cache.Backend = v
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	lc := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if cfg.Logging.File.Enabled {
		lc.File = &logger.FileConfig{Enabled: true, Path: cfg.Logging.File.Path}
	}
	log, err := logger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return log, nil
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	g, err := guard.New(cfg.Guard, log)
	if err != nil {
		return nil, err
	}
	store, err := cache.NewStore(cfg.Cache, log.WithComponent("cache"))
	if err != nil {
		return nil, err
	}

	protector, err := privacy.New(cfg.Privacy, log,
		privacy.WithGuard(g, cfg.Guard.Timeout),
		privacy.WithStore(store),
		privacy.WithWorkers(cfg.Batch.Workers),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, protector: protector}, nil
}

func (a *app) Close() {
	if err := a.protector.Close(); err != nil {
		a.log.Warn("Failed to close protector", zap.Error(err))
	}
	a.log.Sync()
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// reportFlags are shared by the commands that can emit a report.
func reportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "report",
			Usage: "Emit a report: json, csv, html, text",
		},
		&cli.StringFlag{
			Name:  "report-out",
			Usage: "Write the report to this file instead of stderr",
		},
		&cli.BoolFlag{
			Name:  "include-originals",
			Usage: "Include original values in the report",
		},
	}
}

func writeReport(cmd *cli.Command, doc *report.Document) error {
	name := cmd.String("report")
	if name == "" {
		return nil
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		return err
	}
	r, err := report.New(format)
	if err != nil {
		return err
	}

	out := cmd.String("report-out")
	if out == "" {
		return r.Render(stderr(cmd), doc)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := r.Render(f, doc); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	return f.Close()
}
