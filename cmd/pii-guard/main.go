package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:    "pii-guard",
		Usage:   "Find PII in text and replace it with consistent, realistic fakes",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Sources: cli.EnvVars("PII_GUARD_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "locale",
				Usage: "Replacement locale (en_US, en_GB, de_DE, fr_FR, he_IL)",
			},
			&cli.StringFlag{
				Name:  "guard",
				Usage: "Unstructured PII guard: regex, openai, bedrock, llama, presidio",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Seed for reproducible replacements",
			},
			&cli.StringSliceFlag{
				Name:  "detectors",
				Usage: "Enabled detectors. Example: --detectors=email,phone",
			},
			&cli.BoolFlag{
				Name:  "no-consistency",
				Usage: "Generate a fresh replacement for every occurrence",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Mapping store backend: memory, redis, bolt",
			},
		},
		Commands: []*cli.Command{
			anonymizeCmd(),
			fileCmd(),
			dirCmd(),
			serveCmd(),
			patternsCmd(),
			healthCmd(),
		},
	}
}
