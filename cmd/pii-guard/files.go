package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/RoyNativ-AI/pii-guard/internal/etl"
	"github.com/RoyNativ-AI/pii-guard/internal/report"
)

func pipelineFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringSliceFlag{
			Name:  "fields",
			Usage: "Columns or keys to anonymize in structured files (default: all strings)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent anonymization workers",
		},
	}, reportFlags()...)
}

func newPipeline(cmd *cli.Command, a *app) *etl.Pipeline {
	batch := a.cfg.Batch
	if v := cmd.StringSlice("fields"); len(v) > 0 {
		batch.Fields = v
	}
	if v := cmd.Int("workers"); v > 0 {
		batch.Workers = v
	}
	return etl.NewPipeline(a.protector, batch, a.log.WithComponent("etl").Logger)
}

func fileCmd() *cli.Command {
	return &cli.Command{
		Name:      "file",
		Usage:     "Anonymize a text, CSV, JSON, JSONL or Parquet file",
		ArgsUsage: "<input>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path (default: <name>.anonymized<ext>)",
			},
		}, pipelineFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			input := cmd.Args().First()
			if input == "" {
				return fmt.Errorf("an input file is required")
			}
			output := cmd.String("output")
			if output == "" {
				output = etl.OutputPath(input)
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := newPipeline(cmd, a).ProcessFile(ctx, input, output)
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout(cmd), "%s %s %s %s\n",
				okStyle.Render("✓"), input, mutedStyle.Render("→"), output)
			fmt.Fprintln(stdout(cmd), mutedStyle.Render(fmt.Sprintf("  %s: %d records, %d values, %d findings in %s",
				res.Format, res.TotalRecords, res.Values, res.Findings, res.Duration.Round(time.Millisecond))))
			if res.ProcessedFailed > 0 {
				fmt.Fprintln(stdout(cmd), warnStyle.Render(fmt.Sprintf("  %d records dropped", res.ProcessedFailed)))
			}

			return writeReport(cmd, report.FromFile(res))
		},
	}
}

func dirCmd() *cli.Command {
	return &cli.Command{
		Name:      "dir",
		Usage:     "Anonymize every supported file under a directory",
		ArgsUsage: "<input-dir> [output-dir]",
		Flags:     pipelineFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			input := cmd.Args().Get(0)
			if input == "" {
				return fmt.Errorf("an input directory is required")
			}
			output := cmd.Args().Get(1)
			if output == "" {
				output = strings.TrimRight(filepath.Clean(input), string(filepath.Separator)) + "-anonymized"
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := newPipeline(cmd, a).ProcessDirectory(ctx, input, output)
			if err != nil {
				return err
			}

			w := stdout(cmd)
			fmt.Fprintf(w, "%s %d files %s %s\n",
				okStyle.Render("✓"), len(res.Files), mutedStyle.Render("→"), output)
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  %d findings, %d skipped, %d failed in %s",
				res.Findings, len(res.Skipped), len(res.Failed), res.Duration.Round(time.Millisecond))))

			failed := make([]string, 0, len(res.Failed))
			for path := range res.Failed {
				failed = append(failed, path)
			}
			sort.Strings(failed)
			for _, path := range failed {
				fmt.Fprintf(w, "  %s %s: %s\n", errorStyle.Render("✗"), path, res.Failed[path])
			}

			if err := writeReport(cmd, report.FromDirectory(res)); err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d files failed", len(failed), len(failed)+len(res.Files))
			}
			return nil
		},
	}
}
