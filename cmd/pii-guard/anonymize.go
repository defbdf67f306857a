package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
	"github.com/RoyNativ-AI/pii-guard/internal/report"
)

func anonymizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "anonymize",
		Usage:     "Anonymize text given as arguments or on stdin",
		ArgsUsage: "[text...]",
		Flags:     reportFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text, fromArgs, err := readInput(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, rep, err := a.protector.AnonymizeWithReport(ctx, text)
			if err != nil {
				return err
			}

			w := stdout(cmd)
			fmt.Fprint(w, out)
			if fromArgs {
				fmt.Fprintln(w)
			}

			doc := report.FromReports("pii-guard", []string{"input"}, []*privacy.Report{rep},
				report.Options{IncludeOriginals: cmd.Bool("include-originals")})
			return writeReport(cmd, doc)
		},
	}
}

func readInput(cmd *cli.Command) (string, bool, error) {
	if cmd.Args().Len() > 0 && cmd.Args().First() != "-" {
		return strings.Join(cmd.Args().Slice(), " "), true, nil
	}
	var r io.Reader = os.Stdin
	if cmd.Root().Reader != nil {
		r = cmd.Root().Reader
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", false, fmt.Errorf("read stdin: %w", err)
	}
	return string(data), false, nil
}
