package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"
)

func patternsCmd() *cli.Command {
	return &cli.Command{
		Name:  "patterns",
		Usage: "List detection rules",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print rules as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rules := a.protector.Rules()
			w := stdout(cmd)

			if cmd.Bool("json") {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(rules)
			}

			fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%-16s %-10s %-8s %s", "TYPE", "PRECEDENCE", "STATUS", "PATTERN")))
			for _, r := range rules {
				status := okStyle.Render(fmt.Sprintf("%-8s", "enabled"))
				if !r.Enabled {
					status = mutedStyle.Render(fmt.Sprintf("%-8s", "disabled"))
				}
				fmt.Fprintf(w, "%-16s %-10d %s %s\n", r.Type, r.Precedence, status, mutedStyle.Render(r.Pattern))
			}
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("guard: %s, locale: %s", a.protector.GuardName(), a.protector.Locale())))
			return nil
		},
	}
}
