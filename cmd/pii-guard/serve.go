package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/RoyNativ-AI/pii-guard/internal/audit"
	"github.com/RoyNativ-AI/pii-guard/internal/config"
	"github.com/RoyNativ-AI/pii-guard/internal/proxy"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the anonymization API and the anonymizing LLM proxy",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (default from config)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.IsSet("port") {
				a.cfg.Server.Port = cmd.Int("port")
			}

			var opts []proxy.Option
			if a.cfg.Audit.Enabled {
				store, err := audit.NewStore(a.cfg.Audit, a.log.WithComponent("audit").Logger)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, proxy.WithAudit(store))
			}

			server, err := proxy.New(a.cfg, a.protector, a.log, opts...)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watchConfig(cmd, a)

			a.log.Info("Starting pii-guard",
				zap.String("version", version),
				zap.String("commit", commit),
				zap.String("build_date", date),
				zap.Int("port", a.cfg.Server.Port),
			)

			serverErrors := make(chan error, 1)
			go func() {
				serverErrors <- server.Start(ctx)
			}()

			select {
			case err := <-serverErrors:
				return err
			case <-ctx.Done():
			}

			a.log.Info("Shutdown signal received")

			// Give outstanding requests 30 seconds to complete
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			a.log.Info("Server shutdown complete")
			return nil
		},
	}
}

// watchConfig applies custom patterns from config edits without a restart.
// Other settings need a restart.
func watchConfig(cmd *cli.Command, a *app) {
	path := cmd.String("config")
	err := config.Watch(path, func(cfg *config.Config) {
		for _, cp := range cfg.Privacy.CustomPatterns {
			if err := a.protector.AddPattern(cp.Type, cp.Pattern, cp.Precedence); err != nil {
				a.log.Warn("Ignoring invalid custom pattern", zap.String("type", cp.Type), zap.Error(err))
			}
		}
		a.log.Info("Configuration reloaded",
			zap.Int("custom_patterns", len(cfg.Privacy.CustomPatterns)),
		)
	}, func(err error) {
		a.log.Warn("Configuration reload failed", zap.Error(err))
	})
	if err != nil {
		a.log.Debug("Configuration hot reload disabled", zap.String("path", path), zap.Error(err))
	}
}

func healthCmd() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check a running server and exit non-zero when it is unhealthy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Health endpoint",
				Value: "http://localhost:8080/health",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, cmd.String("url"), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
			}
			fmt.Fprintln(stdout(cmd), okStyle.Render("Health check passed"))
			return nil
		},
	}
}

