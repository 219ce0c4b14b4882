package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/valens-carpentier/demeter-sub000/internal/config"
	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/logging"
	"github.com/valens-carpentier/demeter-sub000/internal/metrics"
	"github.com/valens-carpentier/demeter-sub000/pkg/version"
)

const (
	metaConfig = "config"
	metaLogger = "logger"
)

func main() {
	_ = godotenv.Load() // Load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "demeter",
		Usage:   "farm-token smart account client",
		Version: version.FullVersionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a config file (yaml, json or toml)",
				EnvVars: []string{"DEMETER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "serve Prometheus metrics on this address while the command runs",
				EnvVars: []string{"DEMETER_METRICS_ADDR"},
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			farmsCommand,
			holdingsCommand,
			historyCommand,
			sessionCommand,
			activateCommand,
			buyCommand,
			sellCommand,
			credentialsCommand,
			pendingCommand,
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "[Error] %s\n        %v\n", domain.UserMessage(err), err)
		stop()
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	c.App.Metadata = map[string]interface{}{metaConfig: cfg, metaLogger: logger}

	if cfg.Metrics.Addr != "" {
		serveMetrics(c.Context, cfg.Metrics.Addr, logger)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[metaConfig].(*config.Config)
}

func loggerFrom(c *cli.Context) *slog.Logger {
	return c.App.Metadata[metaLogger].(*slog.Logger)
}

// withRuntime builds the full stack, runs fn and releases connections.
func withRuntime(fn func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c.Context, configFrom(c), loggerFrom(c))
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(c, rt)
	}
}
