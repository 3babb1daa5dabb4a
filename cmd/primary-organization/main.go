// cmd/primary-organization/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"primary-organization/internal/common/config"
	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/observability"
	pq "primary-organization/internal/workers/organization/populate-queue"
	spo "primary-organization/internal/workers/organization/set-primary-organization"
)

var (
	version = "dev"
	cli     struct {
		Queue   bool             `help:"Clear the new items and populate the work queue, then exit."`
		Config  string           `help:"Path to a config file." type:"path"`
		Version kong.VersionFlag `help:"Print the version and exit."`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx := kong.Parse(&cli,
		kong.Name("primary-organization"),
		kong.Description("Sets the citizen's primary organization in KMD Nexus."),
		kong.Vars{"version": version},
	)
	kctx.FatalIfErrorf(run(ctx, cli.Queue, cli.Config))
}

func run(ctx context.Context, populate bool, configPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting primary-organization",
		zap.String("version", version),
		zap.Bool("queue", populate),
		zap.String("queueBackend", cfg.Queue.Backend),
	)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	if cfg.Metrics.Address != "" {
		srv := startMetricsServer(cfg.Metrics.Address, log)
		defer shutdownMetricsServer(srv, log)
	}

	deps, err := buildDependencies(ctx, cfg, log, populate)
	if err != nil {
		return err
	}
	defer deps.Close()

	if populate {
		return runPopulate(ctx, cfg, deps, log)
	}
	return runProcess(ctx, cfg, deps, obs, log)
}

func runPopulate(ctx context.Context, cfg *config.Config, deps *Dependencies, log logger.Logger) error {
	handler, err := pq.NewHandler(pq.HandlerOptions{
		AppConfig: cfg,
		Logger:    log,
		Directory: deps.Nexus,
		Queue:     deps.Queue,
		Approved:  deps.Approved,
	})
	if err != nil {
		return err
	}
	_, err = handler.Run(ctx)
	return err
}

func runProcess(ctx context.Context, cfg *config.Config, deps *Dependencies, obs *observability.Observability, log logger.Logger) error {
	handler, err := spo.NewHandler(spo.HandlerOptions{
		AppConfig: cfg,
		Logger:    log,
		Queue:     deps.Queue,
		Citizens:  deps.Nexus,
		Tracker:   deps.Tracker,
		Notifier:  deps.Notifier,
		Obs:       obs,
	})
	if err != nil {
		return err
	}
	_, err = handler.Run(ctx)
	return err
}
