package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/storage"
	"mercator-hq/sentinel/pkg/server"
	"mercator-hq/sentinel/pkg/telemetry/health"
	"mercator-hq/sentinel/pkg/telemetry/logging"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
	"mercator-hq/sentinel/pkg/tokens"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the governor and its admin API",
	Long: `Start the governor with the specified configuration.

The admin API serves metrics, health checks, budget and circuit status,
and the job registry. When --config is given, the file is watched and rate
and budget limits are reloaded on change.

Examples:
  # Start with a config file
  sentinel run --config /etc/sentinel/sentinel.yaml

  # Override the admin listen address
  sentinel run --config sentinel.yaml --listen-address 0.0.0.0:9090

  # Validate config and exit
  sentinel run --config sentinel.yaml --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen-address", "l", "", "override admin listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Admin.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if err := a.run(ctx, cfgFile); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// app is one running Sentinel process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracer   *tracing.Tracer
	registry *prometheus.Registry
	store    storage.CounterStore
	governor *limits.Governor
	sweeper  *limits.Sweeper
	admin    *server.Server
}

// newApp builds every component from cfg. On error, anything already
// opened is closed.
func newApp(ctx context.Context, cfg *config.Config, logOutput io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.logger, err = newLogger(cfg.Telemetry.Logging, logOutput)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(a.logger)

	a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.registry = metrics.NewRegistry()
	limitMetrics := limits.NewMetrics(a.registry)

	if err := cfg.ResolveSecrets(ctx, a.logger); err != nil {
		return nil, err
	}
	a.store, err = cfg.Store.OpenStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := []limits.Option{
		limits.WithMetrics(limitMetrics),
		limits.WithTracer(a.tracer.Tracer()),
		limits.WithLogger(a.logger),
		limits.WithEstimator(tokens.NewSimpleEstimator(cfg.Limits.Estimation.CharsPerToken)),
	}
	if a.store != nil {
		opts = append(opts, limits.WithStore(a.store))
	}
	a.governor = limits.NewGovernor(cfg.GovernorConfig(), opts...)
	a.sweeper = limits.NewSweeper(a.governor, cfg.Limits.Sweep.Schedule)

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	if pinger, ok := a.store.(storage.Pinger); ok {
		checker.RegisterCheck("store", health.PingCheck(pinger))
	}
	checker.RegisterCheck("budget", func(ctx context.Context) error {
		_, err := a.governor.Budget().Status(ctx)
		return err
	})

	if cfg.Admin.IsEnabled() {
		srvOpts := server.Options{
			Checker:       checker,
			Tracer:        a.tracer.Tracer(),
			Logger:        a.logger,
			Version:       versionInfo(),
			LivenessPath:  cfg.Telemetry.Health.LivenessPath,
			ReadinessPath: cfg.Telemetry.Health.ReadinessPath,
		}
		if cfg.Telemetry.Metrics.IsEnabled() {
			srvOpts.Registry = a.registry
			srvOpts.MetricsPath = cfg.Telemetry.Metrics.Path
		}
		a.admin = server.New(cfg.Admin, a.governor, srvOpts)
	}

	return a, nil
}

func newLogger(cfg config.LoggingConfig, out io.Writer) (*slog.Logger, error) {
	patterns := make([]logging.Pattern, 0, len(cfg.RedactPatterns))
	for _, p := range cfg.RedactPatterns {
		patterns = append(patterns, logging.Pattern{Name: p.Name, Pattern: p.Pattern, Replacement: p.Replacement})
	}

	logger, err := logging.New(logging.Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactPII:      cfg.ShouldRedact(),
		RedactPatterns: patterns,
		Writer:         out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return logger, nil
}

// run starts background work and blocks until ctx is cancelled or the
// admin server fails. configPath, when set, is watched for limit changes.
func (a *app) run(ctx context.Context, configPath string) error {
	defer a.close(context.Background())

	a.logger.Info("starting sentinel",
		"version", Version,
		"store", a.cfg.Store.Backend,
		"max_per_minute", a.cfg.Limits.RateLimit.MaxPerMinute,
		"max_tokens_per_day", a.cfg.Limits.Budget.MaxTokensPerDay,
		"tracing", a.tracer.Enabled(),
	)

	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	if configPath != "" && !runFlags.noWatch {
		watcher, err := config.NewWatcher(configPath, a.applyConfig, a.logger)
		if err != nil {
			a.logger.Warn("config watch disabled", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Warn("config watcher stopped", "error", err)
				}
			}()
		}
	}

	if a.admin == nil {
		<-ctx.Done()
		return nil
	}
	return a.admin.Start(ctx)
}

// applyConfig applies the reloadable part of a new configuration.
func (a *app) applyConfig(cfg *config.Config) {
	a.governor.SetLimits(cfg.Limits.RateLimit.MaxPerMinute, cfg.Limits.Budget.MaxTokensPerDay, cfg.Jobs.MaxRunning)
}

// close shuts components down in reverse order of creation.
func (a *app) close(ctx context.Context) {
	timeout := config.DefaultShutdownTimeout
	if a.cfg != nil && a.cfg.Admin.ShutdownTimeout > 0 {
		timeout = a.cfg.Admin.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.governor != nil {
		if err := a.governor.Close(ctx); err != nil {
			a.logger.Warn("jobs still running at shutdown", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
	if a.logger != nil {
		a.logger.Info("sentinel stopped")
	}
}
