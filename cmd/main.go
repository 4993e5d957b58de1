package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"crime_service/internal/config"
	"crime_service/internal/core"
	"crime_service/internal/domain/repository"
	"crime_service/internal/infrastructure/cache"
	"crime_service/internal/infrastructure/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "crime_service",
		Short: "Crime statistics API for the area dashboard",
		// Running without a subcommand starts the server.
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, areasCmd, summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app is the wired service graph shared by all commands.
type app struct {
	cfg     *config.Config
	service *core.CrimeService
	close   func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(telemetry.NewLogger(os.Stderr, cfg.SlogLevel()))
	return cfg, nil
}

// newApp connects the record store and optional boundary locator and builds
// the query service. reg may be nil.
func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	var (
		store   core.RecordStore
		closeFn = func() {}
	)

	if cfg.PostgresURL != "" {
		pg, err := repository.NewPostgresRepository(ctx, cfg.PostgresURL, cfg.CrimeTable)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store = pg
		closeFn = func() {
			if err := pg.Close(); err != nil {
				slog.Warn("failed to close postgres", "error", err)
			}
		}
		slog.Info("using postgres record store", "table", cfg.CrimeTable)
	} else {
		mem, err := repository.LoadCSVFile(cfg.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load crime csv: %w", err)
		}
		store = mem
		slog.Info("using csv record store", "path", cfg.CSVPath)
	}

	opts := core.Options{
		TopN:              cfg.TopN,
		LatestMonth:       cfg.LatestMonth,
		EvictOnAreaSwitch: cfg.EvictOnAreaSwitch,
	}
	if cfg.OverpassURL != "" {
		opts.Bounds = repository.NewOverpassRepository(cfg.OverpassURL, cfg.OverpassTimeout)
	}

	var cacheOpts []cache.Option
	if reg != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(cache.NewMetrics(reg, telemetry.Namespace)))
	}

	return &app{
		cfg:     cfg,
		service: core.NewCrimeService(store, cache.New(cacheOpts...), opts),
		close:   closeFn,
	}, nil
}
