// Package main is the entry point for the staten app installer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"staten/internal/backend"
	"staten/internal/catalog"
	"staten/internal/cli"
	"staten/internal/config"
	"staten/internal/database"
	"staten/internal/gateway"
	"staten/internal/logging"
	"staten/internal/session"
	"staten/internal/telemetry"
	"staten/internal/tui"
	"staten/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil && logging.DebugEnabled() {
		logging.Debugf("No .env file found or error loading it: %v", err)
	}

	cfg, err := config.Load(os.Getenv("STATEN_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return cli.ExitRuntimeError
	}

	if err := logging.Initialize(cfg.LogDir); err != nil {
		logging.Warnf("Failed to initialize file logging: %v", err)
	} else {
		defer logging.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitializeFromEnv(ctx, version.Get().Version)
	if err != nil {
		logging.Warnf("Failed to initialize telemetry: %v", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Errorf("Error shutting down telemetry: %v", err)
			}
		}()
	}

	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		return cli.ExitRuntimeError
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Errorf("Failed to close database: %v", err)
		}
	}()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load app catalog: %v\n", err)
		return cli.ExitRuntimeError
	}

	be, err := backend.New(cfg, cat, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create backend: %v\n", err)
		return cli.ExitRuntimeError
	}

	sess, err := session.Load(ctx, store, cfg.DefaultClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load session: %v\n", err)
		return cli.ExitRuntimeError
	}

	gw := gateway.Traced(be)
	svc := cli.NewService(cli.ServiceDeps{
		Catalog:      cat,
		Gateway:      gw,
		Session:      sess,
		Marker:       be,
		PollInterval: cfg.PollInterval.Duration,
		DownloadURL:  cfg.HostDownloadURL,
		UI: func(ctx context.Context) error {
			return tui.Run(ctx, tui.Deps{
				Catalog:      cat,
				Gateway:      gw,
				Session:      sess,
				PollInterval: cfg.PollInterval.Duration,
				DownloadURL:  cfg.HostDownloadURL,
			})
		},
	})

	logging.Debugf("Configuration: %s", cfg)
	return cli.ExecuteContext(ctx, os.Args[1:], svc, os.Stdout, os.Stderr)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
