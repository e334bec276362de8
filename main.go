package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medpricing/medical-data-service/config"
	"github.com/medpricing/medical-data-service/data"
	"github.com/medpricing/medical-data-service/handlers"
	"github.com/medpricing/medical-data-service/health"
	"github.com/medpricing/medical-data-service/importer"
	"github.com/medpricing/medical-data-service/interfaces"
	"github.com/medpricing/medical-data-service/logging"
	"github.com/medpricing/medical-data-service/registry"
	"github.com/medpricing/medical-data-service/resolver"
	"github.com/medpricing/medical-data-service/scheduler"
	"github.com/medpricing/medical-data-service/server"
	"github.com/medpricing/medical-data-service/validation"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.InitLoggerWithOptions(logging.Options{
		LogDir:         cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Error("Service stopped with an error", "error", err)
		logging.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	store, err := data.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.DBDriver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn("Failed to close store", "error", err)
		}
	}()

	csvImporter := importer.NewCSVImporter(importer.Paths{
		TreatmentItems: cfg.TreatmentItemsPath(),
		DrugPrices:     cfg.DrugPricesPath(),
		Diseases:       cfg.DiseasesPath(),
	})

	// Must stay a nil interface when registration is disabled
	var reg interfaces.Registry
	if cfg.Nacos.Enabled {
		reg = registry.NewNacosClient(cfg.Nacos, cfg.Port)
	} else {
		logging.Info("Service registration disabled")
	}

	sched := scheduler.NewScheduler(store, csvImporter, reg, scheduler.Options{
		BeatInterval: cfg.Nacos.BeatInterval,
		ReloadAt:     cfg.ReloadAt,
	})
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	handler := handlers.NewHTTPHandler(
		store,
		resolver.NewResolver(store),
		validation.NewValidatorWithLimits(validation.Limits{
			MaxKeyLength:      cfg.MaxKeyLength,
			MaxKeysPerRequest: cfg.MaxKeysPerRequest,
		}),
		health.NewHealthChecker(store, reg, cfg.Nacos.BeatInterval),
	)
	srv := server.NewServer(cfg, handler)

	// Profiling endpoint (accessible at /debug/pprof/) - only for local dev
	if cfg.Env == config.EnvDevelopment {
		go func() {
			logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				logging.Warn("Profiling server failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case sig := <-quit:
		logging.Info("Received signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}
