package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/the-deep/deeptree/internal/api"
	"github.com/the-deep/deeptree/internal/catalog"
	"github.com/the-deep/deeptree/internal/config"
	"github.com/the-deep/deeptree/internal/pipeline"
	"github.com/the-deep/deeptree/internal/platform"
	"github.com/the-deep/deeptree/internal/stats"
	"github.com/the-deep/deeptree/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	var cat *catalog.Catalog
	if cfg.CatalogDir != "" {
		cat, err = catalog.Open(cfg.CatalogDir, log)
		if err != nil {
			log.Error("open catalog", "dir", cfg.CatalogDir, "error", err)
			os.Exit(1)
		}
		if err := cat.Watch(ctx); err != nil {
			log.Warn("catalog changes will not be picked up", "error", err)
		}
	}

	var pc *platform.Client
	if cfg.PlatformURL != "" {
		pc = platform.NewClient(cfg.PlatformURL, cfg.PlatformToken)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, st, pc, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(st, orch, cat, stats.New(time.Hour), log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", "error", err)
		}

		orch.Stop()
		cancel()
		if pc != nil {
			pc.Close()
		}
		if err := st.Close(); err != nil {
			log.Error("close store", "error", err)
		}
	}()

	log.Info("starting deeptree", "port", cfg.Port, "store", cfg.StoreDriver, "platform", pc != nil, "catalog", cat != nil)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == "sqlite" {
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	mem := store.NewMemoryStore(cfg.SessionTTL)
	if cfg.SessionTTL > 0 {
		go mem.RunCleanup(ctx, cfg.SessionTTL/4)
		log.Info("document eviction enabled", "ttl", cfg.SessionTTL)
	}
	return mem, nil
}
