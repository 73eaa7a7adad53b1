package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/api"
	"github.com/orvi2014/classcatch/internal/channel"
	"github.com/orvi2014/classcatch/internal/config"
	"github.com/orvi2014/classcatch/internal/entitlement"
	"github.com/orvi2014/classcatch/internal/gumroad"
	"github.com/orvi2014/classcatch/internal/logging"
	"github.com/orvi2014/classcatch/internal/quota"
)

func runServe() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "classcatch",
	})

	store, watcher, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store).Msg("Failed to open entitlement store")
	}
	defer store.Close()
	if watcher != nil {
		defer watcher.Stop()
	}

	if err := applyQuotaOverride(store, cfg.PageQuota); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply quota override")
	}

	verifier := gumroad.NewClient(
		gumroad.WithVerifyURL(cfg.VerifyURL),
		gumroad.WithProductID(cfg.ProductID),
	)
	authority := quota.NewAuthority(store, verifier)
	dispatcher := channel.NewDispatcher(authority)
	hub := channel.NewHub(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewRouter(authority, hub, api.WithDefaultPermalink(cfg.ProductPermalink)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections outlive any write deadline
	}

	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("store", cfg.Store).
			Str("dataDir", cfg.DataDir).
			Msg("Starting classcatch daemon")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Graceful shutdown incomplete")
	}
}

// openStore builds the configured store backend. File stores also get a
// watcher so externally edited state shows up in the logs.
func openStore(cfg *config.Config) (entitlement.Store, *entitlement.Watcher, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		store, err := entitlement.NewSQLiteStore(cfg.DataDir)
		return store, nil, err

	case config.StoreMemory:
		return entitlement.NewMemoryStore(), nil, nil

	default:
		store, err := entitlement.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		watcher, err := entitlement.NewWatcher(store.Path(), func() {
			log.Info().Str("file", store.Path()).Msg("Entitlement file changed on disk")
		})
		if err != nil {
			log.Warn().Err(err).Msg("Entitlement file watching unavailable")
			return store, nil, nil
		}
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Entitlement file watching unavailable")
			watcher.Stop()
			return store, nil, nil
		}
		return store, watcher, nil
	}
}

// applyQuotaOverride raises or lowers the free-plan ceiling for fresh
// installations. A verified license or an already-started quota is left
// alone.
func applyQuotaOverride(store entitlement.Store, pageQuota int) error {
	if pageQuota == entitlement.DefaultPageQuota {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := store.Get(ctx)
	if err != nil {
		return err
	}
	rec.ApplyDefaults()
	if rec.Status != entitlement.StatusFree || len(rec.UsedPages) > 0 {
		return nil
	}
	return store.Set(ctx, entitlement.Mutation{PageQuota: entitlement.IntPtr(pageQuota)})
}
