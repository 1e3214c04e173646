package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iTrooz/storefront-cache/internal/apicache"
	"github.com/iTrooz/storefront-cache/internal/cache"
	"github.com/iTrooz/storefront-cache/internal/config"
	"github.com/iTrooz/storefront-cache/internal/logging"
	"github.com/iTrooz/storefront-cache/internal/proxy"
	"github.com/iTrooz/storefront-cache/internal/storefront"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.Setup(cfg.Log); err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	if dump, err := cfg.Dump(); err == nil {
		logrus.Debugf("Effective configuration:\n%s", dump)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, configPath); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	defaultTTL, err := cfg.GetDefaultTTL()
	if err != nil {
		return fmt.Errorf("invalid cache TTL: %w", err)
	}
	cleanupInterval, err := cfg.GetCleanupInterval()
	if err != nil {
		return fmt.Errorf("invalid cleanup interval: %w", err)
	}

	store, err := cache.New(cache.Options{
		Backend:         cfg.Cache.Backend,
		MaxEntries:      cfg.Cache.MaxEntries,
		CleanupInterval: cleanupInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}
	defer func() { _ = store.Close() }()

	apiCache := apicache.New(store, apicache.Options{DefaultTTL: defaultTTL})
	admin := apicache.NewAdminHandler(apiCache, cfg.Admin.Token)
	if cfg.Admin.Token == "" {
		logrus.Warnf("No admin token configured, cache admin routes are disabled")
	}

	unwatch, err := config.Watch(configPath, func(newCfg *config.Config) {
		if err := logging.Setup(newCfg.Log); err != nil {
			logrus.Errorf("Failed to apply log settings: %v", err)
		}
	})
	if err != nil {
		logrus.Warnf("Config hot reload disabled: %v", err)
	} else {
		defer func() { _ = unwatch() }()
	}

	var srv server
	switch cfg.Server.Mode {
	case config.ModeProxy:
		p, err := proxy.New(cfg, apiCache, admin)
		if err != nil {
			return fmt.Errorf("failed to create proxy server: %w", err)
		}
		srv = p
	default:
		repo, err := storefront.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()

		router := storefront.NewRouter(storefront.NewHandler(repo), apiCache, admin)
		srv = storefront.NewServer(cfg.Server.Port, router)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logrus.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logrus.Infof("Cache stats at shutdown: %+v", apiCache.Stats())
	return nil
}
