// Command oracled runs the RWA yield oracle HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/meridianlabs/rwa-oracle/internal/app"
	"github.com/meridianlabs/rwa-oracle/internal/app/httpapi"
	"github.com/meridianlabs/rwa-oracle/internal/app/metrics"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage/postgres"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage/redis"
	"github.com/meridianlabs/rwa-oracle/internal/config"
	"github.com/meridianlabs/rwa-oracle/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/oracled.yaml", "path to the server configuration file")
	flag.Parse()

	log := logger.NewDefault("oracled")

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("configure storage")
		os.Exit(1)
	}
	defer cleanup()

	application, err := app.New(stores, app.Sources{}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	audit, err := httpapi.NewAuditTrail(cfg.Audit.MaxEntries, cfg.Audit.Path)
	if err != nil {
		log.WithError(err).Error("open audit trail")
		os.Exit(1)
	}

	handler := metrics.InstrumentHandler(
		httpapi.WrapWithAuth(httpapi.NewHandler(application), cfg.AdminTokens, audit),
	)
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Listen).Info("oracle server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("oracle server stopped")
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "", "memory":
		return app.Stores{}, func() {}, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Store.PostgresDSN)
		if err != nil {
			return app.Stores{}, nil, err
		}
		store := postgres.New(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return app.Stores{}, nil, err
		}
		log.Info("using postgres storage")
		return app.Stores{Config: store, Assets: store, Snapshots: store}, func() { db.Close() }, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		// Config and registry stay in memory; redis holds the snapshot
		// history, which is the only high-churn state.
		log.Info("using redis snapshot storage")
		return app.Stores{Snapshots: redis.New(client, "")}, func() { client.Close() }, nil

	default:
		return app.Stores{}, nil, errors.New("unknown store backend " + cfg.Store.Backend)
	}
}
