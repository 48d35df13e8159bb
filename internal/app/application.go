package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oraclesvc "github.com/meridianlabs/rwa-oracle/internal/app/services/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage/memory"
	"github.com/meridianlabs/rwa-oracle/internal/app/system"
	"github.com/meridianlabs/rwa-oracle/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Config    storage.ConfigStore
	Assets    storage.AssetStore
	Snapshots storage.SnapshotStore
}

// Sources encapsulates the external data providers. Nil sources leave the
// corresponding fetch path disabled until attached.
type Sources struct {
	Rates  oraclesvc.RateSource
	Prices oraclesvc.PriceSource
}

// Application ties the oracle engine together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Oracle *oraclesvc.Service
}

// New builds a fully initialised application with the provided stores and
// sources.
func New(stores Stores, sources Sources, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Config == nil {
		stores.Config = mem
	}
	if stores.Assets == nil {
		stores.Assets = mem
	}
	if stores.Snapshots == nil {
		stores.Snapshots = mem
	}

	manager := system.NewManager()

	oracleService := oraclesvc.New(stores.Config, stores.Assets, stores.Snapshots, log)

	httpClient := &http.Client{Timeout: 10 * time.Second}

	if sources.Prices == nil {
		if endpoint := strings.TrimSpace(os.Getenv("ORACLE_PRICE_URL")); endpoint != "" {
			source, err := oraclesvc.NewHTTPPriceSource(
				httpClient,
				endpoint,
				os.Getenv("ORACLE_PRICE_KEY"),
				envOrDefault("ORACLE_PRICE_JSON_PATH", "price"),
				os.Getenv("ORACLE_PRICE_DECIMALS_PATH"),
				os.Getenv("ORACLE_PRICE_TIME_PATH"),
				log,
			)
			if err != nil {
				log.WithError(err).Warn("configure price source")
			} else {
				sources.Prices = source
			}
		} else {
			log.Warn("ORACLE_PRICE_URL not set; price updates disabled")
		}
	}
	if sources.Rates == nil {
		source, err := oraclesvc.NewHTTPRateSource(
			httpClient,
			os.Getenv("ORACLE_FX_KEY"),
			envOrDefault("ORACLE_FX_JSON_PATH", "rate"),
			os.Getenv("ORACLE_FX_TIME_PATH"),
			log,
		)
		if err != nil {
			log.WithError(err).Warn("configure fx source")
		} else {
			sources.Rates = source
		}
	}
	oracleService.AttachSources(sources.Rates, sources.Prices)

	if err := manager.Register(system.NoopService{ServiceName: "oracle"}); err != nil {
		return nil, fmt.Errorf("register oracle service: %w", err)
	}

	refresher, err := oraclesvc.NewRefresher(oracleService, os.Getenv("ORACLE_REFRESH_SCHEDULE"), log)
	if err != nil {
		return nil, fmt.Errorf("configure refresher: %w", err)
	}
	if err := manager.Register(refresher); err != nil {
		return nil, fmt.Errorf("register %s: %w", refresher.Name(), err)
	}

	return &Application{
		manager: manager,
		log:     log,
		Oracle:  oracleService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
