package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domain "github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/system"
	"github.com/meridianlabs/rwa-oracle/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// Refresher periodically runs every registered asset through the update
// pipeline so snapshots keep flowing without manual triggers.
type Refresher struct {
	service  *Service
	log      *logger.Logger
	schedule cron.Schedule

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRefresher creates a lifecycle-managed snapshot refresher. The spec
// string uses cron descriptor syntax, e.g. "@every 5m" or a five-field cron
// expression; empty means every five minutes.
func NewRefresher(service *Service, spec string, log *logger.Logger) (*Refresher, error) {
	if log == nil {
		log = logger.NewDefault("oracle-refresher")
	}
	if spec == "" {
		spec = "@every 5m"
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	return &Refresher{
		service:  service,
		log:      log,
		schedule: schedule,
	}, nil
}

func (r *Refresher) Name() string { return "oracle-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(time.Until(r.schedule.Next(time.Now())))
		defer timer.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-timer.C:
				r.tick(runCtx)
				timer.Reset(time.Until(r.schedule.Next(time.Now())))
			}
		}
	}()

	r.log.Info("oracle refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("oracle refresher stopped")
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	if r.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	assets, err := r.service.ListAssets(ctx)
	if err != nil {
		r.log.WithError(err).Warn("oracle refresher tick failed")
		return
	}

	for _, asset := range assets {
		if _, err := r.service.UpdatePrice(ctx, asset.ID); err != nil {
			if errors.Is(err, domain.ErrDeviationExceeded) {
				// Already logged by the guard; the snapshot is simply
				// withheld until the next pass.
				continue
			}
			r.log.WithError(err).
				WithField("asset", asset.ID).
				Warn("scheduled price update failed")
		}
	}
}
