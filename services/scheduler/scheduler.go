package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vmledger/services/inventory"
)

// Engine runs one sync to completion. Implemented by inventory.Coordinator.
type Engine interface {
	StartSync(ctx context.Context, platform inventory.Platform, resource inventory.ResourceType) (inventory.SyncRun, error)
}

// Scheduler periodically walks every supported sync pair. Pairs already in
// flight are skipped, not queued; the next tick picks them up again.
type Scheduler struct {
	engine   Engine
	interval time.Duration
	pairs    []inventory.SyncPair
	log      zerolog.Logger
}

// New builds a scheduler over the given engine. A zero interval defaults to
// one hour.
func New(engine Engine, interval time.Duration, log zerolog.Logger) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("scheduler: nil engine")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		pairs:    inventory.SupportedPairs(),
		log:      log,
	}, nil
}

// Run blocks until ctx is cancelled, syncing all pairs once per interval.
// The first sweep starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	for _, pair := range s.pairs {
		if ctx.Err() != nil {
			return
		}
		run, err := s.engine.StartSync(ctx, pair.Platform, pair.Resource)
		if err != nil {
			if errors.Is(err, inventory.ErrSyncAlreadyInProgress) {
				s.log.Debug().
					Str("platform", string(pair.Platform)).
					Str("resource", string(pair.Resource)).
					Msg("sync already in progress, skipping")
				continue
			}
			s.log.Error().Err(err).
				Str("platform", string(pair.Platform)).
				Str("resource", string(pair.Resource)).
				Msg("scheduled sync")
			continue
		}
		s.log.Info().
			Str("run_id", run.ID.String()).
			Str("platform", string(pair.Platform)).
			Str("resource", string(pair.Resource)).
			Str("status", string(run.Status)).
			Msg("scheduled sync finished")
	}
}
