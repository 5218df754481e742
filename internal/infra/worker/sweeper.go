// File: internal/infra/worker/sweeper.go
package worker

import (
	"context"
	"errors"
	"time"

	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"
	"ai-generation-broker/internal/infra/metrics"
	"ai-generation-broker/internal/infra/redis"

	"github.com/rs/zerolog"
)

const sweepLockKey = "broker:startup_sweep"

// Sweeper force-closes jobs left in created/pending state by a prior run.
// Their owning process is gone, so they can never complete; closing them to
// done keeps clients from waiting on a job nobody drives. A redis lock
// ensures only one of the sibling processes performs the sweep.
type Sweeper struct {
	jobs   repository.JobRepository
	locker redis.Locker
	log    *zerolog.Logger
}

func NewSweeper(jobs repository.JobRepository, locker redis.Locker, logger *zerolog.Logger) *Sweeper {
	swplog := logger.With().Str("component", "Sweeper").Logger()
	return &Sweeper{jobs: jobs, locker: locker, log: &swplog}
}

// Run performs one sweep. Call once at process startup, before the signal
// bus subscription begins accepting stop requests.
func (s *Sweeper) Run(ctx context.Context) error {
	token, err := s.locker.TryLock(ctx, sweepLockKey, 30*time.Second)
	if errors.Is(err, redis.ErrLockHeld) {
		// a sibling is already sweeping
		s.log.Debug().Msg("sweep skipped, lock held elsewhere")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = s.locker.Unlock(ctx, sweepLockKey, token) }()

	stale, err := s.jobs.ListUnfinished(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	for _, j := range stale {
		j.Status = model.JobStatusDone
		j.Progress = 100
		if err := s.jobs.Save(ctx, repository.NoTX, j); err != nil {
			s.log.Error().Err(err).Str("job_id", j.ID).Msg("sweep save failed")
			continue
		}
		metrics.IncJobSwept()
		s.log.Info().Str("job_id", j.ID).Str("name", j.Name).Msg("stale job force-closed")
	}
	if len(stale) > 0 {
		s.log.Info().Int("count", len(stale)).Msg("startup sweep finished")
	}
	return nil
}
