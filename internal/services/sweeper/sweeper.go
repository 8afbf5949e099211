// -----------------------------------------------------------------------
// Retry sweeper - periodic re-drive of batches stuck in pending
// -----------------------------------------------------------------------

package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/batches"
)

// Sweeper is foundational recovery infrastructure: a long-lived loop that
// re-invokes the submission worker for any batch stuck in pending beyond the
// sweep interval. If it dies, stuck-batch recovery silently stops, so every
// layer of the sweep recovers from faults and the loop itself survives panics.
//
// Fault isolation is three-layered: one tenant's enumeration failure does not
// stop other tenants, one batch's retry failure does not stop other batches
// of the same tenant, and a worker panic for one batch does not kill the loop.
type Sweeper struct {
	batches  *batches.Service
	worker   interfaces.SubmissionRunner
	interval time.Duration

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
	running bool

	logger arbor.ILogger
}

// New creates a sweeper. The interval is both the sweep period and the
// staleness threshold for selecting batches.
func New(batchesService *batches.Service, worker interfaces.SubmissionRunner, interval time.Duration, logger arbor.ILogger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		batches:  batchesService,
		worker:   worker,
		interval: interval,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start begins the periodic sweep loop
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	schedule := fmt.Sprintf("@every %s", s.interval)
	entryID, err := s.cron.AddFunc(schedule, s.safeSweep)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("interval", s.interval.String()).
		Msg("Retry sweeper started")
	return nil
}

// Stop halts the sweep loop, waiting for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Retry sweeper stopped")
}

// IsRunning reports whether the sweep loop is active
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// safeSweep shields the cron loop from panics so the schedule keeps firing
func (s *Sweeper) safeSweep() {
	defer common.RecoverAndLog(s.logger, "sweeper")
	s.Sweep(context.Background())
}

// Sweep runs one pass over all tenants. Exposed for manual triggering and tests.
func (s *Sweeper) Sweep(ctx context.Context) {
	tenants, err := s.batches.Tenants(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Sweep failed to enumerate tenants")
		return
	}

	retried := 0
	for _, tender := range tenants {
		retried += s.sweepTenant(ctx, tender)
	}

	if retried > 0 {
		s.logger.Info().
			Int("tenants", len(tenants)).
			Int("retried", retried).
			Msg("Sweep pass completed")
	}
}

// sweepTenant retries all eligible batches of one tenant. A failure here is
// logged and contained so the remaining tenants still get swept.
func (s *Sweeper) sweepTenant(ctx context.Context, tender string) int {
	list, err := s.batches.List(ctx, tender)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("tender", tender).
			Msg("Sweep failed to list batches for tenant, continuing with others")
		return 0
	}

	retried := 0
	for _, batch := range list {
		if !s.eligible(batch, time.Now()) {
			continue
		}
		s.retryBatch(ctx, tender, batch.ID)
		retried++
	}
	return retried
}

// retryBatch re-invokes the worker for one batch, containing errors and panics
// so one bad batch cannot stop the rest of the sweep
func (s *Sweeper) retryBatch(ctx context.Context, tender, batchID string) {
	defer common.RecoverAndLog(s.logger, "sweeper:"+batchID)

	s.logger.Info().
		Str("tender", tender).
		Str("batch_id", batchID).
		Msg("Retrying stuck batch")

	if err := s.worker.Run(ctx, tender, batchID); err != nil {
		s.logger.Warn().Err(err).
			Str("tender", tender).
			Str("batch_id", batchID).
			Msg("Sweep retry failed, will retry next interval")
	}
}

// eligible selects batches stuck in pending whose most recent attempt (or
// submission, when never attempted) is older than the sweep interval. Batches
// in running, completed or failed are never selected.
func (s *Sweeper) eligible(batch *models.Batch, now time.Time) bool {
	if batch.Status != models.BatchStatusPending {
		return false
	}
	return now.Sub(batch.LastAttemptAt()) >= s.interval
}
