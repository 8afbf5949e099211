package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/batches"
	"github.com/ternarybob/tenderdock/internal/services/files"
	"github.com/ternarybob/tenderdock/internal/services/refindex"
	badgerstore "github.com/ternarybob/tenderdock/internal/storage/badger"
)

// scriptedRunner records retried batches and can fail or panic on demand
type scriptedRunner struct {
	mu       sync.Mutex
	retried  []string
	failOn   map[string]error
	panicOn  map[string]bool
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		failOn:  make(map[string]error),
		panicOn: make(map[string]bool),
	}
}

func (r *scriptedRunner) Run(ctx context.Context, tender, batchID string) error {
	r.mu.Lock()
	r.retried = append(r.retried, batchID)
	r.mu.Unlock()

	if r.panicOn[batchID] {
		panic("worker exploded for " + batchID)
	}
	return r.failOn[batchID]
}

func (r *scriptedRunner) RunDetached(tender, batchID string) {
	go r.Run(context.Background(), tender, batchID) //nolint:errcheck
}

func (r *scriptedRunner) Retried() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.retried...)
}

type sweepEnv struct {
	files   *files.Service
	batches *batches.Service
	runner  *scriptedRunner
	sweeper *Sweeper
}

func newSweepEnv(t *testing.T, interval time.Duration) *sweepEnv {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := badgerstore.NewRecordStorage(db, logger)
	filesService := files.NewService(store, logger)
	batchesService := batches.NewService(store, filesService, refindex.NewService(store, logger), logger)
	runner := newScriptedRunner()

	return &sweepEnv{
		files:   filesService,
		batches: batchesService,
		runner:  runner,
		sweeper: New(batchesService, runner, interval, logger),
	}
}

// stuckBatch creates a pending batch whose last activity is age in the past
func (e *sweepEnv) stuckBatch(t *testing.T, tender, path string, age time.Duration) *models.Batch {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.files.Register(ctx, models.NewFileRecord(tender, path, path, 100, "application/pdf")))
	batch, err := e.batches.Create(ctx, &batches.CreateRequest{
		Tender:      tender,
		Name:        "batch for " + path,
		FilePaths:   []string{path},
		Destination: "drawings",
		SubmittedBy: "alex@example.com",
	})
	require.NoError(t, err)

	if age > 0 {
		_, err = e.batches.AppendAttempt(ctx, tender, batch.ID, models.SubmissionAttempt{
			Timestamp: time.Now().UTC().Add(-age),
			Status:    models.AttemptStatusFailed,
		})
		require.NoError(t, err)
	}
	return batch
}

func TestEligibilitySelectsOnlyStalePending(t *testing.T) {
	env := newSweepEnv(t, 5*time.Minute)
	now := time.Now().UTC()

	pendingStale := &models.Batch{Status: models.BatchStatusPending, SubmittedAt: now.Add(-10 * time.Minute)}
	pendingFresh := &models.Batch{Status: models.BatchStatusPending, SubmittedAt: now.Add(-time.Minute)}
	running := &models.Batch{Status: models.BatchStatusRunning, SubmittedAt: now.Add(-time.Hour)}
	failed := &models.Batch{Status: models.BatchStatusFailed, SubmittedAt: now.Add(-time.Hour)}
	completed := &models.Batch{Status: models.BatchStatusCompleted, SubmittedAt: now.Add(-time.Hour)}

	assert.True(t, env.sweeper.eligible(pendingStale, now))
	assert.False(t, env.sweeper.eligible(pendingFresh, now))
	assert.False(t, env.sweeper.eligible(running, now))
	assert.False(t, env.sweeper.eligible(failed, now))
	assert.False(t, env.sweeper.eligible(completed, now))
}

func TestEligibilityUsesLatestAttemptOverSubmittedAt(t *testing.T) {
	env := newSweepEnv(t, 5*time.Minute)
	now := time.Now().UTC()

	// Submitted long ago but attempted recently: not eligible yet
	batch := &models.Batch{
		Status:      models.BatchStatusPending,
		SubmittedAt: now.Add(-time.Hour),
		SubmissionAttempts: []models.SubmissionAttempt{
			{Timestamp: now.Add(-time.Minute), Status: models.AttemptStatusFailed},
		},
	}
	assert.False(t, env.sweeper.eligible(batch, now))

	batch.SubmissionAttempts[0].Timestamp = now.Add(-6 * time.Minute)
	assert.True(t, env.sweeper.eligible(batch, now))
}

func TestSweepRetriesStuckBatches(t *testing.T) {
	env := newSweepEnv(t, 5*time.Minute)

	stuck := env.stuckBatch(t, "t1", "a.pdf", 10*time.Minute)
	fresh := env.stuckBatch(t, "t1", "b.pdf", 0)

	env.sweeper.Sweep(context.Background())

	retried := env.runner.Retried()
	assert.Contains(t, retried, stuck.ID)
	assert.NotContains(t, retried, fresh.ID)
}

func TestSweepIsolatesBatchFailures(t *testing.T) {
	env := newSweepEnv(t, 5*time.Minute)

	first := env.stuckBatch(t, "t1", "a.pdf", 10*time.Minute)
	second := env.stuckBatch(t, "t1", "b.pdf", 10*time.Minute)
	third := env.stuckBatch(t, "t1", "c.pdf", 10*time.Minute)

	env.runner.failOn[first.ID] = errors.New("engine unavailable")
	env.runner.panicOn[second.ID] = true

	env.sweeper.Sweep(context.Background())

	// The failing and panicking batches did not stop the rest of the sweep
	retried := env.runner.Retried()
	assert.Contains(t, retried, first.ID)
	assert.Contains(t, retried, second.ID)
	assert.Contains(t, retried, third.ID)
}

func TestSweepIsolatesTenantFailures(t *testing.T) {
	env := newSweepEnv(t, 5*time.Minute)

	alpha := env.stuckBatch(t, "alpha", "a.pdf", 10*time.Minute)
	beta := env.stuckBatch(t, "beta", "b.pdf", 10*time.Minute)

	env.runner.panicOn[alpha.ID] = true

	env.sweeper.Sweep(context.Background())

	retried := env.runner.Retried()
	assert.Contains(t, retried, alpha.ID)
	assert.Contains(t, retried, beta.ID)
}

func TestStartStopLifecycle(t *testing.T) {
	env := newSweepEnv(t, time.Hour)

	require.NoError(t, env.sweeper.Start())
	assert.True(t, env.sweeper.IsRunning())

	// Double start is refused
	assert.Error(t, env.sweeper.Start())

	env.sweeper.Stop()
	assert.False(t, env.sweeper.IsRunning())

	// Stop is idempotent
	env.sweeper.Stop()
}
