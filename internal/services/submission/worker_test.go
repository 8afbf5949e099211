package submission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/models"
	"github.com/ternarybob/tenderdock/internal/services/batches"
	"github.com/ternarybob/tenderdock/internal/services/files"
	"github.com/ternarybob/tenderdock/internal/services/refindex"
	"github.com/ternarybob/tenderdock/internal/services/users"
	badgerstore "github.com/ternarybob/tenderdock/internal/storage/badger"
)

// fakeEngine records submitted items and returns a scripted result
type fakeEngine struct {
	calls  int
	items  []interfaces.QueueItem
	result *interfaces.SubmitResult
	err    error
}

func (f *fakeEngine) SubmitBatch(ctx context.Context, items []interfaces.QueueItem) (*interfaces.SubmitResult, error) {
	f.calls++
	f.items = items
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type workerEnv struct {
	store    interfaces.RecordStore
	files    *files.Service
	batches  *batches.Service
	users    *users.Service
	refindex *refindex.Service
	engine   *fakeEngine
	worker   *Worker
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := badgerstore.NewRecordStorage(db, logger)
	filesService := files.NewService(store, logger)
	refindexService := refindex.NewService(store, logger)
	batchesService := batches.NewService(store, filesService, refindexService, logger)
	usersService := users.NewService(store, logger)
	engine := &fakeEngine{result: &interfaces.SubmitResult{Reference: "", SubmissionID: "ext-sub-1"}}

	env := &workerEnv{
		store:    store,
		files:    filesService,
		batches:  batchesService,
		users:    usersService,
		refindex: refindexService,
		engine:   engine,
	}
	env.worker = NewWorker(store, batchesService, usersService, engine, refindexService, "folder-9", 5*time.Minute, logger)
	return env
}

// seedBatch registers files, the submitting user and a pending batch
func (e *workerEnv) seedBatch(t *testing.T, tender string, paths ...string) *models.Batch {
	t.Helper()
	ctx := context.Background()

	for _, path := range paths {
		require.NoError(t, e.files.Register(ctx, models.NewFileRecord(tender, path, path, 2048, "application/pdf")))
	}
	require.NoError(t, e.users.Register(ctx, &models.ValidationUser{
		Identity: "alex@example.com",
		Email:    "alex@example.com",
		Role:     "estimator",
	}))

	batch, err := e.batches.Create(ctx, &batches.CreateRequest{
		Tender:      tender,
		Name:        "Structural drawings",
		FilePaths:   paths,
		Destination: "drawings",
		SubmittedBy: "alex@example.com",
	})
	require.NoError(t, err)
	return batch
}

func (e *workerEnv) trackingKeys(t *testing.T, tender string) []string {
	t.Helper()
	keys, err := e.store.Keys(context.Background(), interfaces.KindFileTracking, tender+"/")
	require.NoError(t, err)
	return keys
}

func TestRunSuccess(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	batch := env.seedBatch(t, "t1", "a.pdf", "b.pdf")

	require.NoError(t, env.worker.Run(ctx, "t1", batch.ID))
	assert.Equal(t, 1, env.engine.calls)

	got, err := env.batches.Get(ctx, "t1", batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusRunning, got.Status)
	assert.Nil(t, got.LastError)
	require.NotNil(t, got.ExternalReference)
	require.NotNil(t, got.ExternalProjectID)
	assert.Equal(t, "proj_t1", *got.ExternalProjectID)

	// Attempt log: opening in-progress entry plus the closing success entry
	require.Len(t, got.SubmissionAttempts, 2)
	assert.Equal(t, models.AttemptStatusInProgress, got.SubmissionAttempts[0].Status)
	assert.Equal(t, models.AttemptStatusSuccess, got.SubmissionAttempts[1].Status)

	// One queue item per file, all correlated by the same reference
	require.Len(t, env.engine.items, 2)
	assert.Equal(t, env.engine.items[0].Reference, env.engine.items[1].Reference)
	assert.Equal(t, 2, env.engine.items[0].TotalFiles)
	assert.Equal(t, "proj_t1", env.engine.items[0].ProjectID)

	// Reference index resolves back to the batch
	entry, err := env.refindex.Resolve(ctx, *got.ExternalReference)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, entry.BatchID)

	// Tracking records survive a successful run
	assert.Len(t, env.trackingKeys(t, "t1"), 2)
}

func TestRunEngineReferencePreferred(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	env.engine.result = &interfaces.SubmitResult{Reference: "engine-ref-7", SubmissionID: "ext-sub-7"}
	batch := env.seedBatch(t, "t1", "a.pdf")

	require.NoError(t, env.worker.Run(ctx, "t1", batch.ID))

	got, err := env.batches.Get(ctx, "t1", batch.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExternalReference)
	assert.Equal(t, "engine-ref-7", *got.ExternalReference)
}

func TestRunEngineFailureCompensatesTracking(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	env.engine.err = models.NewSubmissionError("bulk submit rejected", nil)
	batch := env.seedBatch(t, "t1", "a.pdf", "b.pdf", "c.pdf")

	err := env.worker.Run(ctx, "t1", batch.ID)
	require.Error(t, err)
	assert.True(t, models.IsSubmissionError(err))

	got, getErr := env.batches.Get(ctx, "t1", batch.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.BatchStatusFailed, got.Status)
	require.NotNil(t, got.LastError)

	require.Len(t, got.SubmissionAttempts, 2)
	assert.Equal(t, models.AttemptStatusFailed, got.SubmissionAttempts[1].Status)

	// Every tracking record created in the run was compensated away
	assert.Empty(t, env.trackingKeys(t, "t1"))

	// No reference index entry for a rejected submission
	keys, keysErr := env.store.Keys(ctx, interfaces.KindReference, "")
	require.NoError(t, keysErr)
	assert.Empty(t, keys)
}

func TestRunUserNotRegistered(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	batch := env.seedBatch(t, "t1", "a.pdf")

	// Replace the batch submitter with an unknown identity
	got, err := env.batches.Get(ctx, "t1", batch.ID)
	require.NoError(t, err)
	got.SubmittedBy = "nobody@example.com"
	require.NoError(t, env.store.Put(ctx, interfaces.KindBatch, "t1/"+batch.ID, got))

	err = env.worker.Run(ctx, "t1", batch.ID)
	assert.ErrorIs(t, err, models.ErrUserNotRegistered)
	assert.Equal(t, 0, env.engine.calls)

	after, err := env.batches.Get(ctx, "t1", batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, after.Status)

	// No structured records were created for the aborted run
	subs, err := env.store.Keys(ctx, interfaces.KindSubmission, "t1/")
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Empty(t, env.trackingKeys(t, "t1"))
}

func TestRunRefusesLiveInProgressAttempt(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	batch := env.seedBatch(t, "t1", "a.pdf")

	_, err := env.batches.AppendAttempt(ctx, "t1", batch.ID, models.SubmissionAttempt{
		Timestamp: time.Now().UTC(),
		Status:    models.AttemptStatusInProgress,
	})
	require.NoError(t, err)

	// The racing caller sees success without a second attempt being opened
	require.NoError(t, env.worker.Run(ctx, "t1", batch.ID))
	assert.Equal(t, 0, env.engine.calls)

	got, err := env.batches.Get(ctx, "t1", batch.ID)
	require.NoError(t, err)
	assert.Len(t, got.SubmissionAttempts, 1)
}

func TestRunSupersedesStaleInProgressAttempt(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()
	batch := env.seedBatch(t, "t1", "a.pdf")

	// An in-progress attempt abandoned by a dead process
	_, err := env.batches.AppendAttempt(ctx, "t1", batch.ID, models.SubmissionAttempt{
		Timestamp: time.Now().UTC().Add(-time.Hour),
		Status:    models.AttemptStatusInProgress,
	})
	require.NoError(t, err)

	require.NoError(t, env.worker.Run(ctx, "t1", batch.ID))
	assert.Equal(t, 1, env.engine.calls)

	got, err := env.batches.Get(ctx, "t1", batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusRunning, got.Status)
}

func TestRunReusesProjectAcrossAttempts(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()

	first := env.seedBatch(t, "t1", "a.pdf")
	require.NoError(t, env.worker.Run(ctx, "t1", first.ID))

	require.NoError(t, env.files.Register(ctx, models.NewFileRecord("t1", "d.pdf", "d.pdf", 512, "application/pdf")))
	second, err := env.batches.Create(ctx, &batches.CreateRequest{
		Tender:      "t1",
		Name:        "Addendum drawings",
		FilePaths:   []string{"d.pdf"},
		Destination: "drawings",
		SubmittedBy: "alex@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, env.worker.Run(ctx, "t1", second.ID))

	var project models.ProjectRecord
	require.NoError(t, env.store.Get(ctx, interfaces.KindProject, "t1", &project))
	assert.Equal(t, "proj_t1", project.ID)
	assert.Equal(t, "folder-9", project.EngineFolderID)
}
