package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
)

func newTestStorage(t *testing.T) *RecordStorage {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := NewSQLiteDB(logger, &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		WALMode:       true,
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRecordStorage(db, logger)
}

type sampleRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRecordRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Put(ctx, interfaces.KindBatch, "t1/batch_1", &sampleRecord{Name: "first", Count: 3}))

	var got sampleRecord
	require.NoError(t, storage.Get(ctx, interfaces.KindBatch, "t1/batch_1", &got))
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, 3, got.Count)

	// Put is an upsert
	require.NoError(t, storage.Put(ctx, interfaces.KindBatch, "t1/batch_1", &sampleRecord{Name: "second", Count: 4}))
	require.NoError(t, storage.Get(ctx, interfaces.KindBatch, "t1/batch_1", &got))
	assert.Equal(t, "second", got.Name)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	storage := newTestStorage(t)

	var got sampleRecord
	err := storage.Get(context.Background(), interfaces.KindBatch, "t1/missing", &got)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestKindsAreIsolated(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Put(ctx, interfaces.KindBatch, "t1/x", &sampleRecord{Name: "batch"}))
	require.NoError(t, storage.Put(ctx, interfaces.KindFile, "t1/x", &sampleRecord{Name: "file"}))

	var got sampleRecord
	require.NoError(t, storage.Get(ctx, interfaces.KindFile, "t1/x", &got))
	assert.Equal(t, "file", got.Name)

	require.NoError(t, storage.Delete(ctx, interfaces.KindBatch, "t1/x"))
	require.NoError(t, storage.Get(ctx, interfaces.KindFile, "t1/x", &got))
}

func TestKeysPrefixFilter(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Put(ctx, interfaces.KindFile, "t1/drawings/a.pdf", &sampleRecord{}))
	require.NoError(t, storage.Put(ctx, interfaces.KindFile, "t1/drawings/b.pdf", &sampleRecord{}))
	require.NoError(t, storage.Put(ctx, interfaces.KindFile, "t1/specs/c.pdf", &sampleRecord{}))
	require.NoError(t, storage.Put(ctx, interfaces.KindFile, "t2/drawings/d.pdf", &sampleRecord{}))

	keys, err := storage.Keys(ctx, interfaces.KindFile, "t1/drawings/")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1/drawings/a.pdf", "t1/drawings/b.pdf"}, keys)

	all, err := storage.Keys(ctx, interfaces.KindFile, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	logger := arbor.NewLogger()
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := &common.SQLiteConfig{Path: path, BusyTimeoutMS: 5000}

	db, err := NewSQLiteDB(logger, cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening the same file must not re-run applied migrations
	db, err = NewSQLiteDB(logger, cfg)
	require.NoError(t, err)
	defer db.Close()

	storage := NewRecordStorage(db, logger)
	require.NoError(t, storage.Put(context.Background(), interfaces.KindBatch, "t1/b", &sampleRecord{Name: "ok"}))
}
