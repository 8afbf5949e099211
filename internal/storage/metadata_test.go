package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
)

// memStore is an in-memory RecordStore for facade tests. Individual
// operations can be forced to fail to simulate a degraded backend.
type memStore struct {
	name     string
	records  map[string][]byte
	failGets bool
	failPuts bool
}

func newMemStore(name string) *memStore {
	return &memStore{
		name:    name,
		records: make(map[string][]byte),
	}
}

func memKey(kind interfaces.RecordKind, key string) string {
	return string(kind) + "/" + key
}

func (m *memStore) Get(ctx context.Context, kind interfaces.RecordKind, key string, out any) error {
	if m.failGets {
		return errors.New("backend unavailable")
	}
	data, ok := m.records[memKey(kind, key)]
	if !ok {
		return interfaces.ErrNotFound
	}
	return json.Unmarshal(data, out)
}

func (m *memStore) Put(ctx context.Context, kind interfaces.RecordKind, key string, record any) error {
	if m.failPuts {
		return errors.New("backend unavailable")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	m.records[memKey(kind, key)] = data
	return nil
}

func (m *memStore) Delete(ctx context.Context, kind interfaces.RecordKind, key string) error {
	delete(m.records, memKey(kind, key))
	return nil
}

func (m *memStore) Keys(ctx context.Context, kind interfaces.RecordKind, prefix string) ([]string, error) {
	var keys []string
	kindPrefix := string(kind) + "/"
	for k := range m.records {
		if !strings.HasPrefix(k, kindPrefix) {
			continue
		}
		key := strings.TrimPrefix(k, kindPrefix)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Close() error { return nil }

type testDoc struct {
	Value string `json:"value"`
}

func newDualStore(t *testing.T, primary, secondary interfaces.RecordStore, readFallback, repair bool) *MetadataStore {
	t.Helper()
	cfg := &common.StorageConfig{
		Mode:             common.StoreModeDual,
		ReadFallback:     readFallback,
		RepairOnFallback: repair,
	}
	store, err := NewMetadataStore(arbor.NewLogger(), cfg, primary, secondary)
	require.NoError(t, err)
	return store
}

func TestDualWriteReadYourWrite(t *testing.T) {
	primary := newMemStore("badger")
	secondary := newMemStore("sqlite")
	store := newDualStore(t, primary, secondary, false, false)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, interfaces.KindBatch, "t1/batch_1", &testDoc{Value: "first"}))

	var got testDoc
	require.NoError(t, store.Get(ctx, interfaces.KindBatch, "t1/batch_1", &got))
	assert.Equal(t, "first", got.Value)

	// Both backends received the write
	assert.Len(t, primary.records, 1)
	assert.Len(t, secondary.records, 1)
}

func TestDualWriteShadowFailureDoesNotPropagate(t *testing.T) {
	primary := newMemStore("badger")
	primary.failPuts = true
	secondary := newMemStore("sqlite")
	store := newDualStore(t, primary, secondary, false, false)
	ctx := context.Background()

	// Shadow (primary) write fails but the call succeeds
	require.NoError(t, store.Put(ctx, interfaces.KindBatch, "t1/batch_1", &testDoc{Value: "first"}))

	// The write is still readable from the authoritative backend
	var got testDoc
	require.NoError(t, store.Get(ctx, interfaces.KindBatch, "t1/batch_1", &got))
	assert.Equal(t, "first", got.Value)
	assert.Empty(t, primary.records)
}

func TestDualWriteAuthoritativeFailureFatal(t *testing.T) {
	primary := newMemStore("badger")
	secondary := newMemStore("sqlite")
	secondary.failPuts = true
	store := newDualStore(t, primary, secondary, false, false)

	err := store.Put(context.Background(), interfaces.KindBatch, "t1/batch_1", &testDoc{Value: "first"})
	require.Error(t, err)

	// Nothing was shadow-written either; the authoritative write comes first
	assert.Empty(t, primary.records)
}

func TestReadFallbackFindsUnmigratedRecord(t *testing.T) {
	primary := newMemStore("badger")
	secondary := newMemStore("sqlite")
	store := newDualStore(t, primary, secondary, true, false)
	ctx := context.Background()

	// Record exists only in the original backend
	require.NoError(t, primary.Put(ctx, interfaces.KindFile, "t1/drawings/a.pdf", &testDoc{Value: "legacy"}))

	var got testDoc
	require.NoError(t, store.Get(ctx, interfaces.KindFile, "t1/drawings/a.pdf", &got))
	assert.Equal(t, "legacy", got.Value)

	// No repair configured, secondary stays empty
	assert.Empty(t, secondary.records)
}

func TestReadFallbackLazyRepair(t *testing.T) {
	primary := newMemStore("badger")
	secondary := newMemStore("sqlite")
	store := newDualStore(t, primary, secondary, true, true)
	ctx := context.Background()

	require.NoError(t, primary.Put(ctx, interfaces.KindFile, "t1/drawings/a.pdf", &testDoc{Value: "legacy"}))

	var got testDoc
	require.NoError(t, store.Get(ctx, interfaces.KindFile, "t1/drawings/a.pdf", &got))

	// The found record was copied into the migration target
	var repaired testDoc
	require.NoError(t, secondary.Get(ctx, interfaces.KindFile, "t1/drawings/a.pdf", &repaired))
	assert.Equal(t, "legacy", repaired.Value)
}

func TestReadFallbackMissReturnsNotFound(t *testing.T) {
	store := newDualStore(t, newMemStore("badger"), newMemStore("sqlite"), true, false)

	var got testDoc
	err := store.Get(context.Background(), interfaces.KindBatch, "t1/missing", &got)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestReadFallbackDisabledInSingleBackendModes(t *testing.T) {
	primary := newMemStore("badger")
	secondary := newMemStore("sqlite")
	ctx := context.Background()

	require.NoError(t, primary.Put(ctx, interfaces.KindBatch, "t1/batch_1", &testDoc{Value: "legacy"}))

	cfg := &common.StorageConfig{Mode: common.StoreModeSecondary, ReadFallback: true}
	store, err := NewMetadataStore(arbor.NewLogger(), cfg, primary, secondary)
	require.NoError(t, err)

	// Secondary mode never consults the primary backend
	var got testDoc
	assert.ErrorIs(t, store.Get(ctx, interfaces.KindBatch, "t1/batch_1", &got), interfaces.ErrNotFound)
}

func TestKeysMergeDuringMigrationWindow(t *testing.T) {
	primary := newMemStore("badger")
	secondary := newMemStore("sqlite")
	store := newDualStore(t, primary, secondary, true, false)
	ctx := context.Background()

	require.NoError(t, primary.Put(ctx, interfaces.KindBatch, "t1/batch_old", &testDoc{Value: "a"}))
	require.NoError(t, store.Put(ctx, interfaces.KindBatch, "t1/batch_new", &testDoc{Value: "b"}))

	keys, err := store.Keys(ctx, interfaces.KindBatch, "t1/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"t1/batch_new", "t1/batch_old"}, keys)
}

func TestModeValidation(t *testing.T) {
	logger := arbor.NewLogger()

	_, err := NewMetadataStore(logger, &common.StorageConfig{Mode: common.StoreModeDual}, newMemStore("badger"), nil)
	assert.Error(t, err)

	_, err = NewMetadataStore(logger, &common.StorageConfig{Mode: "both"}, newMemStore("badger"), newMemStore("sqlite"))
	assert.Error(t, err)

	store, err := NewMetadataStore(logger, &common.StorageConfig{Mode: common.StoreModePrimary}, newMemStore("badger"), nil)
	require.NoError(t, err)
	assert.Equal(t, common.StoreModePrimary, store.Mode())
}
