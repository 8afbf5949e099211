package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// storedRecord is the persistence envelope for all record kinds. The payload
// is kept as JSON so the store stays agnostic of domain types.
type storedRecord struct {
	ID        string `badgerhold:"key"` // kind + "/" + key
	Kind      string `badgerholdIndex:"Kind"`
	Key       string
	Data      []byte
	UpdatedAt time.Time
}

// RecordStorage implements interfaces.RecordStore on Badger. This is the
// original (primary) metadata backend.
type RecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecordStorage creates a Badger-backed record store
func NewRecordStorage(db *BadgerDB, logger arbor.ILogger) *RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

func recordID(kind interfaces.RecordKind, key string) string {
	return string(kind) + "/" + key
}

// Get retrieves a record by kind and key
func (s *RecordStorage) Get(ctx context.Context, kind interfaces.RecordKind, key string, out any) error {
	var rec storedRecord
	err := s.db.Store().Get(recordID(kind, key), &rec)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s record: %w", kind, err)
	}

	if err := json.Unmarshal(rec.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s record %s: %w", kind, key, err)
	}
	return nil
}

// Put stores a record, replacing any existing one under the same kind and key
func (s *RecordStorage) Put(ctx context.Context, kind interfaces.RecordKind, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s record %s: %w", kind, key, err)
	}

	rec := storedRecord{
		ID:        recordID(kind, key),
		Kind:      string(kind),
		Key:       key,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(rec.ID, &rec); err != nil {
		return fmt.Errorf("failed to put %s record %s: %w", kind, key, err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *RecordStorage) Delete(ctx context.Context, kind interfaces.RecordKind, key string) error {
	err := s.db.Store().Delete(recordID(kind, key), &storedRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete %s record %s: %w", kind, key, err)
	}
	return nil
}

// Keys lists keys of a kind with the given prefix, sorted lexicographically
func (s *RecordStorage) Keys(ctx context.Context, kind interfaces.RecordKind, prefix string) ([]string, error) {
	var records []storedRecord
	query := badgerhold.Where("Kind").Eq(string(kind)).Index("Kind")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list %s keys: %w", kind, err)
	}

	keys := make([]string, 0, len(records))
	for _, rec := range records {
		if prefix == "" || strings.HasPrefix(rec.Key, prefix) {
			keys = append(keys, rec.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Name identifies this backend in logs
func (s *RecordStorage) Name() string {
	return "badger"
}

// Close closes the underlying database
func (s *RecordStorage) Close() error {
	return s.db.Close()
}
