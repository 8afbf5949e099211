package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/interfaces"
)

// RecordStorage implements interfaces.RecordStore on SQLite. This is the
// structured (secondary) metadata backend and the migration target.
type RecordStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewRecordStorage creates a SQLite-backed record store
func NewRecordStorage(db *SQLiteDB, logger arbor.ILogger) *RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a record by kind and key
func (s *RecordStorage) Get(ctx context.Context, kind interfaces.RecordKind, key string, out any) error {
	var data []byte
	err := s.db.DB().QueryRowContext(ctx,
		"SELECT data FROM records WHERE kind = ? AND key = ?",
		string(kind), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s record: %w", kind, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
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

	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO records (kind, key, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		string(kind), key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put %s record %s: %w", kind, key, err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *RecordStorage) Delete(ctx context.Context, kind interfaces.RecordKind, key string) error {
	_, err := s.db.DB().ExecContext(ctx,
		"DELETE FROM records WHERE kind = ? AND key = ?",
		string(kind), key)
	if err != nil {
		return fmt.Errorf("failed to delete %s record %s: %w", kind, key, err)
	}
	return nil
}

// Keys lists keys of a kind with the given prefix, sorted lexicographically
func (s *RecordStorage) Keys(ctx context.Context, kind interfaces.RecordKind, prefix string) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		"SELECT key FROM records WHERE kind = ? AND key LIKE ? || '%' ORDER BY key",
		string(kind), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s keys: %w", kind, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Name identifies this backend in logs
func (s *RecordStorage) Name() string {
	return "sqlite"
}

// Close closes the underlying database
func (s *RecordStorage) Close() error {
	return s.db.Close()
}
