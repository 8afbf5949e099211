// -----------------------------------------------------------------------
// MetadataStore - mode-switching facade over the two metadata backends
// -----------------------------------------------------------------------

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
)

// MetadataStore fronts the Badger (primary, original) and SQLite (secondary,
// migration target) backends behind the generic RecordStore contract.
//
// Modes:
//   - primary:   single-backend pass-through to Badger
//   - secondary: single-backend pass-through to SQLite
//   - dual:      writes go to both; the SQLite write must succeed, the Badger
//     write is best-effort and logged on failure. Reads hit SQLite; with
//     read_fallback enabled a miss falls back to Badger and can lazily
//     repair SQLite with the found value.
//
// The facade has no knowledge of Batch/File semantics.
type MetadataStore struct {
	primary   interfaces.RecordStore
	secondary interfaces.RecordStore

	mode             common.StoreMode
	readFallback     bool
	repairOnFallback bool

	logger arbor.ILogger
}

// NewMetadataStore creates the facade. primary and secondary may be nil for
// the modes that do not touch them.
func NewMetadataStore(logger arbor.ILogger, cfg *common.StorageConfig, primary, secondary interfaces.RecordStore) (*MetadataStore, error) {
	switch cfg.Mode {
	case common.StoreModePrimary:
		if primary == nil {
			return nil, fmt.Errorf("storage mode %q requires the primary backend", cfg.Mode)
		}
	case common.StoreModeSecondary:
		if secondary == nil {
			return nil, fmt.Errorf("storage mode %q requires the secondary backend", cfg.Mode)
		}
		if cfg.ReadFallback {
			// Fallback exists strictly for the dual-write migration window.
			logger.Warn().Msg("read_fallback is ignored in secondary mode - migration should be finalized")
		}
	case common.StoreModeDual:
		if primary == nil || secondary == nil {
			return nil, fmt.Errorf("storage mode %q requires both backends", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", cfg.Mode)
	}

	return &MetadataStore{
		primary:          primary,
		secondary:        secondary,
		mode:             cfg.Mode,
		readFallback:     cfg.ReadFallback,
		repairOnFallback: cfg.RepairOnFallback,
		logger:           logger,
	}, nil
}

// authoritative returns the backend reads and fatal writes go to
func (m *MetadataStore) authoritative() interfaces.RecordStore {
	switch m.mode {
	case common.StoreModePrimary:
		return m.primary
	default:
		// dual mode reads from the migration target
		return m.secondary
	}
}

// Get retrieves a record from the authoritative backend, falling back to the
// primary backend during the dual-write migration window.
func (m *MetadataStore) Get(ctx context.Context, kind interfaces.RecordKind, key string, out any) error {
	auth := m.authoritative()
	err := auth.Get(ctx, kind, key, out)
	if err == nil {
		return nil
	}

	if m.mode != common.StoreModeDual || !m.readFallback {
		return err
	}

	if !errors.Is(err, interfaces.ErrNotFound) {
		m.logger.Warn().Err(err).
			Str("backend", auth.Name()).
			Str("kind", string(kind)).
			Str("key", key).
			Msg("Authoritative read failed, falling back to primary backend")
	}

	if fbErr := m.primary.Get(ctx, kind, key, out); fbErr != nil {
		// Report the authoritative error unless the fallback found nothing either.
		if errors.Is(fbErr, interfaces.ErrNotFound) {
			return err
		}
		return fbErr
	}

	if m.repairOnFallback {
		if repErr := auth.Put(ctx, kind, key, out); repErr != nil {
			m.logger.Warn().Err(repErr).
				Str("kind", string(kind)).
				Str("key", key).
				Msg("Lazy repair of authoritative backend failed")
		}
	}

	return nil
}

// Put writes a record. In dual mode the authoritative write must succeed; the
// shadow write must never block or fail the caller.
func (m *MetadataStore) Put(ctx context.Context, kind interfaces.RecordKind, key string, record any) error {
	if err := m.authoritative().Put(ctx, kind, key, record); err != nil {
		return err
	}

	if m.mode == common.StoreModeDual {
		if err := m.primary.Put(ctx, kind, key, record); err != nil {
			m.logger.Warn().Err(err).
				Str("backend", m.primary.Name()).
				Str("kind", string(kind)).
				Str("key", key).
				Msg("Shadow write failed during dual-write mode")
		}
	}

	return nil
}

// Delete removes a record from the active backend(s)
func (m *MetadataStore) Delete(ctx context.Context, kind interfaces.RecordKind, key string) error {
	if err := m.authoritative().Delete(ctx, kind, key); err != nil {
		return err
	}

	if m.mode == common.StoreModeDual {
		if err := m.primary.Delete(ctx, kind, key); err != nil {
			m.logger.Warn().Err(err).
				Str("backend", m.primary.Name()).
				Str("kind", string(kind)).
				Str("key", key).
				Msg("Shadow delete failed during dual-write mode")
		}
	}

	return nil
}

// Keys lists keys from the authoritative backend. During the dual-write
// migration window with read fallback enabled, keys still only present in the
// primary backend are merged in so enumeration does not miss unmigrated records.
func (m *MetadataStore) Keys(ctx context.Context, kind interfaces.RecordKind, prefix string) ([]string, error) {
	keys, err := m.authoritative().Keys(ctx, kind, prefix)
	if err != nil {
		return nil, err
	}

	if m.mode != common.StoreModeDual || !m.readFallback {
		return keys, nil
	}

	primaryKeys, err := m.primary.Keys(ctx, kind, prefix)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("kind", string(kind)).
			Msg("Fallback key enumeration failed, returning authoritative keys only")
		return keys, nil
	}

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for _, k := range primaryKeys {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Name identifies the facade in logs
func (m *MetadataStore) Name() string {
	return "metadata"
}

// Close closes all configured backends
func (m *MetadataStore) Close() error {
	var firstErr error
	if m.primary != nil {
		if err := m.primary.Close(); err != nil {
			firstErr = err
		}
	}
	if m.secondary != nil {
		if err := m.secondary.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Mode returns the active store mode
func (m *MetadataStore) Mode() common.StoreMode {
	return m.mode
}

// Health describes the active migration state for the status endpoint
func (m *MetadataStore) Health() interfaces.StoreHealth {
	health := interfaces.StoreHealth{
		Mode:             string(m.mode),
		ReadFallback:     m.readFallback,
		RepairOnFallback: m.repairOnFallback,
	}
	if m.primary != nil {
		health.Primary = m.primary.Name()
	}
	if m.secondary != nil {
		health.Secondary = m.secondary.Name()
	}
	return health
}
