package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/interfaces"
	"github.com/ternarybob/tenderdock/internal/storage/badger"
	"github.com/ternarybob/tenderdock/internal/storage/sqlite"
)

// NewStore opens the backend(s) the configured mode requires and returns the
// metadata store facade. Backends not needed by the mode are left closed.
func NewStore(logger arbor.ILogger, config *common.Config) (*MetadataStore, error) {
	var primary, secondary interfaces.RecordStore

	if config.Storage.Mode != common.StoreModeSecondary {
		db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
		if err != nil {
			return nil, fmt.Errorf("failed to open primary backend: %w", err)
		}
		primary = badger.NewRecordStorage(db, logger)
	}

	if config.Storage.Mode != common.StoreModePrimary {
		db, err := sqlite.NewSQLiteDB(logger, &config.Storage.SQLite)
		if err != nil {
			if primary != nil {
				primary.Close()
			}
			return nil, fmt.Errorf("failed to open secondary backend: %w", err)
		}
		secondary = sqlite.NewRecordStorage(db, logger)
	}

	store, err := NewMetadataStore(logger, &config.Storage, primary, secondary)
	if err != nil {
		if primary != nil {
			primary.Close()
		}
		if secondary != nil {
			secondary.Close()
		}
		return nil, err
	}

	logger.Info().
		Str("mode", string(config.Storage.Mode)).
		Bool("read_fallback", config.Storage.ReadFallback).
		Msg("Metadata store initialized")

	return store, nil
}
