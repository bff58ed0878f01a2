package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/adapters/store"
	"github.com/callwarden/call-screener/internal/config"
	"github.com/callwarden/call-screener/internal/core"
)

// Stores bundles the four persistence ports, which every backend implements
// together.
type Stores struct {
	PhoneNumbers core.PhoneNumberStore
	CallLog      core.CallLogStore
	SpamReports  core.SpamReportStore
	Verification core.VerificationStore

	closer func() error
}

// Close releases the backing database, if any.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// StoreFactory creates store backends based on configuration.
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory.
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{cfg: cfg, logger: logger}
}

// CreateStores creates the configured store backend.
func (f *StoreFactory) CreateStores() (*Stores, error) {
	storeType := f.cfg.GetString("store.type")
	switch storeType {
	case "memory":
		mem := store.NewMemoryStore(f.logger)
		return &Stores{
			PhoneNumbers: mem,
			CallLog:      mem,
			SpamReports:  mem,
			Verification: mem,
		}, nil
	case "sqlite":
		sqlitePath := f.cfg.GetString("store.sqlite_path")
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		db, err := store.NewSQLiteStore(sqlitePath, f.logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			PhoneNumbers: db,
			CallLog:      db,
			SpamReports:  db,
			Verification: db,
			closer:       db.Close,
		}, nil
	case "postgres":
		db, err := store.NewPostgresStore(context.Background(), f.cfg.GetString("store.postgres_url"), f.logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			PhoneNumbers: db,
			CallLog:      db,
			SpamReports:  db,
			Verification: db,
			closer: func() error {
				db.Close()
				return nil
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
