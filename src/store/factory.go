package store

import (
	"database/sql"
	"fmt"

	"github.com/username/budgetwise/backend/src/logger"
)

// Backend names accepted by NewFromConfig.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// NewFromConfig selects a DocumentStore implementation by name. The SQLite
// backend requires an initialized database handle; the memory backend ignores
// it.
func NewFromConfig(backend string, db *sql.DB) (DocumentStore, error) {
	switch backend {
	case BackendSQLite, "":
		if db == nil {
			return nil, fmt.Errorf("sqlite backend requires an initialized database")
		}
		logger.L.Info("Initialized SQLite document store")
		return NewSQLiteStore(db), nil
	case BackendMemory:
		logger.L.Info("Initialized in-memory document store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported data backend: %s", backend)
	}
}
