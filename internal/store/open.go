package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nhle/taskpulse/internal/model"
)

// Open returns the backend selected by cfg.Backend, creating its parent
// directory when needed.
func Open(cfg model.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case model.StorageSQLite, "":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(cfg.Path)
	case model.StorageDiskv:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewDiskStore(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
