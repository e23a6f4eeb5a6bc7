package database

import (
	"fmt"
	"path/filepath"

	"ct-go/internal/config"
)

// NewStoreFromConfig creates a Store based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, deviceID string) (*Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewStore(filepath.Join(cfg.DataDir, deviceID+".db"))
	case "memory":
		return NewStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
