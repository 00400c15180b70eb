package project

import (
	"errors"
	"fmt"
	"strings"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StoreConfig selects and locates the project store.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
	// Path is a directory for the file backend and a database file for
	// sqlite (":memory:" is accepted).
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Backend: BackendFile, Path: "wallsight-projects"}
}

// Validate checks the store configuration.
func (c StoreConfig) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Backend)
	}
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("store.path is required")
	}
	return nil
}

// Open opens the store described by cfg.
func Open(cfg StoreConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.ToLower(cfg.Backend) == BackendSQLite {
		return OpenSQLite(cfg.Path)
	}
	return NewFileStore(cfg.Path)
}
