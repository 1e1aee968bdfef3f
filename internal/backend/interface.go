package backend

import (
	"context"

	"glassbooks/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the snapshot store and optional cleanup function
type Result struct {
	Store   ledger.SnapshotStore
	Cleanup CleanupFunc
}

// Factory creates snapshot stores based on configuration
type Factory interface {
	// CreateBackend creates a snapshot store based on the provided config
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// File specific
	SnapshotPath string
}

// Type represents the kind of snapshot store backing the ledger
type Type string

const (
	SQLiteBackend Type = "sqlite"
	FileBackend   Type = "file"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, FileBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
