package ledger

import (
	"context"

	"glassbooks/internal/core"
)

// SnapshotStore is the persistence port injected into the Store. The ledger
// serializes its full state through this interface after every mutation and
// reads it back once at startup.
type SnapshotStore interface {
	// Load returns the persisted snapshot. ok is false when no prior state
	// exists, which is not an error.
	Load(ctx context.Context) (snap core.Snapshot, ok bool, err error)

	// Save replaces the persisted state with the given snapshot.
	Save(ctx context.Context, snap core.Snapshot) error
}
