package sheets

import (
	"context"

	"glassbooks/internal/core"
)

// Ports for the spreadsheet mirror.
type (
	// TransactionAppender writes one transaction row to the mirror.
	TransactionAppender interface {
		Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	// MirrorReader reports which transaction ids the mirror already holds,
	// so reconciliation can append only what is missing.
	MirrorReader interface {
		ListMirroredIDs(ctx context.Context) ([]string, error)
	}
)
