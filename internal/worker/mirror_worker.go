// Package worker mirrors ledger transactions into a spreadsheet, driven by
// AMQP change events with periodic reconciliation as the backstop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"glassbooks/internal/amqp"
	"glassbooks/internal/core"
	"glassbooks/internal/sheets"
	"glassbooks/internal/storage"
)

// LedgerSource reads ledger state for mirroring. The SQLite snapshot store
// satisfies it.
type LedgerSource interface {
	Load(ctx context.Context) (core.Snapshot, bool, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
}

// MirrorWorker keeps the spreadsheet mirror in step with the ledger.
type MirrorWorker struct {
	source   LedgerSource
	appender sheets.TransactionAppender
	reader   sheets.MirrorReader
}

func NewMirrorWorker(source LedgerSource, appender sheets.TransactionAppender, reader sheets.MirrorReader) *MirrorWorker {
	return &MirrorWorker{
		source:   source,
		appender: appender,
		reader:   reader,
	}
}

// HandleEvent processes a single ledger change event from AMQP
func (w *MirrorWorker) HandleEvent(ctx context.Context, evt *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"kind", evt.Kind,
		"transaction_id", evt.TransactionID)

	switch evt.Kind {
	case amqp.EventTransactionCreated:
		return w.mirrorTransaction(ctx, evt.TransactionID)
	case amqp.EventSnapshotImported, amqp.EventSnapshotReset:
		// The whole ledger changed under us; resync from storage.
		return w.Reconcile(ctx)
	default:
		return fmt.Errorf("unknown event kind: %s", evt.Kind)
	}
}

func (w *MirrorWorker) mirrorTransaction(ctx context.Context, id string) error {
	t, err := w.source.GetTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// The transaction vanished between event and fetch (import or reset
		// replaced the ledger). The next reconcile settles the mirror.
		slog.WarnContext(ctx, "Transaction no longer exists, skipping mirror",
			"transaction_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", id, err)
	}

	ref, err := w.appender.Append(ctx, t)
	if err != nil {
		return fmt.Errorf("append to mirror: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored transaction",
		"transaction_id", id,
		"sheets_ref", ref,
		"merchant", t.Merchant,
		"amount_cents", t.Amount.Cents)

	return nil
}

// Reconcile appends every ledger transaction the mirror does not hold yet.
// It never removes mirror rows: the mirror is an append-only audit trail.
func (w *MirrorWorker) Reconcile(ctx context.Context) error {
	snap, ok, err := w.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger snapshot: %w", err)
	}
	if !ok {
		slog.InfoContext(ctx, "No ledger snapshot yet, nothing to reconcile")
		return nil
	}

	mirrored, err := w.reader.ListMirroredIDs(ctx)
	if err != nil {
		return fmt.Errorf("list mirrored ids: %w", err)
	}
	seen := make(map[string]bool, len(mirrored))
	for _, id := range mirrored {
		seen[id] = true
	}

	appended := 0
	errored := 0
	// The ledger is newest first; walk backwards so the mirror stays in
	// chronological order.
	for i := len(snap.Transactions) - 1; i >= 0; i-- {
		t := snap.Transactions[i]
		if seen[t.ID] {
			continue
		}
		if _, err := w.appender.Append(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction during reconcile",
				"transaction_id", t.ID, "error", err)
			errored++
			continue
		}
		appended++
	}

	slog.InfoContext(ctx, "Reconcile completed",
		"ledger_total", len(snap.Transactions),
		"appended", appended,
		"errors", errored)

	if errored > 0 {
		return fmt.Errorf("reconcile finished with %d errors", errored)
	}
	return nil
}

// RunPeriodicReconcile reconciles once immediately and then on every tick
// until ctx is done.
func (w *MirrorWorker) RunPeriodicReconcile(ctx context.Context, interval time.Duration) error {
	if err := w.Reconcile(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup reconcile failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping periodic reconcile", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.Reconcile(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic reconcile failed", "error", err)
			}
		}
	}
}
