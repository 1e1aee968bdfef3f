package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"glassbooks/internal/amqp"
	"glassbooks/internal/core"
	"glassbooks/internal/ledger"
	"glassbooks/internal/scan"
)

// ErrStaleScan reports a recognition result whose originating request was
// superseded by a newer scan.
var ErrStaleScan = errors.New("scan superseded by a newer request")

// EventPublisher pushes ledger change events to the broker. A nil publisher
// disables events; publish failures never fail the mutation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, evt *amqp.LedgerEvent) error
}

// LedgerService orchestrates ledger mutations across the store, the event
// broker, and the receipt recognizer.
type LedgerService struct {
	store      *ledger.Store
	events     EventPublisher
	recognizer scan.Recognizer
	now        func() time.Time
	scanSeq    atomic.Uint64
}

func NewLedgerService(store *ledger.Store, events EventPublisher, recognizer scan.Recognizer) *LedgerService {
	return &LedgerService{
		store:      store,
		events:     events,
		recognizer: recognizer,
		now:        time.Now,
	}
}

// AddTransaction assigns an id if missing, records the transaction, and
// publishes a change event. A snapshot-save failure is returned to the caller
// but the transaction stays applied, so the event is still published.
func (s *LedgerService) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	err := s.store.AddTransaction(ctx, t)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.NewTransactionCreated(t.ID))
	return t, err
}

// AddProject assigns an id if missing and records the project.
func (s *LedgerService) AddProject(ctx context.Context, p core.Project) (core.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = core.ProjectActive
	}

	err := s.store.AddProject(ctx, p)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		return core.Project{}, err
	}
	return p, err
}

func (s *LedgerService) DeleteProject(ctx context.Context, id string) error {
	return s.store.DeleteProject(ctx, id)
}

func (s *LedgerService) UpsertBudget(ctx context.Context, b core.Budget) error {
	return s.store.UpsertBudget(ctx, b)
}

// ResetAll wipes the ledger back to defaults and announces it.
func (s *LedgerService) ResetAll(ctx context.Context) error {
	err := s.store.ResetAll(ctx)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		return err
	}
	s.publish(ctx, amqp.NewSnapshotReset())
	return err
}

// Export returns the full serializable ledger state.
func (s *LedgerService) Export() core.Snapshot {
	return s.store.Export()
}

// ValidateBundle dry-runs bundle decoding without touching the store.
func (s *LedgerService) ValidateBundle(data []byte) error {
	_, err := ledger.DecodeBundle(data)
	return err
}

// ImportBundle decodes and applies a snapshot bundle. The apply is a full
// replace; validation failures leave the store untouched.
func (s *LedgerService) ImportBundle(ctx context.Context, data []byte) error {
	snap, err := ledger.DecodeBundle(data)
	if err != nil {
		return err
	}

	err = s.store.Import(ctx, snap)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		return err
	}
	s.publish(ctx, amqp.NewSnapshotImported())
	return err
}

// ScanReceipt runs recognition on the image and normalizes the result into a
// transaction candidate. The candidate is not recorded; the caller confirms
// it through AddTransaction. A result whose request was superseded by a newer
// scan is discarded.
func (s *LedgerService) ScanReceipt(ctx context.Context, image []byte, mimeType string) (core.Transaction, error) {
	if s.recognizer == nil {
		return core.Transaction{}, scan.ErrRecognition
	}

	seq := s.scanSeq.Add(1)
	result, err := s.recognizer.AnalyzeReceipt(ctx, image, mimeType)
	if err != nil {
		return core.Transaction{}, err
	}
	if seq != s.scanSeq.Load() {
		return core.Transaction{}, ErrStaleScan
	}

	return scan.Normalize(result, s.now())
}

func (s *LedgerService) Transactions() []core.Transaction { return s.store.Transactions() }
func (s *LedgerService) Projects() []core.Project         { return s.store.Projects() }
func (s *LedgerService) Budgets() []core.Budget           { return s.store.Budgets() }

func (s *LedgerService) Project(id string) (core.Project, bool) {
	return s.store.Project(id)
}

func (s *LedgerService) publish(ctx context.Context, evt *amqp.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, evt); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", evt.Kind, "transaction_id", evt.TransactionID, "error", err)
		// Don't fail the request - the mutation is already applied locally
	}
}
