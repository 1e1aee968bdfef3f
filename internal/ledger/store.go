// Package ledger owns the authoritative collections of transactions,
// projects, and budgets, enforces their creation invariants, and round-trips
// the whole state through an injected snapshot port.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"glassbooks/internal/core"
)

var (
	// ErrUnknownProject is returned when a transaction references a project
	// id that does not resolve at creation time.
	ErrUnknownProject = errors.New("unknown project")

	// ErrSnapshotSave marks a persistence failure after a mutation was
	// applied. The in-memory state remains the source of truth; callers
	// detect this with errors.Is and decide how loudly to surface it.
	ErrSnapshotSave = errors.New("snapshot save failed")
)

// DefaultBudgets returns the budget set restored by ResetAll.
func DefaultBudgets() []core.Budget {
	return []core.Budget{
		{Category: core.Food, Limit: core.Money{Cents: 60000}},
		{Category: core.ArtMaterials, Limit: core.Money{Cents: 30000}},
	}
}

// Store is the ledger. All operations are safe for concurrent use; each
// mutation is applied and persisted before the next caller proceeds.
type Store struct {
	mu           sync.Mutex
	transactions []core.Transaction
	projects     []core.Project
	budgets      []core.Budget
	port         SnapshotStore
	now          func() time.Time
}

// New creates an empty store with default budgets on the given port.
func New(port SnapshotStore) *Store {
	return &Store{
		port:    port,
		budgets: DefaultBudgets(),
		now:     time.Now,
	}
}

// Open creates a store and initializes it from the port's persisted state,
// falling back to defaults when none exists.
func Open(ctx context.Context, port SnapshotStore) (*Store, error) {
	s := New(port)
	snap, ok, err := port.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		s.transactions = snap.Transactions
		s.projects = snap.Projects
		if snap.Budgets != nil {
			s.budgets = snap.Budgets
		}
		slog.InfoContext(ctx, "Ledger restored from snapshot",
			"transactions", len(s.transactions),
			"projects", len(s.projects),
			"budgets", len(s.budgets))
	}
	return s, nil
}

// AddTransaction validates and inserts a transaction at the head of the
// sequence (newest first). The receipt image, if any, is stripped before the
// record is stored: it never reaches persistence.
func (s *Store) AddTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ProjectID != "" && !s.projectExists(t.ProjectID) {
		return fmt.Errorf("%w: %s", ErrUnknownProject, t.ProjectID)
	}

	t.ReceiptImage = ""
	normalizeCollections(&t)
	s.transactions = append([]core.Transaction{t}, s.transactions...)
	return s.persist(ctx)
}

// AddProject validates and appends a project.
func (s *Store) AddProject(ctx context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, p)
	return s.persist(ctx)
}

// DeleteProject removes the project. Transactions referencing it are left
// untouched; their project reference dangles and aggregation treats it as
// "no project".
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.projects[:0]
	found := false
	for _, p := range s.projects {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownProject, id)
	}
	s.projects = kept
	return s.persist(ctx)
}

// UpsertBudget replaces or inserts the budget for a category. A zero limit
// is accepted (no budget); negative limits and unknown categories are not.
func (s *Store) UpsertBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.budgets {
		if s.budgets[i].Category == b.Category {
			s.budgets[i].Limit = b.Limit
			replaced = true
			break
		}
	}
	if !replaced {
		s.budgets = append(s.budgets, b)
	}
	return s.persist(ctx)
}

// ResetAll clears transactions and projects and restores the default
// budgets. Authentication state lives elsewhere and is not touched.
func (s *Store) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = nil
	s.projects = nil
	s.budgets = DefaultBudgets()
	return s.persist(ctx)
}

// Export returns the full serializable state of the ledger.
func (s *Store) Export() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Import wholesale-replaces the collections with a decoded snapshot. Callers
// gate this behind DecodeBundle and their own confirmation flow: by the time
// a snapshot reaches here it is structurally valid and the replacement is
// unconditional. A nil budget slice keeps the current budgets.
func (s *Store) Import(ctx context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = snap.Transactions
	for i := range s.transactions {
		normalizeCollections(&s.transactions[i])
	}
	s.projects = snap.Projects
	if snap.Budgets != nil {
		s.budgets = snap.Budgets
	}
	return s.persist(ctx)
}

// normalizeCollections replaces nil item/tag slices so exports emit arrays,
// never null.
func normalizeCollections(t *core.Transaction) {
	if t.Items == nil {
		t.Items = []core.Item{}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
}

// Transactions returns a copy of the transaction sequence, newest first.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// Projects returns a copy of the projects in insertion order.
func (s *Store) Projects() []core.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// Project looks up a project by id.
func (s *Store) Project(id string) (core.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return core.Project{}, false
}

// Budgets returns a copy of the configured budgets.
func (s *Store) Budgets() []core.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Budget, len(s.budgets))
	copy(out, s.budgets)
	return out
}

func (s *Store) projectExists(id string) bool {
	for _, p := range s.projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) snapshotLocked() core.Snapshot {
	snap := core.Snapshot{
		Transactions: make([]core.Transaction, len(s.transactions)),
		Projects:     make([]core.Project, len(s.projects)),
		Budgets:      make([]core.Budget, len(s.budgets)),
		ExportedAt:   s.now().UTC(),
		Version:      core.SnapshotVersion,
	}
	copy(snap.Transactions, s.transactions)
	copy(snap.Projects, s.projects)
	copy(snap.Budgets, s.budgets)
	return snap
}

// persist writes the full snapshot through the port. The mutation that
// triggered it stays applied even when the write fails; the failure is
// reported, not rolled back.
func (s *Store) persist(ctx context.Context) error {
	if s.port == nil {
		return nil
	}
	if err := s.port.Save(ctx, s.snapshotLocked()); err != nil {
		slog.ErrorContext(ctx, "Snapshot save failed, in-memory state retained", "error", err)
		return fmt.Errorf("%w: %v", ErrSnapshotSave, err)
	}
	return nil
}
