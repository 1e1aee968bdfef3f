package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"glassbooks/internal/core"
	"glassbooks/internal/ledger"
	"glassbooks/internal/storage/memory"
)

func validTx(id string) core.Transaction {
	return core.Transaction{
		ID:       id,
		Date:     core.NewDate(2024, 3, 5),
		Merchant: "Art Shop",
		Amount:   core.Money{Cents: 12000},
		Category: core.ArtMaterials,
	}
}

func validProject(id string) core.Project {
	return core.Project{
		ID:     id,
		Name:   "Exhibition 2025",
		Budget: core.Money{Cents: 500000},
		Status: core.ProjectActive,
	}
}

func TestAddTransactionNormalizesCollections(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	// No items, no tags: the export must still emit arrays, not null.
	if err := s.AddTransaction(ctx, validTx("tx-1")); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	data, err := json.Marshal(s.Export())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	for _, key := range []string{`"items":[]`, `"tags":[]`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("exported bundle missing %s: %s", key, data)
		}
	}
}

func TestImportNormalizesCollections(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	bundle := `{"transactions":[{"id":"tx-1","date":"2024-03-05","merchant":"Art Shop","amount":120,"category":"Art Materials"}],"projects":[],"exportedAt":"2024-03-05T00:00:00Z","version":"1.0"}`
	snap, err := ledger.DecodeBundle([]byte(bundle))
	if err != nil {
		t.Fatalf("DecodeBundle: %v", err)
	}
	if err := s.Import(ctx, snap); err != nil {
		t.Fatalf("Import: %v", err)
	}

	got := s.Transactions()[0]
	if got.Items == nil || got.Tags == nil {
		t.Errorf("imported transaction kept nil collections: items=%v tags=%v", got.Items, got.Tags)
	}
}

func TestAddTransactionNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	if err := s.AddTransaction(ctx, validTx("first")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddTransaction(ctx, validTx("second")); err != nil {
		t.Fatalf("add: %v", err)
	}

	txs := s.Transactions()
	if len(txs) != 2 || txs[0].ID != "second" || txs[1].ID != "first" {
		t.Fatalf("expected newest first, got %v", txs)
	}
}

func TestAddTransactionRejections(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	cases := []struct {
		name   string
		mutate func(*core.Transaction)
		want   error
	}{
		{"zero amount", func(tx *core.Transaction) { tx.Amount = core.Money{} }, core.ErrInvalidAmount},
		{"empty merchant", func(tx *core.Transaction) { tx.Merchant = " " }, core.ErrEmptyMerchant},
		{"unknown category", func(tx *core.Transaction) { tx.Category = "Misc" }, core.ErrUnknownCategory},
		{"unknown project", func(tx *core.Transaction) { tx.ProjectID = "ghost" }, ledger.ErrUnknownProject},
	}
	for _, tc := range cases {
		tx := validTx("t")
		tc.mutate(&tx)
		if err := s.AddTransaction(ctx, tx); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
	if len(s.Transactions()) != 0 {
		t.Fatalf("rejected transactions must not be stored")
	}
}

func TestAddTransactionStripsReceiptImage(t *testing.T) {
	ctx := context.Background()
	port := memory.New()
	s := ledger.New(port)

	tx := validTx("t")
	tx.ReceiptImage = "huge-base64-blob"
	if err := s.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := s.Transactions()[0].ReceiptImage; got != "" {
		t.Fatalf("receipt image must be stripped, got %q", got)
	}
	saved, _ := port.LastSaved()
	if saved.Transactions[0].ReceiptImage != "" {
		t.Fatalf("receipt image reached persistence")
	}
}

func TestAddTransactionToArchivedProject(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	p := validProject("p1")
	p.Status = core.ProjectArchived
	if err := s.AddProject(ctx, p); err != nil {
		t.Fatalf("add project: %v", err)
	}
	tx := validTx("t")
	tx.ProjectID = "p1"
	if err := s.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("archived projects still accept transactions: %v", err)
	}
}

func TestAddProjectRejections(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	p := validProject("p1")
	p.Name = ""
	if err := s.AddProject(ctx, p); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("got %v", err)
	}
	p = validProject("p2")
	p.Budget = core.Money{}
	if err := s.AddProject(ctx, p); !errors.Is(err, core.ErrInvalidBudget) {
		t.Fatalf("got %v", err)
	}
}

func TestDeleteProjectLeavesTransactions(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	if err := s.AddProject(ctx, validProject("p1")); err != nil {
		t.Fatalf("add project: %v", err)
	}
	tx := validTx("t1")
	tx.ProjectID = "p1"
	if err := s.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("add tx: %v", err)
	}

	if err := s.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s.Projects()) != 0 {
		t.Fatalf("project not removed")
	}
	txs := s.Transactions()
	if len(txs) != 1 || txs[0].ProjectID != "p1" {
		t.Fatalf("transaction must keep its (now dangling) reference, got %v", txs)
	}

	if err := s.DeleteProject(ctx, "p1"); !errors.Is(err, ledger.ErrUnknownProject) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestUpsertBudget(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())

	if err := s.UpsertBudget(ctx, core.Budget{Category: core.Food, Limit: core.Money{Cents: 50000}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Replace, not duplicate.
	if err := s.UpsertBudget(ctx, core.Budget{Category: core.Food, Limit: core.Money{Cents: 70000}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var foodCount int
	for _, b := range s.Budgets() {
		if b.Category == core.Food {
			foodCount++
			if b.Limit.Cents != 70000 {
				t.Fatalf("limit not replaced: %d", b.Limit.Cents)
			}
		}
	}
	if foodCount != 1 {
		t.Fatalf("expected exactly one Food budget, got %d", foodCount)
	}

	if err := s.UpsertBudget(ctx, core.Budget{Category: core.Food, Limit: core.Money{Cents: -1}}); !errors.Is(err, core.ErrNegativeLimit) {
		t.Fatalf("negative limit: got %v", err)
	}
	if err := s.UpsertBudget(ctx, core.Budget{Category: core.Food, Limit: core.Money{}}); err != nil {
		t.Fatalf("zero limit is allowed: %v", err)
	}
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())
	_ = s.AddTransaction(ctx, validTx("t"))
	_ = s.AddProject(ctx, validProject("p"))
	_ = s.UpsertBudget(ctx, core.Budget{Category: core.Travel, Limit: core.Money{Cents: 100}})

	if err := s.ResetAll(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(s.Transactions()) != 0 || len(s.Projects()) != 0 {
		t.Fatalf("reset must clear transactions and projects")
	}
	budgets := s.Budgets()
	if len(budgets) != 2 {
		t.Fatalf("expected default budgets, got %v", budgets)
	}
	if budgets[0].Category != core.Food || budgets[0].Limit.Cents != 60000 {
		t.Fatalf("default Food budget wrong: %v", budgets[0])
	}
	if budgets[1].Category != core.ArtMaterials || budgets[1].Limit.Cents != 30000 {
		t.Fatalf("default Art Materials budget wrong: %v", budgets[1])
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())
	_ = s.AddProject(ctx, validProject("p1"))
	tx := validTx("t1")
	tx.ProjectID = "p1"
	tx.Tags = []string{"Art", "supplies"}
	_ = s.AddTransaction(ctx, tx)
	_ = s.AddTransaction(ctx, validTx("t2"))
	_ = s.UpsertBudget(ctx, core.Budget{Category: core.Travel, Limit: core.Money{Cents: 20000}})

	data, err := json.Marshal(s.Export())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	restored := ledger.New(memory.New())
	snap, err := ledger.DecodeBundle(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := restored.Import(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}

	want, got := s.Transactions(), restored.Transactions()
	if len(got) != len(want) {
		t.Fatalf("transactions differ: %d vs %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Amount != want[i].Amount || got[i].ProjectID != want[i].ProjectID {
			t.Fatalf("transaction %d differs: %+v vs %+v", i, got[i], want[i])
		}
	}
	if len(restored.Projects()) != 1 || restored.Projects()[0].ID != "p1" {
		t.Fatalf("projects differ")
	}
	if len(restored.Budgets()) != len(s.Budgets()) {
		t.Fatalf("budgets differ")
	}
}

func TestImportWithoutBudgetsKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())
	_ = s.UpsertBudget(ctx, core.Budget{Category: core.Travel, Limit: core.Money{Cents: 20000}})
	before := len(s.Budgets())

	snap, err := ledger.DecodeBundle([]byte(`{"transactions":[],"projects":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := s.Import(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(s.Budgets()) != before {
		t.Fatalf("budgets must survive an import without a budgets field")
	}
}

func TestDecodeBundleRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"transactions not a sequence", `{"transactions":{"a":1},"projects":[]}`},
		{"transactions missing", `{"projects":[]}`},
		{"projects null", `{"transactions":[],"projects":null}`},
		{"not an object", `[1,2,3]`},
		{"invalid transaction", `{"transactions":[{"id":"x","date":"2024-01-01","merchant":"","amount":5,"category":"Food & Drink"}],"projects":[]}`},
	}
	for _, tc := range cases {
		_, err := ledger.DecodeBundle([]byte(tc.in))
		var verr *ledger.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if len(verr.Fields) == 0 {
			t.Fatalf("%s: expected field errors", tc.name)
		}
	}
}

func TestRejectedImportLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := ledger.New(memory.New())
	_ = s.AddTransaction(ctx, validTx("keep"))

	if _, err := ledger.DecodeBundle([]byte(`{"transactions":42,"projects":[]}`)); err == nil {
		t.Fatalf("expected decode failure")
	}
	if len(s.Transactions()) != 1 || s.Transactions()[0].ID != "keep" {
		t.Fatalf("store changed by a rejected import")
	}
}

type failingPort struct{ fail bool }

func (p *failingPort) Load(context.Context) (core.Snapshot, bool, error) {
	return core.Snapshot{}, false, nil
}

func (p *failingPort) Save(context.Context, core.Snapshot) error {
	if p.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestSaveFailureKeepsInMemoryState(t *testing.T) {
	ctx := context.Background()
	port := &failingPort{fail: true}
	s := ledger.New(port)

	err := s.AddTransaction(ctx, validTx("t"))
	if !errors.Is(err, ledger.ErrSnapshotSave) {
		t.Fatalf("expected ErrSnapshotSave, got %v", err)
	}
	// The mutation stays applied: memory remains the source of truth.
	if len(s.Transactions()) != 1 {
		t.Fatalf("mutation must survive a failed save")
	}
}

func TestOpenRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	seed := core.Snapshot{
		Transactions: []core.Transaction{validTx("t1")},
		Projects:     []core.Project{validProject("p1")},
		Budgets:      []core.Budget{{Category: core.Travel, Limit: core.Money{Cents: 100}}},
		Version:      core.SnapshotVersion,
	}
	s, err := ledger.Open(ctx, memory.Seed(seed))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(s.Transactions()) != 1 || len(s.Projects()) != 1 || len(s.Budgets()) != 1 {
		t.Fatalf("state not restored")
	}

	// No persisted state falls back to defaults.
	fresh, err := ledger.Open(ctx, memory.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(fresh.Budgets()) != 2 {
		t.Fatalf("expected default budgets")
	}
}
