// Package storage is the SQLite snapshot store. Every save replaces the
// whole ledger in one transaction, mirroring the serialize-on-mutation
// contract of the snapshot port.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"glassbooks/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups for ids that do not exist.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save replaces the persisted ledger with the snapshot atomically.
func (s *SQLiteStore) Save(ctx context.Context, snap core.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "projects", "budgets", "snapshot_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, t := range snap.Transactions {
		items, err := json.Marshal(t.Items)
		if err != nil {
			return fmt.Errorf("marshal items of %s: %w", t.ID, err)
		}
		tags, err := json.Marshal(t.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags of %s: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (id, position, date, merchant, amount_cents, category, items, tags, project_id, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, i, t.Date.String(), t.Merchant, t.Amount.Cents, string(t.Category),
			string(items), string(tags), t.ProjectID, t.Note)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	for i, p := range snap.Projects {
		start := ""
		if !p.StartDate.IsZero() {
			start = p.StartDate.String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, position, name, budget_cents, description, status, start_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, i, p.Name, p.Budget.Cents, p.Description, string(p.Status), start)
		if err != nil {
			return fmt.Errorf("insert project %s: %w", p.ID, err)
		}
	}

	for i, b := range snap.Budgets {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (category, position, limit_cents) VALUES (?, ?, ?)`,
			string(b.Category), i, b.Limit.Cents)
		if err != nil {
			return fmt.Errorf("insert budget %s: %w", b.Category, err)
		}
	}

	exportedAt := snap.ExportedAt
	if exportedAt.IsZero() {
		exportedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, exported_at, version) VALUES (1, ?, ?)`,
		exportedAt.Format(time.RFC3339), snap.Version)
	if err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Load rebuilds the snapshot from the database. ok is false when nothing has
// ever been saved.
func (s *SQLiteStore) Load(ctx context.Context) (core.Snapshot, bool, error) {
	var snap core.Snapshot

	var exportedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT exported_at, version FROM snapshot_meta WHERE id = 1`).
		Scan(&exportedAt, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, false, nil
	}
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("read snapshot meta: %w", err)
	}
	if ts, perr := time.Parse(time.RFC3339, exportedAt); perr == nil {
		snap.ExportedAt = ts
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, merchant, amount_cents, category, items, tags, project_id, note
		 FROM transactions ORDER BY position`)
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("read transactions: %w", err)
	}
	defer rows.Close()
	snap.Transactions = []core.Transaction{}
	for rows.Next() {
		var (
			t           core.Transaction
			date        string
			category    string
			items, tags string
		)
		if err := rows.Scan(&t.ID, &date, &t.Merchant, &t.Amount.Cents, &category, &items, &tags, &t.ProjectID, &t.Note); err != nil {
			return core.Snapshot{}, false, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return core.Snapshot{}, false, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		t.Category = core.Category(category)
		if err := json.Unmarshal([]byte(items), &t.Items); err != nil {
			return core.Snapshot{}, false, fmt.Errorf("transaction %s items: %w", t.ID, err)
		}
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return core.Snapshot{}, false, fmt.Errorf("transaction %s tags: %w", t.ID, err)
		}
		snap.Transactions = append(snap.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return core.Snapshot{}, false, fmt.Errorf("iterate transactions: %w", err)
	}

	snap.Projects, err = s.loadProjects(ctx)
	if err != nil {
		return core.Snapshot{}, false, err
	}
	snap.Budgets, err = s.loadBudgets(ctx)
	if err != nil {
		return core.Snapshot{}, false, err
	}
	return snap, true, nil
}

// GetTransaction looks up a single transaction by id. The mirror worker uses
// this to fetch full records referenced by change events.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var (
		t           core.Transaction
		date        string
		category    string
		items, tags string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, date, merchant, amount_cents, category, items, tags, project_id, note
		 FROM transactions WHERE id = ?`, id).
		Scan(&t.ID, &date, &t.Merchant, &t.Amount.Cents, &category, &items, &tags, &t.ProjectID, &t.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("read transaction %s: %w", id, err)
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, err)
	}
	t.Category = core.Category(category)
	if err := json.Unmarshal([]byte(items), &t.Items); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s items: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s tags: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) loadProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, budget_cents, description, status, start_date
		 FROM projects ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}
	defer rows.Close()

	projects := []core.Project{}
	for rows.Next() {
		var (
			p      core.Project
			status string
			start  string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Budget.Cents, &p.Description, &status, &start); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Status = core.ProjectStatus(status)
		if start != "" {
			if p.StartDate, err = core.ParseDate(start); err != nil {
				return nil, fmt.Errorf("project %s start date: %w", p.ID, err)
			}
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) loadBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, limit_cents FROM budgets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("read budgets: %w", err)
	}
	defer rows.Close()

	budgets := []core.Budget{}
	for rows.Next() {
		var (
			b        core.Budget
			category string
		)
		if err := rows.Scan(&category, &b.Limit.Cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Category = core.Category(category)
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}
