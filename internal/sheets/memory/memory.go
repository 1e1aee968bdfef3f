// Package memory is an in-process spreadsheet mirror for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"glassbooks/internal/core"
	ports "glassbooks/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows []core.Transaction
}

var (
	_ ports.TransactionAppender = (*Mirror)(nil)
	_ ports.MirrorReader        = (*Mirror)(nil)
)

func New() *Mirror {
	return &Mirror{}
}

func (m *Mirror) Append(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, t)
	return fmt.Sprintf("memory!A%d", len(m.rows)), nil
}

func (m *Mirror) ListMirroredIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(m.rows))
	for i, t := range m.rows {
		ids[i] = t.ID
	}
	return ids, nil
}

// Rows returns a copy of everything appended so far.
func (m *Mirror) Rows() []core.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Transaction(nil), m.rows...)
}
