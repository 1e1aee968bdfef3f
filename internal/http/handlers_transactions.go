package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"glassbooks/internal/core"
	"glassbooks/internal/ledger"
)

type transactionsResponse struct {
	Transactions []core.Transaction `json:"transactions"`
	Total        int                `json:"total"`
}

type createdTransactionResponse struct {
	Transaction core.Transaction `json:"transaction"`
	// Persisted is false when the mutation was applied in memory but the
	// snapshot write failed. Retrying the request would duplicate the
	// record, so the failure is reported rather than returned as an error.
	Persisted bool `json:"persisted"`
}

// handleListTransactions returns the ledger newest first, optionally
// filtered by category, project or month.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.svc.Transactions()
	q := r.URL.Query()

	if category := strings.TrimSpace(q.Get("category")); category != "" {
		txs = filterTransactions(txs, func(t core.Transaction) bool {
			return string(t.Category) == category
		})
	}
	if projectID := strings.TrimSpace(q.Get("project")); projectID != "" {
		txs = filterTransactions(txs, func(t core.Transaction) bool {
			return t.ProjectID == projectID
		})
	}
	yearStr := strings.TrimSpace(q.Get("year"))
	monthStr := strings.TrimSpace(q.Get("month"))
	if yearStr != "" || monthStr != "" {
		year, month := parseYearMonth(r)
		if monthStr == "" {
			// Year without month covers the whole year.
			txs = filterTransactions(txs, func(t core.Transaction) bool {
				return t.Date.Year() == year
			})
		} else {
			txs = filterTransactions(txs, func(t core.Transaction) bool {
				return t.Date.InMonth(year, month)
			})
		}
	}

	total := len(txs)
	if limitStr := strings.TrimSpace(q.Get("limit")); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit >= 0 && limit < len(txs) {
			txs = txs[:limit]
		}
	}

	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: txs, Total: total})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if err := decodeJSON(r, &tx); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.svc.AddTransaction(r.Context(), tx)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		writeDomainError(w, err)
		return
	}

	s.structured.LogTransactionCreated(r.Context(), created.ID, created.Merchant,
		created.Amount.Cents, string(created.Category))
	writeJSON(w, http.StatusCreated, createdTransactionResponse{
		Transaction: created,
		Persisted:   err == nil,
	})
}

func filterTransactions(txs []core.Transaction, keep func(core.Transaction) bool) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
