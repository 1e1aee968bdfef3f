package http

import (
	"errors"
	"net/http"

	"glassbooks/internal/budget"
	"glassbooks/internal/core"
	"glassbooks/internal/ledger"
)

// budgetView is a category budget with the spend of the requested month and
// the evaluator's verdict.
type budgetView struct {
	core.Budget
	Spend  core.Money    `json:"spend"`
	Status budget.Status `json:"status"`
}

type budgetsResponse struct {
	Year    int          `json:"year"`
	Month   int          `json:"month"`
	Budgets []budgetView `json:"budgets"`
}

// handleListBudgets evaluates every category budget against the given
// month's spend (current month by default).
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	spend := map[core.Category]int64{}
	for _, t := range s.svc.Transactions() {
		if core.PartitionOf(t.Category) != core.Expense || !t.Date.InMonth(year, month) {
			continue
		}
		spend[t.Category] += t.Amount.Cents
	}

	budgets := s.svc.Budgets()
	views := make([]budgetView, 0, len(budgets))
	for _, b := range budgets {
		monthSpend := core.Money{Cents: spend[b.Category]}
		views = append(views, budgetView{
			Budget: b,
			Spend:  monthSpend,
			Status: budget.EvaluateCategory(monthSpend, b.Limit),
		})
	}

	writeJSON(w, http.StatusOK, budgetsResponse{Year: year, Month: month, Budgets: views})
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var b core.Budget
	if err := decodeJSON(r, &b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.svc.UpsertBudget(r.Context(), b)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"budget":    b,
		"persisted": err == nil,
	})
}
