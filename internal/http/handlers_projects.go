package http

import (
	"errors"
	"net/http"

	"glassbooks/internal/budget"
	"glassbooks/internal/core"
	"glassbooks/internal/ledger"
	"glassbooks/internal/report"
)

// projectView decorates a project with its running spend, utilization and
// budget status so clients never aggregate on their own.
type projectView struct {
	core.Project
	Spend        core.Money    `json:"spend"`
	Utilization  float64       `json:"utilization"`
	BudgetStatus budget.Status `json:"budgetStatus"`
	Count        int           `json:"transactionCount"`
}

type projectsResponse struct {
	Projects []projectView `json:"projects"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	txs := s.svc.Transactions()
	projects := s.svc.Projects()

	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		totals := report.ProjectSpend(txs, p.ID)
		views = append(views, projectView{
			Project:      p,
			Spend:        totals.Spend,
			Utilization:  report.Utilization(totals.Spend, p.Budget),
			BudgetStatus: budget.EvaluateProject(totals.Spend, p.Budget),
			Count:        totals.Count,
		})
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: views})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p core.Project
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.svc.AddProject(r.Context(), p)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"project":   created,
		"persisted": err == nil,
	})
}

// handleDeleteProject removes the project record. Transactions keep their
// reference; aggregation treats the dangling ID as "no project".
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.svc.DeleteProject(r.Context(), id)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":   id,
		"persisted": err == nil,
	})
}
