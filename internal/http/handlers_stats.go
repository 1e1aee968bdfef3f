package http

import (
	"net/http"
	"strings"

	"glassbooks/internal/core"
	"glassbooks/internal/report"
)

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	writeJSON(w, http.StatusOK, report.Monthly(s.svc.Transactions(), year, month))
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	date := core.DateOf(timeNow())
	if dateStr != "" {
		parsed, err := core.ParseDate(dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	writeJSON(w, http.StatusOK, report.Daily(s.svc.Transactions(), date))
}

// handleCategoryStats breaks expenses down per category, optionally scoped
// to one month.
func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	txs := s.svc.Transactions()
	if strings.TrimSpace(r.URL.Query().Get("year")) != "" ||
		strings.TrimSpace(r.URL.Query().Get("month")) != "" {
		year, month := parseYearMonth(r)
		txs = filterTransactions(txs, func(t core.Transaction) bool {
			return t.Date.InMonth(year, month)
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": report.CategoryBreakdown(txs),
	})
}

func (s *Server) handleTagStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tags": report.TagBreakdown(s.svc.Transactions()),
	})
}
