// Package report computes every derived view of the ledger: monthly and
// daily summaries, category and tag breakdowns, and per-project spend.
//
// All functions are pure. They take the full transaction sequence and
// recompute from scratch on every call; at personal-scale volumes the O(n)
// pass is cheaper than keeping caches coherent.
package report

import (
	"sort"
	"strings"

	"glassbooks/internal/core"
)

const (
	topCategoryCount = 3
	topTagCount      = 10
)

// CategoryAmount is an amount summed for one category.
type CategoryAmount struct {
	Category core.Category `json:"category"`
	Amount   core.Money    `json:"amount"`
}

// MonthStats summarizes one calendar month.
type MonthStats struct {
	Year          int              `json:"year"`
	Month         int              `json:"month"`
	Income        core.Money       `json:"income"`
	Expense       core.Money       `json:"expense"`
	Net           core.Money       `json:"net"`
	TopCategories []CategoryAmount `json:"topCategories"`
}

// Monthly partitions the month's transactions into income and expense and
// ranks the three largest expense categories. Ties rank in taxonomy order.
func Monthly(txs []core.Transaction, year, month int) MonthStats {
	stats := MonthStats{Year: year, Month: month}
	sums := map[core.Category]int64{}
	for _, t := range txs {
		if !t.Date.InMonth(year, month) {
			continue
		}
		if core.PartitionOf(t.Category) == core.Income {
			stats.Income = stats.Income.Add(t.Amount)
			continue
		}
		stats.Expense = stats.Expense.Add(t.Amount)
		sums[t.Category] += t.Amount.Cents
	}
	stats.Net = core.Money{Cents: stats.Income.Cents - stats.Expense.Cents}

	ranked := rankCategories(sums)
	if len(ranked) > topCategoryCount {
		ranked = ranked[:topCategoryCount]
	}
	stats.TopCategories = ranked
	return stats
}

// DayStats is a snapshot of a single calendar date: the expense total and the
// number of transactions recorded that day (income ones included in the
// count, matching the original behavior).
type DayStats struct {
	Date    core.Date  `json:"date"`
	Expense core.Money `json:"expense"`
	Count   int        `json:"count"`
}

// Daily sums expenses for transactions whose date equals the given date
// exactly.
func Daily(txs []core.Transaction, date core.Date) DayStats {
	stats := DayStats{Date: date}
	for _, t := range txs {
		if !t.Date.SameDay(date) {
			continue
		}
		stats.Count++
		if core.PartitionOf(t.Category) == core.Expense {
			stats.Expense = stats.Expense.Add(t.Amount)
		}
	}
	return stats
}

// CategoryShare is one category's slice of the expense total.
type CategoryShare struct {
	Category core.Category `json:"category"`
	Amount   core.Money    `json:"amount"`
	// Percent of the set's expense total. Zero when the total is zero; the
	// undefined division never escapes as NaN.
	Percent float64 `json:"percent"`
}

// CategoryBreakdown groups expense amounts by category, sorted descending.
func CategoryBreakdown(txs []core.Transaction) []CategoryShare {
	sums := map[core.Category]int64{}
	var total int64
	for _, t := range txs {
		if core.PartitionOf(t.Category) != core.Expense {
			continue
		}
		sums[t.Category] += t.Amount.Cents
		total += t.Amount.Cents
	}

	ranked := rankCategories(sums)
	out := make([]CategoryShare, len(ranked))
	for i, ca := range ranked {
		share := CategoryShare{Category: ca.Category, Amount: ca.Amount}
		if total > 0 {
			share.Percent = float64(ca.Amount.Cents) / float64(total) * 100
		}
		out[i] = share
	}
	return out
}

// TagTotal is an amount summed for one normalized tag.
type TagTotal struct {
	Tag    string     `json:"tag"`
	Amount core.Money `json:"amount"`
}

// TagBreakdown sums expense amounts per lower-cased tag and returns the top
// ten. A transaction's full amount counts toward each of its tags, so multi-
// tagged transactions are deliberately double-counted. Ties rank
// alphabetically.
func TagBreakdown(txs []core.Transaction) []TagTotal {
	sums := map[string]int64{}
	for _, t := range txs {
		if core.PartitionOf(t.Category) != core.Expense {
			continue
		}
		for _, tag := range t.NormalizedTags() {
			sums[tag] += t.Amount.Cents
		}
	}

	out := make([]TagTotal, 0, len(sums))
	for tag, cents := range sums {
		out = append(out, TagTotal{Tag: tag, Amount: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return strings.Compare(out[i].Tag, out[j].Tag) < 0
	})
	if len(out) > topTagCount {
		out = out[:topTagCount]
	}
	return out
}

// ProjectTotals is the derived spend of one project.
type ProjectTotals struct {
	Spend core.Money `json:"spend"`
	Count int        `json:"count"`
}

// ProjectSpend sums expense transactions referencing the given project.
// References to deleted projects simply never match and contribute nothing.
func ProjectSpend(txs []core.Transaction, projectID string) ProjectTotals {
	var totals ProjectTotals
	if projectID == "" {
		return totals
	}
	for _, t := range txs {
		if t.ProjectID != projectID || core.PartitionOf(t.Category) != core.Expense {
			continue
		}
		totals.Spend = totals.Spend.Add(t.Amount)
		totals.Count++
	}
	return totals
}

// Utilization returns spend as a percentage of budget, clamped to [0, 100]
// for display. Overage is detectable from the raw spend exceeding the budget
// even though the percentage caps out. A non-positive budget yields zero.
func Utilization(spend, budget core.Money) float64 {
	if budget.Cents <= 0 {
		return 0
	}
	pct := spend.Units() / budget.Units() * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

func rankCategories(sums map[core.Category]int64) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(sums))
	for c, cents := range sums {
		out = append(out, CategoryAmount{Category: c, Amount: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return core.CategoryOrder(out[i].Category) < core.CategoryOrder(out[j].Category)
	})
	return out
}
