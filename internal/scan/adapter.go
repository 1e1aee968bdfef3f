// Package scan turns untrusted receipt-recognition output into transaction
// candidates the ledger will accept.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"glassbooks/internal/core"
)

// ErrRecognition wraps failures of the external recognition service. Callers
// treat it as recoverable and fall back to manual entry.
var ErrRecognition = errors.New("receipt recognition failed")

// ErrRejected marks a recognition result unusable as a transaction candidate.
var ErrRejected = errors.New("scan result rejected")

// Result is the raw structured output of the recognition service. Every field
// is untrusted until Normalize has run.
type Result struct {
	Merchant string      `json:"merchant"`
	Date     string      `json:"date,omitempty"`
	Total    float64     `json:"total"`
	Category string      `json:"category"`
	Items    []core.Item `json:"items,omitempty"`
	Tags     []string    `json:"tags,omitempty"`
}

// Recognizer extracts a Result from a receipt image.
type Recognizer interface {
	AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// Normalize validates and coerces a recognition result into a transaction
// candidate. Merchant and total are hard requirements; date and category fall
// back to now's date and Other Expense. The caller assigns the id.
func Normalize(res Result, now time.Time) (core.Transaction, error) {
	merchant := strings.TrimSpace(res.Merchant)
	if merchant == "" {
		return core.Transaction{}, fmt.Errorf("%w: empty merchant", ErrRejected)
	}
	if res.Total <= 0 {
		return core.Transaction{}, fmt.Errorf("%w: non-positive total", ErrRejected)
	}

	date, err := core.ParseDate(res.Date)
	if err != nil {
		date = core.DateOf(now)
	}

	category := core.Category(res.Category)
	if !category.Valid() {
		category = core.OtherExpense
	}

	items := res.Items
	if items == nil {
		items = []core.Item{}
	}

	return core.Transaction{
		Date:     date,
		Merchant: merchant,
		Amount:   core.Money{Cents: int64(res.Total*100 + 0.5)},
		Category: category,
		Items:    items,
		Tags:     cleanTags(res.Tags),
	}, nil
}

// cleanTags strips a leading '#', trims whitespace, and drops empties. Case is
// preserved here; aggregation lower-cases at read time.
func cleanTags(tags []string) []string {
	out := []string{}
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
