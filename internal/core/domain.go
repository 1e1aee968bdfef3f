package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyMerchant   = errors.New("empty merchant")
	ErrUnknownCategory = errors.New("unknown category")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidBudget   = errors.New("invalid budget")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrNegativeLimit   = errors.New("negative limit")
)

// Date is a calendar date without a time component. Comparisons are exact
// year/month/day equality, never ranges.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD and, for compatibility with exports that store
// full ISO timestamps, anything with a valid date prefix before a 'T'.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i == len(dateLayout) {
		s = s[:i]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// SameDay reports exact calendar-date equality.
func (d Date) SameDay(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month() && d.Day() == o.Day()
}

// InMonth reports whether the date falls in the given calendar month.
func (d Date) InMonth(year, month int) bool {
	return d.Year() == year && int(d.Month()) == month
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = parsed.Time
	return nil
}

// Item is one line of a receipt: name, unit price, optional quantity.
type Item struct {
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	Quantity int    `json:"quantity,omitempty"`
}

// Qty returns the effective quantity, defaulting to 1 when unset.
func (i Item) Qty() int {
	if i.Quantity < 1 {
		return 1
	}
	return i.Quantity
}

// Transaction is a single ledger record. It is immutable once stored; edits
// are modeled as replacement. The sign of Amount is implied by the category's
// partition and never stored.
type Transaction struct {
	ID       string   `json:"id"`
	Date     Date     `json:"date"`
	Merchant string   `json:"merchant"`
	Amount   Money    `json:"amount"`
	Category Category `json:"category"`
	Items    []Item   `json:"items"`
	Tags     []string `json:"tags"`
	// ProjectID may dangle after project deletion; aggregation treats a
	// dangling reference as "no project".
	ProjectID string `json:"projectId,omitempty"`
	Note      string `json:"note,omitempty"`
	// ReceiptImage is ephemeral: it exists only in the creation flow and is
	// excluded from every persisted form to respect storage limits.
	ReceiptImage string `json:"-"`
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Merchant) == "" {
		return ErrEmptyMerchant
	}
	if !t.Amount.Positive() {
		return ErrInvalidAmount
	}
	if !t.Category.Valid() {
		return ErrUnknownCategory
	}
	return nil
}

// NormalizedTags returns the tags lower-cased and trimmed for aggregation.
// Stored tags keep their original casing for display.
func (t Transaction) NormalizedTags() []string {
	out := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	return s == ProjectActive || s == ProjectArchived
}

// Project is a budget-tracked container transactions may reference. Spend is
// always derived from the transaction list, never stored here.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Budget      Money         `json:"budget"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	StartDate   Date          `json:"startDate,omitempty"`
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if !p.Budget.Positive() {
		return ErrInvalidBudget
	}
	if !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Budget is a per-category spending limit. At most one budget exists per
// category. A zero limit means "no budget" and is tolerated defensively.
type Budget struct {
	Category Category `json:"category"`
	Limit    Money    `json:"limit"`
}

func (b Budget) Validate() error {
	if !b.Category.Valid() {
		return ErrUnknownCategory
	}
	if b.Limit.Cents < 0 {
		return ErrNegativeLimit
	}
	return nil
}

// SnapshotVersion is the schema version written into exported snapshots.
const SnapshotVersion = "1.0"

// Snapshot is the full serializable state of the ledger, used for backup and
// restore and as the unit every persistence port reads and writes.
type Snapshot struct {
	Transactions []Transaction `json:"transactions"`
	Projects     []Project     `json:"projects"`
	Budgets      []Budget      `json:"budgets"`
	ExportedAt   time.Time     `json:"exportedAt"`
	Version      string        `json:"version"`
}
