package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"glassbooks/internal/core"
)

// FieldError is one schema-level failure found while validating an import
// bundle.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError aggregates every field-level failure of a bundle so
// callers can show them all at once instead of fixing one at a time.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid bundle: " + strings.Join(msgs, "; ")
}

// DecodeBundle parses and validates a snapshot bundle without touching the
// store. It is the dry-run half of import: callers validate first, confirm
// with the user, then apply the returned snapshot via Import. Transactions
// and projects must be present as sequences; budgets are optional and a
// missing budgets field decodes to nil (keep current budgets on import).
func DecodeBundle(data []byte) (core.Snapshot, error) {
	var raw struct {
		Transactions json.RawMessage `json:"transactions"`
		Projects     json.RawMessage `json:"projects"`
		Budgets      json.RawMessage `json:"budgets"`
		ExportedAt   json.RawMessage `json:"exportedAt"`
		Version      string          `json:"version"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.Snapshot{}, &ValidationError{Fields: []FieldError{
			{Field: "bundle", Message: "not a JSON object"},
		}}
	}

	var fields []FieldError
	snap := core.Snapshot{Version: raw.Version}

	if len(raw.Transactions) == 0 || string(raw.Transactions) == "null" {
		fields = append(fields, FieldError{"transactions", "missing"})
	} else if err := json.Unmarshal(raw.Transactions, &snap.Transactions); err != nil {
		fields = append(fields, FieldError{"transactions", "not a valid sequence"})
	} else {
		for i, t := range snap.Transactions {
			if err := t.Validate(); err != nil {
				fields = append(fields, FieldError{
					Field:   fmt.Sprintf("transactions[%d]", i),
					Message: err.Error(),
				})
			}
		}
	}

	if len(raw.Projects) == 0 || string(raw.Projects) == "null" {
		fields = append(fields, FieldError{"projects", "missing"})
	} else if err := json.Unmarshal(raw.Projects, &snap.Projects); err != nil {
		fields = append(fields, FieldError{"projects", "not a valid sequence"})
	} else {
		for i, p := range snap.Projects {
			if err := p.Validate(); err != nil {
				fields = append(fields, FieldError{
					Field:   fmt.Sprintf("projects[%d]", i),
					Message: err.Error(),
				})
			}
		}
	}

	if len(raw.Budgets) > 0 {
		if err := json.Unmarshal(raw.Budgets, &snap.Budgets); err != nil {
			fields = append(fields, FieldError{"budgets", "not a valid sequence"})
		} else {
			seen := map[core.Category]bool{}
			for i, b := range snap.Budgets {
				if err := b.Validate(); err != nil {
					fields = append(fields, FieldError{
						Field:   fmt.Sprintf("budgets[%d]", i),
						Message: err.Error(),
					})
					continue
				}
				if seen[b.Category] {
					fields = append(fields, FieldError{
						Field:   fmt.Sprintf("budgets[%d]", i),
						Message: "duplicate category " + string(b.Category),
					})
				}
				seen[b.Category] = true
			}
		}
	}

	if len(fields) > 0 {
		return core.Snapshot{}, &ValidationError{Fields: fields}
	}
	return snap, nil
}
