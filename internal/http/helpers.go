package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"glassbooks/internal/core"
	"glassbooks/internal/ledger"
	"glassbooks/internal/scan"
	"glassbooks/internal/services"
)

// maxBodyBytes caps JSON request bodies. Receipt uploads have their own,
// larger limit.
const maxBodyBytes = 1 << 20

// timeNow is swapped in tests.
var timeNow = time.Now

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []ledger.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain sentinels onto HTTP status codes. Unknown
// errors become an opaque 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "bundle validation failed",
			Fields: verr.Fields,
		})
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyMerchant),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidBudget),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrNegativeLimit),
		errors.Is(err, ledger.ErrUnknownProject):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scan.ErrRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrStaleScan):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scan.ErrRecognition):
		writeError(w, http.StatusBadGateway, "receipt recognition failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	// Trailing garbage after the JSON value is a client bug.
	if dec.More() {
		return errors.New("malformed request body: trailing data")
	}
	return nil
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
}

// parseYearMonth reads year/month query parameters, defaulting to the
// current calendar month.
func parseYearMonth(r *http.Request) (year, month int) {
	now := timeNow()
	year, month = now.Year(), int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}
	return year, month
}
