package http

import (
	"errors"
	"fmt"
	"net/http"

	"glassbooks/internal/ledger"
)

// maxBundleBytes caps import bundles. Snapshots are text; anything bigger
// than this is not a glassbooks export.
const maxBundleBytes = 16 << 20

// handleExportSnapshot serves the full ledger as a downloadable backup
// bundle.
func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Export()
	filename := fmt.Sprintf("glassbooks-%s.json", snap.ExportedAt.Format("2006-01-02"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	writeJSON(w, http.StatusOK, snap)
}

// handleValidateSnapshot dry-runs a bundle through full validation without
// touching the ledger, so clients can show problems before committing to an
// import.
func (s *Server) handleValidateSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r, maxBundleBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "bundle too large")
		return
	}

	if err := s.svc.ValidateBundle(data); err != nil {
		var verr *ledger.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusOK, map[string]any{
				"valid":  false,
				"fields": verr.Fields,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// handleImportSnapshot replaces the entire ledger with the uploaded bundle.
// Validation failures leave current state untouched.
func (s *Server) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r, maxBundleBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "bundle too large")
		return
	}

	err = s.svc.ImportBundle(r.Context(), data)
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		writeDomainError(w, err)
		return
	}

	snap := s.svc.Export()
	writeJSON(w, http.StatusOK, map[string]any{
		"imported":     true,
		"persisted":    err == nil,
		"transactions": len(snap.Transactions),
		"projects":     len(snap.Projects),
	})
}

// handleReset clears the ledger back to an empty state with default
// budgets. Sessions survive: resetting data does not log anyone out.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	err := s.svc.ResetAll(r.Context())
	if err != nil && !errors.Is(err, ledger.ErrSnapshotSave) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reset":     true,
		"persisted": err == nil,
	})
}
