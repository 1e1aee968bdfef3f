package http

import (
	"io"
	"net/http"
	"strings"

	"glassbooks/internal/core"
)

// maxReceiptBytes caps uploaded receipt images.
const maxReceiptBytes = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

type scanResponse struct {
	// Candidate is a normalized, unvalidated draft. The client reviews and
	// submits it through POST /api/transactions like any manual entry.
	Candidate core.Transaction `json:"candidate"`
}

// handleScanReceipt accepts a multipart image upload and returns a draft
// transaction recognized from it. Nothing is written to the ledger.
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)
	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with an image field")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if !allowedImageTypes[mimeType] {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported image type "+mimeType)
		return
	}

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read image")
		return
	}

	candidate, err := s.svc.ScanReceipt(r.Context(), image, mimeType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Candidate: candidate})
}
