package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// generateLabels renders a printable QR label sheet for existing items
func (r *Router) generateLabels(w http.ResponseWriter, req *http.Request) {
	var body labelsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	pdfBytes, err := r.svc.PrintLabels(req.Context(), body.ItemUIDs, body.Layout)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}

	// Set headers for download
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\"labels.pdf\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))

	w.Write(pdfBytes)
}
