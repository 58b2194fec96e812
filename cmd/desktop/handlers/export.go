package handlers

import (
	"net/http"

	"github.com/fintrack-app/fintrack/backend/internal/export"
)

// ExportHandler produces local backup archives.
type ExportHandler struct {
	service *export.Service
	ownerID string
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(service *export.Service, ownerID string) *ExportHandler {
	return &ExportHandler{service: service, ownerID: ownerID}
}

// Export handles POST /api/export with optional body
// {"output_path": "..."}.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OutputPath string `json:"output_path"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
	}

	result, err := h.service.Export(r.Context(), h.ownerID, body.OutputPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
