package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/certview-mirror/internal/inventory"
)

type inventoryStatusResponse struct {
	IsRunning bool  `json:"isRunning"`
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
}

// UploadInventory stages a new inventory workbook from a multipart form
// ("file" part) and starts the annotation pass.
//
// Returns:
// - 200: rows staged, pass started
// - 400: missing file, unusable workbook, or a pass is already running
// - 500: staging write failed
func (s *Server) UploadInventory(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	n, err := s.Inventory.Import(r.Context(), file)
	if err != nil {
		var inputErr *inventory.InputError
		switch {
		case errors.As(err, &inputErr):
			writeError(w, r, http.StatusBadRequest, inputErr.Error())
		case errors.Is(err, inventory.ErrImportAlreadyRunning):
			writeError(w, r, http.StatusBadRequest, "Mapping process is already running")
		default:
			log.Error().
				Err(err).
				Str("correlation_id", GetCorrelationID(r.Context())).
				Msg("inventory import failed")
			writeError(w, r, http.StatusInternalServerError, "inventory import failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Successfully imported %d records. Mapping process started.", n),
	})
}

// InventoryStatus reports whether the annotation pass is running and how
// far it got.
func (s *Server) InventoryStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.Inventory.Counts(r.Context())
	if err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to load inventory counts")
		writeError(w, r, http.StatusInternalServerError, "failed to load inventory status")
		return
	}

	writeJSON(w, http.StatusOK, inventoryStatusResponse{
		IsRunning: s.Inventory.Running(),
		Total:     counts.Total,
		Processed: counts.Processed,
	})
}
