package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/erauner12/certview-mirror/internal/payload"
)

// exportColumns is the fixed column order of the xlsx export. Dotted names
// address nested objects. Columns missing from the whole dataset are
// skipped.
var exportColumns = []string{
	"id", "certhash", "validFromDate", "validToDate", "issuer.name", "subject.name",
	"keySize", "serialNumber", "signatureAlgorithm", "extendedValidation", "selfSigned",
	"issuer.organization", "subject.organization", "assetCount", "instanceCount",
	"sources", "assets",
}

const exportSheet = "Certificates"

// GetCertificates returns the full mirrored catalog as JSON, newest
// validFromDate first.
func (s *Server) GetCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.Store.GetAllCertificates(r.Context())
	if err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to load certificates")
		writeError(w, r, http.StatusInternalServerError, "failed to load certificates")
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

// ExportCertificates streams the catalog as an xlsx attachment.
//
// Returns:
// - 200: workbook attachment
// - 400: catalog is empty
// - 500: workbook build failed
func (s *Server) ExportCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.Store.GetAllCertificates(r.Context())
	if err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to load certificates for export")
		writeError(w, r, http.StatusInternalServerError, "failed to load certificates")
		return
	}
	if len(certs) == 0 {
		writeError(w, r, http.StatusBadRequest, "No data to export")
		return
	}

	book, err := buildExportWorkbook(certs)
	if err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to build export workbook")
		writeError(w, r, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="certificates_export.xlsx"`)
	if err := book.Write(w); err != nil {
		log.Error().
			Err(err).
			Str("correlation_id", GetCorrelationID(r.Context())).
			Msg("failed to stream export workbook")
	}
}

// buildExportWorkbook projects every record onto the export columns, one
// record per row, keeping the fixed order for the columns the data has.
func buildExportWorkbook(certs []map[string]any) (*excelize.File, error) {
	present := make(map[string]bool, len(exportColumns))
	for _, cert := range certs {
		for _, col := range exportColumns {
			if _, ok := payload.GetPath(cert, col); ok {
				present[col] = true
			}
		}
	}

	columns := make([]string, 0, len(exportColumns))
	for _, col := range exportColumns {
		if present[col] {
			columns = append(columns, col)
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, err
	}

	for c, col := range columns {
		name, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheet, name, col); err != nil {
			return nil, err
		}
	}

	for rIdx, cert := range certs {
		for cIdx, col := range columns {
			v, ok := payload.GetPath(cert, col)
			if !ok || v == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(cIdx+1, rIdx+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(exportSheet, name, cellValue(v)); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// cellValue coerces a payload value into a spreadsheet cell. Collections
// are JSON-encoded; scalars pass through.
func cellValue(v any) any {
	switch v.(type) {
	case string, bool, float64, int, int64:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
