package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestGetCertificates(t *testing.T) {
	s, _, st, _, _ := newTestServer()
	st.certs = []map[string]any{
		{"id": "cert-1", "certhash": "aa11", "validFromDate": "2024-01-01T00:00:00Z"},
		{"id": "cert-2", "certhash": "bb22", "validFromDate": "2023-01-01T00:00:00Z"},
	}

	w := doJSON(t, s.Routes(), http.MethodGet, "/api/certificates", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode certificates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0]["id"] != "cert-1" || got[1]["id"] != "cert-2" {
		t.Errorf("ids = %v, %v; want store order preserved", got[0]["id"], got[1]["id"])
	}
}

func TestGetCertificatesEmptyCatalog(t *testing.T) {
	s, _, _, _, _ := newTestServer()

	w := doJSON(t, s.Routes(), http.MethodGet, "/api/certificates", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestGetCertificatesStoreError(t *testing.T) {
	s, _, st, _, _ := newTestServer()
	st.certsErr = errors.New("connection refused")

	w := doJSON(t, s.Routes(), http.MethodGet, "/api/certificates", nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestExportCertificatesEmptyCatalog(t *testing.T) {
	s, _, _, _, _ := newTestServer()

	w := doJSON(t, s.Routes(), http.MethodGet, "/api/certificates/export", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeMessage(t, w); got != "No data to export" {
		t.Errorf("message = %q, want %q", got, "No data to export")
	}
}

func TestExportCertificatesWorkbook(t *testing.T) {
	s, _, st, _, _ := newTestServer()
	st.certs = []map[string]any{
		{
			"id":            "cert-1",
			"certhash":      "f00d",
			"validFromDate": "2024-01-02T03:04:05Z",
			"issuer":        map[string]any{"name": "Example CA"},
			"serialNumber":  "01:02:03",
			"sources":       []any{"QWEB", "AGENT"},
		},
		{
			"id":            "cert-2",
			"certhash":      "beef",
			"validFromDate": "2023-06-07T08:09:10Z",
			"issuer":        map[string]any{"name": "Other CA"},
			"serialNumber":  "0a:0b",
			"sources":       []any{"QWEB"},
		},
	}

	w := doJSON(t, s.Routes(), http.MethodGet, "/api/certificates/export", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	wantType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if ct := w.Header().Get("Content-Type"); ct != wantType {
		t.Errorf("Content-Type = %q, want %q", ct, wantType)
	}
	wantDisposition := `attachment; filename="certificates_export.xlsx"`
	if cd := w.Header().Get("Content-Disposition"); cd != wantDisposition {
		t.Errorf("Content-Disposition = %q, want %q", cd, wantDisposition)
	}

	book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer book.Close()

	rows, err := book.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("GetRows(%q) error = %v", exportSheet, err)
	}
	if len(rows) != 3 {
		t.Fatalf("row count = %d, want header plus 2 records", len(rows))
	}

	// Columns absent from the whole dataset are dropped; the rest keep the
	// fixed export order.
	wantHeader := []string{"id", "certhash", "validFromDate", "issuer.name", "serialNumber", "sources"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Errorf("header = %v, want %v", rows[0], wantHeader)
	}

	first := rows[1]
	if first[0] != "cert-1" {
		t.Errorf("row 2 id = %q, want %q", first[0], "cert-1")
	}
	if first[3] != "Example CA" {
		t.Errorf("row 2 issuer.name = %q, want %q", first[3], "Example CA")
	}
	if first[5] != `["QWEB","AGENT"]` {
		t.Errorf("row 2 sources = %q, want JSON-encoded list", first[5])
	}
	if rows[2][0] != "cert-2" {
		t.Errorf("row 3 id = %q, want %q", rows[2][0], "cert-2")
	}
}
