package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erauner12/certview-mirror/internal/store"
	"github.com/erauner12/certview-mirror/internal/sync"
)

func TestStartSyncDefaultsToYearly(t *testing.T) {
	s, engine, _, _, _ := newTestServer()

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/start", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if got := decodeMessage(t, w); got != "Yearly sync started" {
		t.Errorf("message = %q, want %q", got, "Yearly sync started")
	}
	if len(engine.starts) != 1 || engine.starts[0] != sync.IntervalYearly {
		t.Errorf("starts = %v, want a single yearly start", engine.starts)
	}
}

func TestStartSyncWithInterval(t *testing.T) {
	s, engine, _, _, _ := newTestServer()

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/start", map[string]string{"interval": "daily"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeMessage(t, w); got != "Daily sync started" {
		t.Errorf("message = %q, want %q", got, "Daily sync started")
	}
	if len(engine.starts) != 1 || engine.starts[0] != sync.IntervalDaily {
		t.Errorf("starts = %v, want a single daily start", engine.starts)
	}
}

func TestStartSyncRejectsUnknownInterval(t *testing.T) {
	s, engine, _, _, _ := newTestServer()

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/start", map[string]string{"interval": "weekly"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeMessage(t, w); !strings.Contains(got, "unknown interval") {
		t.Errorf("message = %q, want it to name the unknown interval", got)
	}
	if len(engine.starts) != 0 {
		t.Errorf("starts = %v, want none", engine.starts)
	}
}

func TestStartSyncRejectsMalformedBody(t *testing.T) {
	s, engine, _, _, _ := newTestServer()
	router := s.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/sync/start", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeMessage(t, w); got != "invalid request body" {
		t.Errorf("message = %q, want %q", got, "invalid request body")
	}
	if len(engine.starts) != 0 {
		t.Errorf("starts = %v, want none", engine.starts)
	}
}

func TestStartSyncWhileRunning(t *testing.T) {
	s, engine, _, _, _ := newTestServer()
	engine.startErr = sync.ErrAlreadyRunning

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/start", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeMessage(t, w); got != "Sync already running" {
		t.Errorf("message = %q, want %q", got, "Sync already running")
	}
}

func TestResumeSync(t *testing.T) {
	s, engine, _, _, _ := newTestServer()

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/resume", map[string]string{"interval": "monthly"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeMessage(t, w); got != "Sync resumed (monthly)" {
		t.Errorf("message = %q, want %q", got, "Sync resumed (monthly)")
	}
	if len(engine.resumes) != 1 || engine.resumes[0] != sync.IntervalMonthly {
		t.Errorf("resumes = %v, want a single monthly resume", engine.resumes)
	}
}

func TestResumeSyncWhileRunning(t *testing.T) {
	s, engine, _, _, _ := newTestServer()
	engine.resumeErr = sync.ErrAlreadyRunning

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/resume", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeMessage(t, w); got != "Sync already running" {
		t.Errorf("message = %q, want %q", got, "Sync already running")
	}
}

func TestStopSyncAlwaysSucceeds(t *testing.T) {
	s, engine, _, _, _ := newTestServer()
	router := s.Routes()

	for i := 0; i < 2; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/sync/stop", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("stop %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
		if got := decodeMessage(t, w); got != "Sync stopped" {
			t.Errorf("stop %d: message = %q, want %q", i, got, "Sync stopped")
		}
	}
	if engine.stops != 2 {
		t.Errorf("stops = %d, want 2", engine.stops)
	}
}

func TestResetState(t *testing.T) {
	s, engine, _, _, _ := newTestServer()

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/reset", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeMessage(t, w); got != "State cleared" {
		t.Errorf("message = %q, want %q", got, "State cleared")
	}
	if engine.resets != 1 {
		t.Errorf("resets = %d, want 1", engine.resets)
	}
}

func TestResetStateWhileRunning(t *testing.T) {
	s, engine, _, _, _ := newTestServer()
	engine.resetErr = sync.ErrAlreadyRunning

	w := doJSON(t, s.Routes(), http.MethodPost, "/api/sync/reset", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeMessage(t, w); got != "Cannot clear state while running" {
		t.Errorf("message = %q, want %q", got, "Cannot clear state while running")
	}
	if engine.resets != 0 {
		t.Errorf("resets = %d, want 0", engine.resets)
	}
}

func TestGetSyncStatus(t *testing.T) {
	s, _, st, _, _ := newTestServer()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st.state = store.SyncState{
		LastSuccessfulValidFromDate: "2024-04-30T23:59:59Z",
		LastSyncTimestamp:           &ts,
		TotalRecordsCollected:       1234,
		Status:                      store.StatusCompleted,
	}

	w := doJSON(t, s.Routes(), http.MethodGet, "/api/sync/status", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got store.SyncState
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got.LastSuccessfulValidFromDate != st.state.LastSuccessfulValidFromDate {
		t.Errorf("checkpoint = %q, want %q", got.LastSuccessfulValidFromDate, st.state.LastSuccessfulValidFromDate)
	}
	if got.TotalRecordsCollected != 1234 {
		t.Errorf("total = %d, want 1234", got.TotalRecordsCollected)
	}
	if got.Status != store.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, store.StatusCompleted)
	}
	if got.LastSyncTimestamp == nil || !got.LastSyncTimestamp.Equal(ts) {
		t.Errorf("lastSyncTimestamp = %v, want %v", got.LastSyncTimestamp, ts)
	}
}

func TestGetSyncStatusStoreError(t *testing.T) {
	s, _, st, _, _ := newTestServer()
	st.stateErr = errors.New("connection refused")

	w := doJSON(t, s.Routes(), http.MethodGet, "/api/sync/status", nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
