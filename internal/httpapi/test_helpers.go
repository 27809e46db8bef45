package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erauner12/certview-mirror/internal/store"
	"github.com/erauner12/certview-mirror/internal/sync"
)

// fakeEngine records lifecycle calls and fails on demand.
type fakeEngine struct {
	startErr  error
	resumeErr error
	resetErr  error
	running   bool

	starts  []sync.Interval
	resumes []sync.Interval
	stops   int
	resets  int
}

func (f *fakeEngine) StartFull(ctx context.Context, interval sync.Interval) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, interval)
	return nil
}

func (f *fakeEngine) Resume(ctx context.Context, interval sync.Interval) error {
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.resumes = append(f.resumes, interval)
	return nil
}

func (f *fakeEngine) Stop() { f.stops++ }

func (f *fakeEngine) Reset(ctx context.Context) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	return nil
}

func (f *fakeEngine) Running() bool { return f.running }

// fakeCatalogStore serves canned state, catalog, and audit rows.
type fakeCatalogStore struct {
	state    store.SyncState
	stateErr error
	certs    []map[string]any
	certsErr error
	tokens   []store.AuthTokenRow
	tokenErr error
	gotLimit int
}

func (f *fakeCatalogStore) GetState(ctx context.Context) (store.SyncState, error) {
	return f.state, f.stateErr
}

func (f *fakeCatalogStore) GetAllCertificates(ctx context.Context) ([]map[string]any, error) {
	return f.certs, f.certsErr
}

func (f *fakeCatalogStore) RecentAuthTokens(ctx context.Context, limit int) ([]store.AuthTokenRow, error) {
	f.gotLimit = limit
	return f.tokens, f.tokenErr
}

type fakeTokens struct {
	token string
	err   error
	calls []bool
}

func (f *fakeTokens) Token(ctx context.Context, forceRefresh bool) (string, error) {
	f.calls = append(f.calls, forceRefresh)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeInventory struct {
	importN   int
	importErr error
	running   bool
	counts    store.InventoryCounts
	countsErr error
	imports   int
}

func (f *fakeInventory) Import(ctx context.Context, r io.Reader) (int, error) {
	io.Copy(io.Discard, r)
	f.imports++
	if f.importErr != nil {
		return 0, f.importErr
	}
	return f.importN, nil
}

func (f *fakeInventory) Running() bool { return f.running }

func (f *fakeInventory) Counts(ctx context.Context) (store.InventoryCounts, error) {
	return f.counts, f.countsErr
}

// newTestServer wires a Server around fakes with auth disabled.
func newTestServer() (*Server, *fakeEngine, *fakeCatalogStore, *fakeTokens, *fakeInventory) {
	engine := &fakeEngine{}
	st := &fakeCatalogStore{
		state: store.SyncState{
			LastSuccessfulValidFromDate: store.DefaultValidFromDate,
			Status:                      store.StatusStopped,
		},
	}
	tokens := &fakeTokens{token: "tok"}
	inv := &fakeInventory{}
	s := &Server{Engine: engine, Store: st, Tokens: tokens, Inventory: inv}
	return s, engine, st, tokens, inv
}

// doJSON performs a request with an optional JSON body against the router.
func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeMessage pulls the {"message": …} payload out of a response.
func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp messageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode message response: %v", err)
	}
	return resp.Message
}

// uploadRequest builds a multipart POST with the given bytes in one form
// file part.
func uploadRequest(t *testing.T, path, field string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "inventory.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
