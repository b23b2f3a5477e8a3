package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestRouter() chi.Router {
	h := &Handler{Timeout: 5 * time.Second}
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r chi.Router, method, path, org, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if org != "" {
		req.Header.Set("X-Org-ID", org)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	r := newTestRouter()
	rec := doRequest(t, r, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestMissingOrgHeaderRejected(t *testing.T) {
	r := newTestRouter()
	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/monitors"},
		{http.MethodPut, "/v1/monitors/churn-model"},
		{http.MethodGet, "/v1/incidents"},
		{http.MethodGet, "/v1/incidents/abc"},
		{http.MethodPost, "/v1/incidents/abc/ack"},
		{http.MethodPost, "/v1/incidents/abc/resolve"},
		{http.MethodPost, "/v1/incidents/abc/close"},
		{http.MethodGet, "/v1/routes"},
		{http.MethodPut, "/v1/routes"},
	}
	for _, p := range paths {
		rec := doRequest(t, r, p.method, p.path, "", "{}")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s without org: got status %d, want 400", p.method, p.path, rec.Code)
		}
	}
}

func TestMonitorUpdateRejectsMalformedBody(t *testing.T) {
	r := newTestRouter()
	rec := doRequest(t, r, http.MethodPut, "/v1/monitors/churn-model", "org-1", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestMonitorUpdateRejectsUnknownField(t *testing.T) {
	r := newTestRouter()
	rec := doRequest(t, r, http.MethodPut, "/v1/monitors/churn-model", "org-1", `{"bogus": true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestRouteUpsertRejectsMalformedBody(t *testing.T) {
	r := newTestRouter()
	rec := doRequest(t, r, http.MethodPut, "/v1/routes", "org-1", "[]")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestValidateMonitor(t *testing.T) {
	base := defaultMonitor("org-1", "churn-model")
	if err := validateMonitor(base); err != nil {
		t.Fatalf("default monitor should validate: %v", err)
	}

	bad := base
	bad.NumBins = 1
	if err := validateMonitor(bad); err == nil {
		t.Fatalf("expected error for numBins=1")
	}

	bad = base
	bad.BaselineDays = 0
	if err := validateMonitor(bad); err == nil {
		t.Fatalf("expected error for baselineDays=0")
	}

	bad = base
	bad.WarnThreshold = 0
	if err := validateMonitor(bad); err == nil {
		t.Fatalf("expected error for zero warn threshold")
	}

	bad = base
	bad.MinSamples = 0
	if err := validateMonitor(bad); err == nil {
		t.Fatalf("expected error for minSamples=0")
	}
}
