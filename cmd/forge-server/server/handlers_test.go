package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/neopilotai/FORGE/pkg/apply"
	"github.com/neopilotai/FORGE/pkg/audit"
	"github.com/neopilotai/FORGE/pkg/metrics"
	"github.com/neopilotai/FORGE/pkg/orchestrator"
	"github.com/neopilotai/FORGE/pkg/pipeline"
	"github.com/neopilotai/FORGE/pkg/retry"
)

type echoBackend struct{ response string }

func (b echoBackend) Complete(ctx context.Context, system, user string) (string, error) {
	return b.response, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	orch := orchestrator.New(echoBackend{response: `{}`}, retry.Options{MaxAttempts: 1, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9})
	applicator := apply.New(apply.NewInProcessLocker(), t.TempDir())
	store, err := audit.NewFileStore(t.TempDir()+"/journal.ndjson", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	driver := pipeline.New(orch, applicator, store)
	driver.Metrics, _ = metrics.New()
	return &Server{
		driver:   driver,
		store:    store,
		logger:   zap.NewNop(),
		registry: prometheus.NewRegistry(),
	}
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandleWebhook_RejectsMissingRawLog(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing rawLog, got %d", rec.Code)
	}
}

func TestHandleWebhook_NoFailureDetectedReturns422(t *testing.T) {
	s := newTestServer(t)
	body := `{"rawLog":"everything is fine, build succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 when no failure is detected, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAuditQuery_RejectsInvalidLimit(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/audit?limit=abc", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-numeric limit, got %d", rec.Code)
	}
}

func TestHandleAuditQuery_ReturnsEmptyJournal(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != "null" && strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected an empty JSON array for a fresh journal, got %s", rec.Body.String())
	}
}
