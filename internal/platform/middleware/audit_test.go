package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/desthealth/claims/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func runAudit(t *testing.T, rec AuditRecorder, method, path, userID string, h echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("User-Agent", "claims-test/1.0")
	req.Header.Set("X-Real-IP", "10.0.0.9")
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), userID, []string{auth.RoleBilling}))
	}
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")
	return Audit(zerolog.New(io.Discard), rec)(h)(c)
}

func created(c echo.Context) error { return c.NoContent(http.StatusCreated) }

func TestAudit_RecordsMutation(t *testing.T) {
	rec := &mockRecorder{}
	claimID := uuid.New().String()

	if err := runAudit(t, rec, http.MethodPost, "/api/v1/claims/"+claimID+"/line-items", "staff-1", created); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	e := rec.last()
	if e.UserID != "staff-1" || e.Action != "create" || e.Resource != "line-items" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.StatusCode != http.StatusCreated || e.RequestID != "req-123" {
		t.Errorf("expected status 201 and request id, got %d %q", e.StatusCode, e.RequestID)
	}
	if e.IPAddress != "10.0.0.9" || e.UserAgent != "claims-test/1.0" {
		t.Errorf("expected client details, got %q %q", e.IPAddress, e.UserAgent)
	}
}

func TestAudit_SkipsReadsAndNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	_ = runAudit(t, rec, http.MethodGet, "/api/v1/claims", "u", ok)
	_ = runAudit(t, rec, http.MethodPost, "/webhooks/stripe", "", ok)
	_ = runAudit(t, rec, http.MethodGet, "/health", "", ok)

	if rec.count() != 0 {
		t.Errorf("expected no audit entries, got %d", rec.count())
	}
}

func TestAudit_RecordsFailureStatus(t *testing.T) {
	rec := &mockRecorder{}
	conflict := func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "nope") }
	caseID := uuid.New().String()

	err := runAudit(t, rec, http.MethodPost, "/api/v1/idr-cases/"+caseID+"/offers", "staff-1", conflict)
	if err == nil {
		t.Fatal("expected handler error to pass through")
	}
	e := rec.last()
	if e.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", e.StatusCode)
	}
	if e.Resource != "offers" || e.ResourceID != caseID {
		t.Errorf("expected offers on %s, got %s %s", caseID, e.Resource, e.ResourceID)
	}
}

func TestAudit_RecorderErrorDoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	if err := runAudit(t, rec, http.MethodPut, "/api/v1/claims/"+uuid.New().String(), "u", created); err != nil {
		t.Fatalf("recorder failure must not fail the request: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected recorder to be called once, got %d", rec.count())
	}
}

func TestAudit_NoRecorderLogsOnly(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if err := Audit(zerolog.New(io.Discard))(created)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResourceFromPath(t *testing.T) {
	id := uuid.New().String()
	item := uuid.New().String()
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/claims", "claims", ""},
		{"/api/v1/claims/" + id, "claims", id},
		{"/api/v1/claims/" + id + "/line-items", "line-items", ""},
		{"/api/v1/claims/" + id + "/line-items/" + item, "line-items", item},
		{"/api/v1/claims/" + id + "/idr", "idr", id},
		{"/api/v1/billing/checkout", "checkout", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		res, rid := resourceFromPath(tt.path)
		if res != tt.resource || rid != tt.id {
			t.Errorf("resourceFromPath(%q) = %q, %q; want %q, %q", tt.path, res, rid, tt.resource, tt.id)
		}
	}
}

func TestMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := methodToAction(method); got != want {
			t.Errorf("methodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	_ = f.RecordAccess(AuditEntry{UserID: "x"})
	if got.UserID != "x" {
		t.Errorf("expected adapter to forward entry, got %+v", got)
	}
}
