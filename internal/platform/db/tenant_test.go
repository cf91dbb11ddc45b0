package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTenantContext(header string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/claims", nil)
	if header != "" {
		req.Header.Set(TenantHeader, header)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractTenantID(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		jwt     string
		want    string
		wantErr bool
	}{
		{"header", "practice_abc", "", "practice_abc", false},
		{"jwt claim", "", "jwt_practice", "jwt_practice", false},
		{"default", "", "", "default", false},
		{"header agrees with jwt", "jwt_practice", "jwt_practice", "jwt_practice", false},
		{"header contradicts jwt", "other", "jwt_practice", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTenantContext(tt.header)
			c.Set("jwt_tenant_id", tt.jwt)
			got, err := extractTenantID(c, "default")
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractTenantID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("extractTenantID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTenantMiddleware_RejectsBeforeAcquire(t *testing.T) {
	// Both requests fail before the pool is touched, so a nil pool is safe.
	mw := TenantMiddleware(nil, "default")
	next := func(c echo.Context) error { t.Fatal("next must not run"); return nil }

	c := newTenantContext("other")
	c.Set("jwt_tenant_id", "practice_1")
	assertHTTPCode(t, mw(next)(c), http.StatusForbidden)

	assertHTTPCode(t, mw(next)(newTenantContext("bad-id;")), http.StatusBadRequest)
}

func assertHTTPCode(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
}

func TestTenantIDPattern(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"ABC", true},
		{"practice_1", true},
		{"A1B2C3", true},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"a/b", false},
		{"", false},
		{"'; DROP TABLE", false},
		{"tenant@1", false},
	}
	for _, tt := range tests {
		if got := tenantIDPattern.MatchString(tt.input); got != tt.valid {
			t.Errorf("tenantIDPattern.MatchString(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("practice_1"); got != "tenant_practice_1" {
		t.Errorf("SchemaName() = %q", got)
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn from empty context")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx from empty context")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant from empty context")
	}
}

func TestContextAccessors_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	ctx = context.WithValue(ctx, DBTxKey, "not-a-tx")
	ctx = context.WithValue(ctx, TenantIDKey, 12345)

	if ConnFromContext(ctx) != nil {
		t.Error("expected nil when conn value is wrong type")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil when tx value is wrong type")
	}
	if tid := TenantFromContext(ctx); tid != "" {
		t.Errorf("expected empty tenant for wrong type, got %q", tid)
	}
}

func TestTenantFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TenantIDKey, "test_practice")
	if tid := TenantFromContext(ctx); tid != "test_practice" {
		t.Errorf("expected test_practice, got %s", tid)
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	_, _, err := WithTx(context.Background())
	if err == nil {
		t.Fatal("expected error when no connection in context")
	}
	if err.Error() != "no database connection in context" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestRunInTx_NoConnection(t *testing.T) {
	called := false
	err := RunInTx(context.Background(), nil, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("expected error without pool or connection")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

func TestCreateTenantSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"invalid-id!", "practice.with.dot", "prac tice", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, nil); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}
