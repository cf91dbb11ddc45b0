package claims

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/desthealth/claims/internal/platform/auth"
	"github.com/desthealth/claims/internal/platform/db"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func newContext(e *echo.Echo, method, body, user string, roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), user, roles))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

func TestHandler_Create_PatientOwnsClaim(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, http.MethodPost, `{"payer_name":"Aetna","patient_id":"someone-else"}`, "patient-1", "patient")
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var claim Claim
	json.Unmarshal(rec.Body.Bytes(), &claim)
	if claim.PatientID != "patient-1" {
		t.Errorf("patient must own the claim they create, got %q", claim.PatientID)
	}
}

func TestHandler_Create_StaffForPatient(t *testing.T) {
	h, e := newTestHandler()
	c, rec := newContext(e, http.MethodPost, `{"payer_name":"Aetna","patient_id":"patient-7"}`, "staff-1", "billing")
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var claim Claim
	json.Unmarshal(rec.Body.Bytes(), &claim)
	if claim.PatientID != "patient-7" {
		t.Errorf("expected patient-7, got %q", claim.PatientID)
	}
}

func TestHandler_AddLineItemsAndGet(t *testing.T) {
	h, e := newTestHandler()
	claim, _ := h.svc.Create(context.Background(), "patient-1", CreateRequest{PayerName: "Aetna"})

	c, rec := newContext(e, http.MethodPost,
		`{"line_items":[{"procedure_code":"27447","charge_amount":400000,"qpa_amount":100000,"paid_amount":500000}]}`,
		"staff-1", "billing")
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())
	if err := h.AddLineItems(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, rec = newContext(e, http.MethodGet, "", "patient-1", "patient")
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var d struct {
		Multiplier string   `json:"billed_multiplier"`
		Warnings   []string `json:"warnings"`
		PaidAmount int64    `json:"paid_amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Multiplier != "4.00x" {
		t.Errorf("expected 4.00x, got %s", d.Multiplier)
	}
	if len(d.Warnings) == 0 {
		t.Error("expected overpayment warning in response")
	}
	if d.PaidAmount != 500000 {
		t.Errorf("overpaid amount must not be clamped, got %d", d.PaidAmount)
	}

	c, _ = newContext(e, http.MethodGet, "", "patient-2", "patient")
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())
	if code := httpCode(h.Get(c)); code != http.StatusNotFound {
		t.Errorf("expected 404 for another patient's claim, got %d", code)
	}
}

func TestHandler_Transition_Conflict(t *testing.T) {
	h, e := newTestHandler()
	claim, _ := h.svc.Create(context.Background(), "patient-1", CreateRequest{PayerName: "Aetna"})

	c, _ := newContext(e, http.MethodPost, `{"claim_status":"paid"}`, "staff-1", "billing")
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())
	if code := httpCode(h.Transition(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}

	c, _ = newContext(e, http.MethodPost, `{"claim_status":"submitted"}`, "staff-1", "billing")
	c.SetParamNames("id")
	c.SetParamValues("nope")
	if code := httpCode(h.Transition(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Transition_RefusesIDRStatus(t *testing.T) {
	h, e := newTestHandler()
	claim, _ := h.svc.Create(context.Background(), "patient-1", CreateRequest{PayerName: "Aetna"})
	moveTo(t, h.svc, claim.ID, StatusSubmitted, StatusInReview, StatusDenied)

	c, _ := newContext(e, http.MethodPost, `{"claim_status":"idr_resolved"}`, "staff-1", "billing")
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())
	if code := httpCode(h.Transition(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	repo := newMockRepo()
	h := NewHandler(NewService(repo, db.NoTx, zerolog.Nop()))
	e := echo.New()

	tests := []struct {
		name      string
		body      string
		createErr error
		want      int
	}{
		{"missing payer", `{}`, nil, http.StatusBadRequest},
		{"storage failure", `{"payer_name":"Aetna"}`, errors.New("conn reset by peer"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.createErr = tt.createErr
			c, _ := newContext(e, http.MethodPost, tt.body, "patient-1", "patient")
			err := h.Create(c)
			if code := httpCode(err); code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, code)
			}
			if tt.want == http.StatusInternalServerError {
				if msg := err.(*echo.HTTPError).Message; msg != "internal error" {
					t.Errorf("storage error text must not reach the client, got %v", msg)
				}
			}
		})
	}

	c, _ := newContext(e, http.MethodGet, "", "staff-1", "billing")
	c.Request().URL.RawQuery = "status=bogus"
	if code := httpCode(h.List(c)); code != http.StatusBadRequest {
		t.Errorf("unknown status filter: expected 400, got %d", code)
	}
}

func TestHandler_List_ScopesPatients(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Create(context.Background(), "patient-1", CreateRequest{PayerName: "Aetna"})
	h.svc.Create(context.Background(), "patient-2", CreateRequest{PayerName: "Cigna"})

	c, rec := newContext(e, http.MethodGet, "", "patient-1", "patient")
	if err := h.List(c); err != nil {
		t.Fatal(err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("patient should see 1 claim, got %d", body.Total)
	}

	c, rec = newContext(e, http.MethodGet, "", "staff-1", "billing")
	if err := h.List(c); err != nil {
		t.Fatal(err)
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 {
		t.Errorf("staff should see 2 claims, got %d", body.Total)
	}
}
