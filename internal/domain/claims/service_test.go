package claims

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/desthealth/claims/internal/platform/db"
	"github.com/desthealth/claims/pkg/money"
)

type mockRepo struct {
	claims map[uuid.UUID]Claim
	items  map[uuid.UUID][]LineItem
	seq    int
	// createErr is returned by Create when set.
	createErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{claims: make(map[uuid.UUID]Claim), items: make(map[uuid.UUID][]LineItem)}
}

func (m *mockRepo) Create(_ context.Context, c *Claim) error {
	if m.createErr != nil {
		return m.createErr
	}
	c.ID = uuid.New()
	m.seq++
	c.CreatedAt = time.Unix(int64(m.seq), 0)
	m.claims[c.ID] = *c
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) matching(f Filter) []*Claim {
	var out []*Claim
	for _, c := range m.claims {
		if f.PatientID != "" && c.PatientID != f.PatientID {
			continue
		}
		if len(f.Statuses) > 0 {
			found := false
			for _, s := range f.Statuses {
				found = found || s == c.Status
			}
			if !found {
				continue
			}
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	all := m.matching(f)
	return all, len(all), nil
}

func (m *mockRepo) ListAll(_ context.Context, f Filter) ([]*Claim, error) {
	return m.matching(f), nil
}

func (m *mockRepo) Update(_ context.Context, c *Claim) error {
	stored, ok := m.claims[c.ID]
	if !ok {
		return ErrNotFound
	}
	c.BilledAmount, c.QPAAmount, c.AllowedAmount, c.PaidAmount =
		stored.BilledAmount, stored.QPAAmount, stored.AllowedAmount, stored.PaidAmount
	m.claims[c.ID] = *c
	return nil
}

func (m *mockRepo) UpdateTotals(_ context.Context, id uuid.UUID, t Totals) error {
	c, ok := m.claims[id]
	if !ok {
		return ErrNotFound
	}
	c.ApplyTotals(t)
	m.claims[id] = c
	return nil
}

func (m *mockRepo) AddLineItem(_ context.Context, it *LineItem) error {
	it.ID = uuid.New()
	m.items[it.ClaimID] = append(m.items[it.ClaimID], *it)
	return nil
}

func (m *mockRepo) UpdateLineItemPayment(_ context.Context, it *LineItem) error {
	list := m.items[it.ClaimID]
	for i := range list {
		if list[i].ID == it.ID {
			list[i].AllowedAmount = it.AllowedAmount
			list[i].PaidAmount = it.PaidAmount
			list[i].DenialReasonCode = it.DenialReasonCode
			return nil
		}
	}
	return ErrLineItemNotFound
}

func (m *mockRepo) ListLineItems(_ context.Context, claimID uuid.UUID) ([]LineItem, error) {
	return append([]LineItem(nil), m.items[claimID]...), nil
}

var testNow = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, db.NoTx, zerolog.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return svc, repo
}

func createClaim(t *testing.T, svc *Service, patient string) *Claim {
	t.Helper()
	c, err := svc.Create(context.Background(), patient, CreateRequest{PayerName: "UnitedHealthcare", IDREligible: true})
	if err != nil {
		t.Fatalf("create claim: %v", err)
	}
	return c
}

func moveTo(t *testing.T, svc *Service, id uuid.UUID, path ...string) {
	t.Helper()
	reason := "CO-45"
	for _, st := range path {
		change := StatusChange{Status: st}
		if st == StatusDenied {
			change.DenialReason = &reason
		}
		if _, err := svc.Transition(context.Background(), id, change); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
}

func TestService_Create(t *testing.T) {
	svc, _ := newTestService()
	c := createClaim(t, svc, "patient-1")
	if c.Status != StatusDraft {
		t.Errorf("expected draft, got %s", c.Status)
	}
	if _, err := svc.Create(context.Background(), "patient-1", CreateRequest{}); err == nil {
		t.Error("expected error without payer_name")
	}
	if _, err := svc.Create(context.Background(), "", CreateRequest{PayerName: "Aetna"}); err == nil {
		t.Error("expected error without patient")
	}
}

func TestService_AddLineItems_RewritesTotals(t *testing.T) {
	svc, repo := newTestService()
	c := createClaim(t, svc, "patient-1")

	d, err := svc.AddLineItems(context.Background(), c.ID, []LineItem{
		{ProcedureCode: "27447", ChargeAmount: 300000, QPAAmount: 100000},
		{ProcedureCode: "01402", ChargeAmount: 100000, QPAAmount: 60000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Totals.TotalCharged != 400000 || d.Multiplier != "2.50x" {
		t.Errorf("unexpected totals %+v (%s)", d.Totals, d.Multiplier)
	}
	stored := repo.claims[c.ID]
	if stored.BilledAmount != 400000 || stored.QPAAmount != 160000 {
		t.Errorf("stored totals not rewritten: %+v", stored)
	}
	if d.LineItems[0].Units != 1 {
		t.Errorf("expected units to default to 1, got %d", d.LineItems[0].Units)
	}

	// A stored claim always agrees with its aggregate.
	detail, err := svc.Detail(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Mismatches) != 0 {
		t.Errorf("expected consistent claim, got %+v", detail.Mismatches)
	}
}

func TestService_AddLineItems_Validation(t *testing.T) {
	svc, _ := newTestService()
	c := createClaim(t, svc, "patient-1")

	tests := map[string][]LineItem{
		"empty":           nil,
		"no code":         {{ChargeAmount: 100}},
		"negative charge": {{ProcedureCode: "99213", ChargeAmount: -1}},
		"negative units":  {{ProcedureCode: "99213", Units: -2}},
	}
	for name, items := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.AddLineItems(context.Background(), c.ID, items); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if _, err := svc.AddLineItems(context.Background(), uuid.New(), []LineItem{{ProcedureCode: "99213"}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Adjudicate(t *testing.T) {
	svc, repo := newTestService()
	c := createClaim(t, svc, "patient-1")
	d, _ := svc.AddLineItems(context.Background(), c.ID, []LineItem{{ProcedureCode: "27447", ChargeAmount: 300000, QPAAmount: 100000}})
	itemID := d.LineItems[0].ID

	d, err := svc.Adjudicate(context.Background(), c.ID, itemID, Adjudication{AllowedAmount: 120000, PaidAmount: 90000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.claims[c.ID].PaidAmount != 90000 || d.Totals.TotalAllowed != 120000 {
		t.Errorf("expected totals rewritten after adjudication, got %+v", repo.claims[c.ID])
	}
	if *d.PaidPercent != 30 {
		t.Errorf("expected 30%% paid, got %d", *d.PaidPercent)
	}

	d, err = svc.Adjudicate(context.Background(), c.ID, itemID, Adjudication{AllowedAmount: 300000, PaidAmount: 350000})
	if err != nil {
		t.Fatalf("overpayment must be stored, got %v", err)
	}
	if len(d.Warnings) == 0 {
		t.Error("expected an overpayment warning")
	}

	if _, err := svc.Adjudicate(context.Background(), c.ID, uuid.New(), Adjudication{}); !errors.Is(err, ErrLineItemNotFound) {
		t.Errorf("expected ErrLineItemNotFound, got %v", err)
	}
	if _, err := svc.Adjudicate(context.Background(), c.ID, itemID, Adjudication{PaidAmount: -1}); !errors.Is(err, money.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestService_Transition(t *testing.T) {
	svc, _ := newTestService()
	c := createClaim(t, svc, "patient-1")

	moveTo(t, svc, c.ID, StatusSubmitted)
	got, _ := svc.Get(context.Background(), c.ID)
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(testNow) {
		t.Errorf("expected submitted_at stamped, got %v", got.SubmittedAt)
	}

	if _, err := svc.Transition(context.Background(), c.ID, StatusChange{Status: StatusPaid}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	moveTo(t, svc, c.ID, StatusInReview)
	if _, err := svc.Transition(context.Background(), c.ID, StatusChange{Status: StatusDenied}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected denial_reason to be required, got %v", err)
	}
	moveTo(t, svc, c.ID, StatusDenied)

	got, _ = svc.Get(context.Background(), c.ID)
	if got.Status != StatusDenied || got.DenialReason == nil || *got.DenialReason != "CO-45" {
		t.Errorf("unexpected denied claim %+v", got)
	}
}

func TestService_Transition_IDRStatusesNeedACase(t *testing.T) {
	svc, _ := newTestService()
	c := createClaim(t, svc, "patient-1")
	moveTo(t, svc, c.ID, StatusSubmitted, StatusInReview, StatusDenied)

	for _, st := range []string{StatusIDRInitiated, StatusIDRResolved} {
		if _, err := svc.Transition(context.Background(), c.ID, StatusChange{Status: st}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Transition to %s: expected ErrInvalidTransition, got %v", st, err)
		}
	}
	got, _ := svc.Get(context.Background(), c.ID)
	if got.Status != StatusDenied {
		t.Fatalf("claim must stay denied, got %s", got.Status)
	}

	if _, err := svc.MarkIDR(context.Background(), c.ID, StatusClosed); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("MarkIDR must only set IDR statuses, got %v", err)
	}
	if _, err := svc.MarkIDR(context.Background(), c.ID, StatusIDRResolved); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("a denied claim cannot jump to idr_resolved, got %v", err)
	}
	if _, err := svc.MarkIDR(context.Background(), c.ID, StatusIDRInitiated); err != nil {
		t.Fatalf("MarkIDR initiated: %v", err)
	}
	if _, err := svc.MarkIDR(context.Background(), c.ID, StatusIDRResolved); err != nil {
		t.Fatalf("MarkIDR resolved: %v", err)
	}
	got, _ = svc.Get(context.Background(), c.ID)
	if got.Status != StatusIDRResolved {
		t.Errorf("expected idr_resolved, got %s", got.Status)
	}
}

func TestService_Transition_ClosedClaimIsFrozen(t *testing.T) {
	svc, _ := newTestService()
	c := createClaim(t, svc, "patient-1")
	moveTo(t, svc, c.ID, StatusClosed)

	if _, err := svc.AddLineItems(context.Background(), c.ID, []LineItem{{ProcedureCode: "99213"}}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestService_RecordAppeal(t *testing.T) {
	svc, _ := newTestService()
	c := createClaim(t, svc, "patient-1")

	if _, err := svc.RecordAppeal(context.Background(), c.ID, AppealLevel1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("draft claim must not be appealable, got %v", err)
	}

	moveTo(t, svc, c.ID, StatusSubmitted, StatusInReview, StatusDenied)

	if _, err := svc.RecordAppeal(context.Background(), c.ID, AppealLevel2); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second-level appeal before first must fail, got %v", err)
	}

	got, err := svc.RecordAppeal(context.Background(), c.ID, AppealLevel1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusAppealed || got.Appeal1SubmittedAt == nil {
		t.Errorf("unexpected appealed claim %+v", got)
	}
	if _, err := svc.RecordAppeal(context.Background(), c.ID, AppealLevel1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("duplicate first-level appeal must fail, got %v", err)
	}

	if _, err := svc.RecordAppeal(context.Background(), c.ID, AppealLevel2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err = svc.RecordAppeal(context.Background(), c.ID, ExternalReview)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ExternalReviewRequestedAt == nil {
		t.Error("expected external review timestamp")
	}

	if _, err := svc.RecordAppeal(context.Background(), c.ID, "appeal_9"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestService_Summary(t *testing.T) {
	svc, _ := newTestService()
	a := createClaim(t, svc, "patient-1")
	createClaim(t, svc, "patient-2")
	svc.AddLineItems(context.Background(), a.ID, []LineItem{{ProcedureCode: "27447", ChargeAmount: 300000, QPAAmount: 100000}})

	s, err := svc.Summary(context.Background(), Filter{PatientID: "patient-1"})
	if err != nil {
		t.Fatal(err)
	}
	if s.ClaimCount != 1 || s.TotalBilled != 300000 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestService_List_RejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService()
	if _, _, err := svc.List(context.Background(), Filter{Statuses: []string{"lost"}}, 20, 0); err == nil {
		t.Error("expected error for unknown status filter")
	}
}
