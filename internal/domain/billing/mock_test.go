package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/desthealth/claims/internal/domain/claims"
	"github.com/desthealth/claims/internal/platform/processor"
)

type paymentKey struct {
	invoice string
	status  string
	attempt int
}

// memRepo mirrors the SQL guards of repoPG.
type memRepo struct {
	mu        sync.Mutex
	subs      map[string]Subscription // by user_id
	payments  map[paymentKey]PaymentHistory
	order     []paymentKey
	customers map[string]Customer // by user_id
	events    map[string]WebhookEvent
	failNext  error
}

func newMemRepo() *memRepo {
	return &memRepo{
		subs:      make(map[string]Subscription),
		payments:  make(map[paymentKey]PaymentHistory),
		customers: make(map[string]Customer),
		events:    make(map[string]WebhookEvent),
	}
}

func (m *memRepo) UpsertSubscription(_ context.Context, s *Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return false, err
	}
	if cur, ok := m.subs[s.UserID]; ok {
		if !replaces(&cur, s) {
			return false, nil
		}
		s.ID, s.CreatedAt = cur.ID, cur.CreatedAt
	} else {
		s.ID = uuid.New()
	}
	m.subs[s.UserID] = *s
	return true, nil
}

// replaces mirrors the WHERE clause of repoPG.UpsertSubscription.
func replaces(cur, next *Subscription) bool {
	if cur.StripeSubscriptionID == next.StripeSubscriptionID {
		return !next.LastEventAt.Before(cur.LastEventAt)
	}
	return next.Status != StatusCancelled || cur.Status == StatusCancelled
}

func (m *memRepo) GetSubscriptionByUser(_ context.Context, userID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memRepo) GetSubscriptionByStripeID(_ context.Context, id string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.StripeSubscriptionID == id {
			s := s
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) UpdateSubscription(_ context.Context, s *Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for user, cur := range m.subs {
		if cur.StripeSubscriptionID != s.StripeSubscriptionID {
			continue
		}
		if cur.Status == StatusCancelled || s.LastEventAt.Before(cur.LastEventAt) {
			return false, nil
		}
		s.ID, s.UserID, s.CreatedAt = cur.ID, cur.UserID, cur.CreatedAt
		m.subs[user] = *s
		return true, nil
	}
	return false, nil
}

func (m *memRepo) MarkPastDue(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for user, cur := range m.subs {
		if cur.StripeSubscriptionID != id {
			continue
		}
		if cur.Status == StatusCancelled || at.Before(cur.LastEventAt) {
			return false, nil
		}
		cur.Status, cur.LastEventAt = StatusPastDue, at
		m.subs[user] = cur
		return true, nil
	}
	return false, nil
}

func (m *memRepo) InsertPayment(_ context.Context, p *PaymentHistory) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := paymentKey{p.StripeInvoiceID, p.Status, p.AttemptCount}
	if _, ok := m.payments[k]; ok {
		return false, nil
	}
	p.ID = uuid.New()
	m.payments[k] = *p
	m.order = append(m.order, k)
	return true, nil
}

func (m *memRepo) ListPayments(_ context.Context, userID string, limit, offset int) ([]*PaymentHistory, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*PaymentHistory
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.payments[m.order[i]]
		if p.UserID == userID {
			all = append(all, &p)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memRepo) GetCustomer(_ context.Context, userID string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memRepo) GetCustomerByStripeID(_ context.Context, id string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.StripeCustomerID == id {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) SaveCustomer(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.UserID]; !ok {
		m.customers[c.UserID] = *c
	}
	return nil
}

func (m *memRepo) GetEvent(_ context.Context, id string) (*WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *memRepo) RecordEvent(_ context.Context, e *WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.EventID]; !ok {
		m.events[e.EventID] = *e
	}
	return nil
}

type fakeProcessor struct {
	subs      map[string]*stripe.Subscription
	sessions  []processor.CheckoutParams
	customers int
	err       error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{subs: make(map[string]*stripe.Subscription)}
}

func (f *fakeProcessor) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.subs[id]
	if !ok {
		return nil, processor.ErrNotFound
	}
	return s, nil
}

func (f *fakeProcessor) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.customers++
	return "cus_" + userID, nil
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, p processor.CheckoutParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sessions = append(f.sessions, p)
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1", Mode: stripe.CheckoutSessionMode(p.Mode)}, nil
}

type fakeClaims map[uuid.UUID]claims.Claim

func (f fakeClaims) Get(_ context.Context, id uuid.UUID) (*claims.Claim, error) {
	c, ok := f[id]
	if !ok {
		return nil, claims.ErrNotFound
	}
	return &c, nil
}

var errBoom = errors.New("boom")
