package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"

	"github.com/desthealth/claims/internal/platform/cache"
	"github.com/desthealth/claims/internal/platform/db"
	"github.com/desthealth/claims/internal/platform/events"
	"github.com/desthealth/claims/internal/platform/processor"
	"github.com/desthealth/claims/pkg/money"
)

// ErrInvalidEvent is returned for deliveries that cannot be processed at all.
var ErrInvalidEvent = errors.New("invalid webhook event")

// The processor retries deliveries for three days.
const seenTTL = 72 * time.Hour

// Processor is the payment processor API used by billing.
type Processor interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, p processor.CheckoutParams) (*stripe.CheckoutSession, error)
}

// Result is the answer to one delivery.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	Replayed bool    `json:"replayed,omitempty"`
}

type notification struct {
	key  string
	data interface{}
}

// Reconciler applies processor events to the local subscription and payment
// ledger. Every write is keyed on a natural key so a replayed event is a no-op.
type Reconciler struct {
	repo      Repository
	processor Processor
	seen      cache.Store
	publisher events.Publisher
	inTx      db.TxRunner
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReconciler(repo Repository, proc Processor, seen cache.Store, publisher events.Publisher, inTx db.TxRunner, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		processor: proc,
		seen:      seen,
		publisher: publisher,
		inTx:      inTx,
		now:       time.Now,
		logger:    logger,
	}
}

func seenKey(eventID string) string { return "stripe_event:" + eventID }

// Handle processes one verified event. Any returned error means the event was
// not applied and the sender should deliver it again.
func (r *Reconciler) Handle(ctx context.Context, evt *stripe.Event) (Result, error) {
	if evt.ID == "" || evt.Type == "" {
		return Result{}, fmt.Errorf("%w: missing id or type", ErrInvalidEvent)
	}
	log := r.logger.With().Str("event_id", evt.ID).Str("event_type", string(evt.Type)).Logger()

	if v, ok, err := r.seen.Get(ctx, seenKey(evt.ID)); err != nil {
		log.Warn().Err(err).Msg("processed-event cache unavailable")
	} else if ok {
		log.Info().Str("outcome", v).Msg("replayed event acknowledged")
		return Result{Outcome: Outcome(v), Replayed: true}, nil
	}

	var (
		res   Result
		notes []notification
	)
	err := r.inTx(ctx, func(ctx context.Context) error {
		prior, err := r.repo.GetEvent(ctx, evt.ID)
		if err == nil {
			res = Result{Outcome: prior.Outcome, Replayed: true}
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		outcome, n, err := r.apply(ctx, evt)
		if errors.Is(err, ErrUnknownEventTarget) {
			log.Warn().Err(err).Msg("event target not found")
			outcome, n = OutcomeUnknownTarget, nil
		} else if err != nil {
			return err
		}
		res, notes = Result{Outcome: outcome}, n
		return r.repo.RecordEvent(ctx, &WebhookEvent{
			EventID:     evt.ID,
			EventType:   string(evt.Type),
			Outcome:     outcome,
			ProcessedAt: r.now().UTC(),
		})
	})
	if err != nil {
		log.Error().Err(err).Msg("event processing failed")
		return Result{}, err
	}

	if err := r.seen.Set(ctx, seenKey(evt.ID), string(res.Outcome), seenTTL); err != nil {
		log.Warn().Err(err).Msg("failed to cache processed event")
	}
	for _, n := range notes {
		if err := r.publisher.Publish(ctx, n.key, n.data); err != nil {
			log.Warn().Err(err).Str("routing_key", n.key).Msg("failed to publish billing event")
		}
	}
	log.Info().Str("outcome", string(res.Outcome)).Bool("replayed", res.Replayed).Msg("billing event processed")
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, evt *stripe.Event) (Outcome, []notification, error) {
	kind, ok := KindOf(string(evt.Type))
	if !ok {
		return OutcomeIgnored, nil, nil
	}
	if evt.Data == nil {
		return "", nil, fmt.Errorf("%w: no data object", ErrInvalidEvent)
	}
	raw := evt.Data.Raw
	switch kind {
	case KindCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return r.checkoutCompleted(ctx, &s, eventTime(evt))
	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return r.subscriptionChanged(ctx, &s, kind == KindSubscriptionDeleted, eventTime(evt))
	default:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return r.invoicePayment(ctx, &inv, kind == KindInvoicePaymentSucceeded, eventTime(evt))
	}
}

func changed(s *Subscription) notification {
	return notification{key: events.SubscriptionChanged, data: map[string]string{
		"user_id":                s.UserID,
		"stripe_subscription_id": s.StripeSubscriptionID,
		"status":                 s.Status,
		"tier":                   s.Tier,
	}}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, cs *stripe.CheckoutSession, at time.Time) (Outcome, []notification, error) {
	if cs.Mode != stripe.CheckoutSessionModeSubscription {
		return OutcomeIgnored, nil, nil
	}
	userID := checkoutUserID(cs)
	if userID == "" || cs.Subscription == nil || cs.Subscription.ID == "" {
		return "", nil, fmt.Errorf("%w: checkout session %s has no user or subscription", ErrUnknownEventTarget, cs.ID)
	}
	ps, err := r.processor.GetSubscription(ctx, cs.Subscription.ID)
	if errors.Is(err, processor.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: subscription %s", ErrUnknownEventTarget, cs.Subscription.ID)
	}
	if err != nil {
		return "", nil, fmt.Errorf("fetch subscription: %w", err)
	}
	sub, ok := subscriptionFrom(userID, ps, at)
	if !ok {
		r.logger.Warn().Str("status", string(ps.Status)).Msg("unrecognised subscription status")
		return OutcomeIgnored, nil, nil
	}
	if sub.Tier == "" {
		sub.Tier = cs.Metadata["tier"]
	}
	if cid := customerID(cs.Customer); cid != "" {
		if err := r.repo.SaveCustomer(ctx, &Customer{UserID: userID, StripeCustomerID: cid}); err != nil {
			return "", nil, fmt.Errorf("save customer: %w", err)
		}
	}
	applied, err := r.repo.UpsertSubscription(ctx, sub)
	if err != nil {
		return "", nil, fmt.Errorf("upsert subscription: %w", err)
	}
	if !applied {
		return OutcomeIgnored, nil, nil
	}
	return OutcomeApplied, []notification{changed(sub)}, nil
}

func (r *Reconciler) subscriptionChanged(ctx context.Context, ps *stripe.Subscription, deleted bool, at time.Time) (Outcome, []notification, error) {
	current, err := r.repo.GetSubscriptionByStripeID(ctx, ps.ID)
	if errors.Is(err, ErrNotFound) {
		return "", nil, fmt.Errorf("%w: subscription %s", ErrUnknownEventTarget, ps.ID)
	}
	if err != nil {
		return "", nil, err
	}
	if current.Status == StatusCancelled || at.Before(current.LastEventAt) {
		return OutcomeIgnored, nil, nil
	}

	next, ok := subscriptionFrom(current.UserID, ps, at)
	if !ok {
		r.logger.Warn().Str("status", string(ps.Status)).Msg("unrecognised subscription status")
		return OutcomeIgnored, nil, nil
	}
	if deleted {
		next.Status = StatusCancelled
	}
	if next.Tier == "" {
		next.Tier = current.Tier
	}
	if next.StripeCustomerID == "" {
		next.StripeCustomerID = current.StripeCustomerID
	}
	applied, err := r.repo.UpdateSubscription(ctx, next)
	if err != nil {
		return "", nil, fmt.Errorf("update subscription: %w", err)
	}
	if !applied {
		return OutcomeIgnored, nil, nil
	}
	var notes []notification
	if next.Status != current.Status || next.Tier != current.Tier {
		notes = append(notes, changed(next))
	}
	return OutcomeApplied, notes, nil
}

// resolveUser finds the user an invoice belongs to, from the subscription row
// first and the customer mapping second.
func (r *Reconciler) resolveUser(ctx context.Context, inv *stripe.Invoice) (string, error) {
	if subID := invoiceSubscriptionID(inv); subID != "" {
		s, err := r.repo.GetSubscriptionByStripeID(ctx, subID)
		if err == nil {
			return s.UserID, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	if cid := customerID(inv.Customer); cid != "" {
		c, err := r.repo.GetCustomerByStripeID(ctx, cid)
		if err == nil {
			return c.UserID, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: invoice %s", ErrUnknownEventTarget, inv.ID)
}

func (r *Reconciler) invoicePayment(ctx context.Context, inv *stripe.Invoice, succeeded bool, at time.Time) (Outcome, []notification, error) {
	if inv.ID == "" {
		return "", nil, fmt.Errorf("%w: invoice without id", ErrInvalidEvent)
	}
	userID, err := r.resolveUser(ctx, inv)
	if err != nil {
		return "", nil, err
	}

	p := &PaymentHistory{
		StripeInvoiceID: inv.ID,
		UserID:          userID,
		AmountPaid:      money.Cents(inv.AmountPaid),
		AmountDue:       money.Cents(inv.AmountDue),
		Currency:        string(inv.Currency),
		Status:          PaymentSucceeded,
		AttemptCount:    int(inv.AttemptCount),
		PeriodStart:     unixTime(inv.PeriodStart),
		PeriodEnd:       unixTime(inv.PeriodEnd),
	}
	if subID := invoiceSubscriptionID(inv); subID != "" {
		p.StripeSubscriptionID = &subID
	}
	if !succeeded {
		p.Status = PaymentFailed
	}

	inserted, err := r.repo.InsertPayment(ctx, p)
	if err != nil {
		return "", nil, fmt.Errorf("insert payment: %w", err)
	}

	var notes []notification
	if !succeeded && p.StripeSubscriptionID != nil {
		marked, err := r.repo.MarkPastDue(ctx, *p.StripeSubscriptionID, at)
		if err != nil {
			return "", nil, fmt.Errorf("mark past due: %w", err)
		}
		if marked {
			inserted = true
		}
	}
	if !inserted {
		return OutcomeIgnored, nil, nil
	}
	if !succeeded {
		notes = append(notes, notification{key: events.PaymentFailed, data: map[string]interface{}{
			"user_id":       userID,
			"invoice_id":    inv.ID,
			"amount_due":    inv.AmountDue,
			"attempt_count": inv.AttemptCount,
		}})
	}
	return OutcomeApplied, notes, nil
}
