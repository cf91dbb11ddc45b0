package billing

import (
	"time"

	"github.com/stripe/stripe-go/v76"
)

// Kind is one of the event kinds the reconciler acts on.
type Kind string

const (
	KindCheckoutCompleted       Kind = "checkout_completed"
	KindSubscriptionUpdated     Kind = "subscription_updated"
	KindSubscriptionDeleted     Kind = "subscription_deleted"
	KindInvoicePaymentSucceeded Kind = "invoice_payment_succeeded"
	KindInvoicePaymentFailed    Kind = "invoice_payment_failed"
)

var kinds = map[string]Kind{
	"checkout.session.completed":    KindCheckoutCompleted,
	"customer.subscription.updated": KindSubscriptionUpdated,
	"customer.subscription.deleted": KindSubscriptionDeleted,
	"invoice.payment_succeeded":     KindInvoicePaymentSucceeded,
	"invoice.payment_failed":        KindInvoicePaymentFailed,
}

// KindOf maps a processor event type to a Kind. ok is false for types the
// reconciler does not handle.
func KindOf(eventType string) (Kind, bool) {
	k, ok := kinds[eventType]
	return k, ok
}

func normalizeStatus(s string) (string, bool) {
	switch s {
	case "active":
		return StatusActive, true
	case "trialing":
		return StatusTrialing, true
	case "past_due", "unpaid", "incomplete", "paused":
		return StatusPastDue, true
	case "canceled", "cancelled", "incomplete_expired":
		return StatusCancelled, true
	}
	return "", false
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func eventTime(e *stripe.Event) time.Time {
	return time.Unix(e.Created, 0).UTC()
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// subscriptionTier reads the plan tier from subscription metadata, then the
// first price's metadata, then its lookup key.
func subscriptionTier(s *stripe.Subscription) string {
	if t := s.Metadata["tier"]; t != "" {
		return t
	}
	if s.Items == nil || len(s.Items.Data) == 0 || s.Items.Data[0].Price == nil {
		return ""
	}
	p := s.Items.Data[0].Price
	if t := p.Metadata["tier"]; t != "" {
		return t
	}
	return p.LookupKey
}

// checkoutUserID returns the application user a session was opened for.
func checkoutUserID(cs *stripe.CheckoutSession) string {
	if cs.ClientReferenceID != "" {
		return cs.ClientReferenceID
	}
	return cs.Metadata["user_id"]
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Subscription == nil {
		return ""
	}
	return inv.Subscription.ID
}

// subscriptionFrom builds the stored row for a processor subscription.
func subscriptionFrom(userID string, s *stripe.Subscription, at time.Time) (*Subscription, bool) {
	status, ok := normalizeStatus(string(s.Status))
	if !ok {
		return nil, false
	}
	return &Subscription{
		UserID:               userID,
		StripeSubscriptionID: s.ID,
		StripeCustomerID:     customerID(s.Customer),
		Tier:                 subscriptionTier(s),
		Status:               status,
		CurrentPeriodStart:   unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		LastEventAt:          at,
	}, true
}
