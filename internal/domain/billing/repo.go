package billing

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("billing record not found")
	// ErrUnknownEventTarget means an event refers to a subscription or user
	// this system has no record of. It is acknowledged, not retried.
	ErrUnknownEventTarget = errors.New("event target not found")
)

type Repository interface {
	// UpsertSubscription writes by user_id. For the same processor
	// subscription it reports false when the stored row has seen a newer
	// event. A different subscription replaces the row unless it would put a
	// cancelled subscription over a live one.
	UpsertSubscription(ctx context.Context, s *Subscription) (bool, error)
	GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	// UpdateSubscription writes by stripe_subscription_id, only when the row is
	// not cancelled and s.LastEventAt is not older than the stored one.
	UpdateSubscription(ctx context.Context, s *Subscription) (bool, error)
	// MarkPastDue applies the same guards as UpdateSubscription.
	MarkPastDue(ctx context.Context, stripeSubscriptionID string, at time.Time) (bool, error)

	// InsertPayment reports false when the natural key already exists.
	InsertPayment(ctx context.Context, p *PaymentHistory) (bool, error)
	ListPayments(ctx context.Context, userID string, limit, offset int) ([]*PaymentHistory, int, error)

	GetCustomer(ctx context.Context, userID string) (*Customer, error)
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*Customer, error)
	SaveCustomer(ctx context.Context, c *Customer) error

	GetEvent(ctx context.Context, eventID string) (*WebhookEvent, error)
	RecordEvent(ctx context.Context, e *WebhookEvent) error
}
