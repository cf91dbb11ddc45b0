package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/desthealth/claims/pkg/money"
)

// Subscription statuses as stored. Processor statuses are normalized onto
// these by normalizeStatus.
const (
	StatusActive    = "active"
	StatusTrialing  = "trialing"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
)

const (
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// Subscription is one user's plan. It is written only by the Reconciler.
type Subscription struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	UserID               string     `db:"user_id" json:"user_id"`
	StripeSubscriptionID string     `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	StripeCustomerID     string     `db:"stripe_customer_id" json:"stripe_customer_id"`
	Tier                 string     `db:"tier" json:"tier"`
	Status               string     `db:"status" json:"status"`
	CurrentPeriodStart   *time.Time `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	LastEventAt          time.Time  `db:"last_event_at" json:"last_event_at"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// PaymentHistory is an append-only ledger row keyed by
// (stripe_invoice_id, status, attempt_count).
type PaymentHistory struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	StripeInvoiceID      string      `db:"stripe_invoice_id" json:"stripe_invoice_id"`
	UserID               string      `db:"user_id" json:"user_id"`
	StripeSubscriptionID *string     `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	AmountPaid           money.Cents `db:"amount_paid" json:"amount_paid"`
	AmountDue            money.Cents `db:"amount_due" json:"amount_due"`
	Currency             string      `db:"currency" json:"currency"`
	Status               string      `db:"status" json:"status"`
	AttemptCount         int         `db:"attempt_count" json:"attempt_count"`
	PeriodStart          *time.Time  `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd            *time.Time  `db:"period_end" json:"period_end,omitempty"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
}

// Customer maps an application user to their processor customer.
type Customer struct {
	UserID           string    `db:"user_id" json:"user_id"`
	StripeCustomerID string    `db:"stripe_customer_id" json:"stripe_customer_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Outcome records what processing an event did.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeUnknownTarget Outcome = "unknown_target"
)

// WebhookEvent is the processed-event log entry.
type WebhookEvent struct {
	EventID     string    `db:"event_id" json:"event_id"`
	EventType   string    `db:"event_type" json:"event_type"`
	Outcome     Outcome   `db:"outcome" json:"outcome"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}
