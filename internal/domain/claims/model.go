package claims

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/desthealth/claims/pkg/money"
)

// Claim statuses.
const (
	StatusDraft         = "draft"
	StatusSubmitted     = "submitted"
	StatusAcknowledged  = "acknowledged"
	StatusInReview      = "in_review"
	StatusPaid          = "paid"
	StatusPartiallyPaid = "partially_paid"
	StatusDenied        = "denied"
	StatusAppealed      = "appealed"
	StatusIDRInitiated  = "idr_initiated"
	StatusIDRResolved   = "idr_resolved"
	StatusClosed        = "closed"
)

// Claim is one claim per encounter and payer. The four money totals are
// always the sum of the claim's line items.
type Claim struct {
	ID                        uuid.UUID    `db:"id" json:"id"`
	PatientID                 string       `db:"patient_id" json:"patient_id"`
	BenefitsID                *uuid.UUID   `db:"benefits_id" json:"benefits_id,omitempty"`
	PayerName                 string       `db:"payer_name" json:"payer_name"`
	PayerClaimNumber          *string      `db:"payer_claim_number" json:"payer_claim_number,omitempty"`
	ProviderName              *string      `db:"provider_name" json:"provider_name,omitempty"`
	ServiceDate               *time.Time   `db:"service_date" json:"service_date,omitempty"`
	BilledAmount              money.Cents  `db:"billed_amount" json:"billed_amount"`
	QPAAmount                 money.Cents  `db:"qpa_amount" json:"qpa_amount"`
	AllowedAmount             money.Cents  `db:"allowed_amount" json:"allowed_amount"`
	PaidAmount                money.Cents  `db:"paid_amount" json:"paid_amount"`
	PatientResponsibility     *money.Cents `db:"patient_responsibility" json:"patient_responsibility,omitempty"`
	Status                    string       `db:"claim_status" json:"claim_status"`
	IDREligible               bool         `db:"idr_eligible" json:"idr_eligible"`
	AppealDeadline            *time.Time   `db:"appeal_deadline" json:"appeal_deadline,omitempty"`
	DenialReason              *string      `db:"denial_reason" json:"denial_reason,omitempty"`
	SubmittedAt               *time.Time   `db:"submitted_at" json:"submitted_at,omitempty"`
	Appeal1SubmittedAt        *time.Time   `db:"appeal_1_submitted_at" json:"appeal_1_submitted_at,omitempty"`
	Appeal2SubmittedAt        *time.Time   `db:"appeal_2_submitted_at" json:"appeal_2_submitted_at,omitempty"`
	ExternalReviewRequestedAt *time.Time   `db:"external_review_requested_at" json:"external_review_requested_at,omitempty"`
	CreatedAt                 time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time    `db:"updated_at" json:"updated_at"`
}

// Multiplier is billed / QPA, invalid when there is no QPA.
func (c *Claim) Multiplier() decimal.NullDecimal {
	return money.Ratio(c.BilledAmount, c.QPAAmount)
}

// ApplyTotals copies aggregated line-item totals onto the claim.
func (c *Claim) ApplyTotals(t Totals) {
	c.BilledAmount = t.TotalCharged
	c.QPAAmount = t.TotalQPA
	c.AllowedAmount = t.TotalAllowed
	c.PaidAmount = t.TotalPaid
}

// LineItem is one billed procedure. ChargeAmount is the line total, not a
// per-unit price.
type LineItem struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	ClaimID          uuid.UUID   `db:"claim_id" json:"claim_id"`
	ProcedureCode    string      `db:"procedure_code" json:"procedure_code"`
	Modifier         *string     `db:"modifier" json:"modifier,omitempty"`
	Units            int         `db:"units" json:"units"`
	ChargeAmount     money.Cents `db:"charge_amount" json:"charge_amount"`
	QPAAmount        money.Cents `db:"qpa_amount" json:"qpa_amount"`
	AllowedAmount    money.Cents `db:"allowed_amount" json:"allowed_amount"`
	PaidAmount       money.Cents `db:"paid_amount" json:"paid_amount"`
	DenialReasonCode *string     `db:"denial_reason_code" json:"denial_reason_code,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// Adjudication is the payer's decision on one line item.
type Adjudication struct {
	AllowedAmount    money.Cents `json:"allowed_amount"`
	PaidAmount       money.Cents `json:"paid_amount"`
	DenialReasonCode *string     `json:"denial_reason_code,omitempty"`
}

// Filter narrows claim listings. Empty fields match everything.
type Filter struct {
	PatientID string
	Statuses  []string
}

// CreateRequest opens a draft claim.
type CreateRequest struct {
	PatientID        string     `json:"patient_id,omitempty"`
	BenefitsID       *uuid.UUID `json:"benefits_id,omitempty"`
	PayerName        string     `json:"payer_name"`
	PayerClaimNumber *string    `json:"payer_claim_number,omitempty"`
	ProviderName     *string    `json:"provider_name,omitempty"`
	ServiceDate      *time.Time `json:"service_date,omitempty"`
	IDREligible      bool       `json:"idr_eligible"`
}

// StatusChange moves a claim along its lifecycle.
type StatusChange struct {
	Status                string       `json:"claim_status"`
	DenialReason          *string      `json:"denial_reason,omitempty"`
	AppealDeadline        *time.Time   `json:"appeal_deadline,omitempty"`
	PatientResponsibility *money.Cents `json:"patient_responsibility,omitempty"`
	IDREligible           *bool        `json:"idr_eligible,omitempty"`
	PayerClaimNumber      *string      `json:"payer_claim_number,omitempty"`
}

// Detail is the claim view returned by the API: the stored claim plus the
// live aggregate and any data-quality findings.
type Detail struct {
	*Claim
	LineItems   []LineItem `json:"line_items"`
	Totals      Totals     `json:"totals"`
	Multiplier  string     `json:"billed_multiplier"`
	PaidPercent *int       `json:"paid_percent,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	Mismatches  []Mismatch `json:"mismatches,omitempty"`
}
