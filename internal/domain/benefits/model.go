package benefits

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/desthealth/claims/pkg/money"
)

// Verification statuses. Expired is never written; it is derived at read time
// from VerifiedAt and the policy validity window.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusFailed   = "failed"
	StatusExpired  = "expired"
)

// PlanTerms is one network tier (in-network or out-of-network) of a plan.
type PlanTerms struct {
	DeductibleIndividual *money.Cents        `json:"deductible_individual,omitempty"`
	DeductibleFamily     *money.Cents        `json:"deductible_family,omitempty"`
	DeductibleMet        *money.Cents        `json:"deductible_met,omitempty"`
	CoinsurancePct       decimal.NullDecimal `json:"coinsurance_pct"`
	OOPMax               *money.Cents        `json:"oop_max,omitempty"`
	OOPMet               *money.Cents        `json:"oop_met,omitempty"`
}

// Populated reports whether any term of the tier carries a value.
func (t PlanTerms) Populated() bool {
	return t.DeductibleIndividual != nil || t.DeductibleFamily != nil || t.DeductibleMet != nil ||
		t.CoinsurancePct.Valid || t.OOPMax != nil || t.OOPMet != nil
}

// Validate enforces deductible_met <= deductible_individual and a coinsurance
// percentage within [0,100]. label prefixes error messages ("oon", "in_network").
func (t PlanTerms) Validate(label string) error {
	for name, v := range map[string]*money.Cents{
		"deductible_individual": t.DeductibleIndividual,
		"deductible_family":     t.DeductibleFamily,
		"deductible_met":        t.DeductibleMet,
		"oop_max":               t.OOPMax,
		"oop_met":               t.OOPMet,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s %s must not be negative", ErrInvalidRequest, label, name)
		}
	}
	if t.DeductibleMet != nil && t.DeductibleIndividual != nil && *t.DeductibleMet > *t.DeductibleIndividual {
		return fmt.Errorf("%w: %s deductible_met (%s) exceeds deductible_individual (%s)",
			ErrInvalidRequest, label, money.Format(*t.DeductibleMet), money.Format(*t.DeductibleIndividual))
	}
	if t.OOPMet != nil && t.OOPMax != nil && *t.OOPMet > *t.OOPMax {
		return fmt.Errorf("%w: %s oop_met exceeds oop_max", ErrInvalidRequest, label)
	}
	if t.CoinsurancePct.Valid {
		pct := t.CoinsurancePct.Decimal
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: %s coinsurance_pct must be between 0 and 100, got %s", ErrInvalidRequest, label, pct)
		}
	}
	return nil
}

// Verification is a per-patient, per-payer snapshot of plan benefits.
type Verification struct {
	ID                     uuid.UUID    `db:"id" json:"id"`
	PatientID              string       `db:"patient_id" json:"patient_id"`
	PayerName              string       `db:"payer_name" json:"payer_name"`
	PayerID                *string      `db:"payer_id" json:"payer_id,omitempty"`
	MemberID               string       `db:"member_id" json:"member_id"`
	GroupNumber            *string      `db:"group_number" json:"group_number,omitempty"`
	PlanType               *string      `db:"plan_type" json:"plan_type,omitempty"`
	Notes                  *string      `db:"notes" json:"notes,omitempty"`
	Status                 string       `db:"verification_status" json:"verification_status"`
	InNetwork              PlanTerms    `json:"in_network"`
	OutOfNetwork           PlanTerms    `json:"out_of_network"`
	EstimatedAllowedAmount *money.Cents `db:"estimated_allowed_amount" json:"estimated_allowed_amount,omitempty"`
	FailureReason          *string      `db:"failure_reason" json:"failure_reason,omitempty"`
	VerifiedAt             *time.Time   `db:"verified_at" json:"verified_at,omitempty"`
	ExpiresAt              *time.Time   `json:"expires_at,omitempty"`
	CreatedAt              time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time    `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus returns the stored status, except that a verified snapshot
// older than validity reads as expired.
func (v *Verification) EffectiveStatus(now time.Time, validity time.Duration) string {
	if v.Status == StatusVerified && v.VerifiedAt != nil && validity > 0 && now.After(v.VerifiedAt.Add(validity)) {
		return StatusExpired
	}
	return v.Status
}

// applyExpiry rewrites Status and ExpiresAt for presentation.
func (v *Verification) applyExpiry(now time.Time, validity time.Duration) {
	if v.VerifiedAt != nil && validity > 0 {
		exp := v.VerifiedAt.Add(validity)
		v.ExpiresAt = &exp
	}
	v.Status = v.EffectiveStatus(now, validity)
}

// IntakeRequest is the patient-submitted verification request.
type IntakeRequest struct {
	PayerName   string  `json:"payer_name"`
	PayerID     *string `json:"payer_id,omitempty"`
	MemberID    string  `json:"member_id"`
	GroupNumber *string `json:"group_number,omitempty"`
	PlanType    *string `json:"plan_type,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// CompletionRequest is the administrative outcome of a verification.
type CompletionRequest struct {
	Status                 string       `json:"verification_status"`
	InNetwork              PlanTerms    `json:"in_network"`
	OutOfNetwork           PlanTerms    `json:"out_of_network"`
	EstimatedAllowedAmount *money.Cents `json:"estimated_allowed_amount,omitempty"`
	FailureReason          *string      `json:"failure_reason,omitempty"`
}
