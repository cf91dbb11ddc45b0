// Package estimate turns a verified benefits snapshot and a cash price into
// a reimbursement waterfall. Everything here is pure: the same inputs always
// produce the same Result.
package estimate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/desthealth/claims/internal/config"
	"github.com/desthealth/claims/internal/domain/benefits"
	"github.com/desthealth/claims/pkg/money"
)

// ErrBenefitsNotVerified is returned when the snapshot is not verified as of
// now, or carries no out-of-network terms.
var ErrBenefitsNotVerified = errors.New("benefits not verified")

// Where the allowed amount came from.
const (
	AllowedFromPlan          = "plan"
	AllowedFromPolicyDefault = "policy_default"
)

// Policy holds the estimator's configurable inputs: the allowed-amount ratio
// used when the plan states none, and how long a verification stays valid.
type Policy struct {
	DefaultAllowedRatio decimal.Decimal
	Validity            time.Duration
}

// PolicyFrom converts the loaded policy file into estimator terms.
func PolicyFrom(p config.Policy) Policy {
	return Policy{
		DefaultAllowedRatio: p.DefaultAllowedRatio,
		Validity:            time.Duration(p.BenefitsValidityDays) * 24 * time.Hour,
	}
}

// Result exposes every step of the waterfall so it can be shown line by line.
type Result struct {
	BenefitsID            uuid.UUID       `json:"benefits_id"`
	ServiceCost           money.Cents     `json:"service_cost"`
	AllowedAmount         money.Cents     `json:"allowed_amount"`
	AllowedSource         string          `json:"allowed_source"`
	DeductibleRemaining   money.Cents     `json:"deductible_remaining"`
	DeductibleApplied     money.Cents     `json:"deductible_applied"`
	AmountAfterDeductible money.Cents     `json:"amount_after_deductible"`
	CoinsurancePct        decimal.Decimal `json:"coinsurance_pct"`
	InsurerShare          money.Cents     `json:"insurer_share"`
	PatientResponsibility money.Cents     `json:"patient_responsibility"`
	// OOPRemaining is informational only; it never caps the waterfall.
	OOPRemaining *money.Cents `json:"oop_remaining,omitempty"`
	EstimatedAt  time.Time    `json:"estimated_at"`
}

// Estimate runs the out-of-network waterfall for serviceCost against b as of now.
// A missing OON coinsurance is treated as 0%, a missing deductible as fully met.
func Estimate(serviceCost money.Cents, b *benefits.Verification, p Policy, now time.Time) (Result, error) {
	if serviceCost <= 0 {
		return Result{}, fmt.Errorf("%w: service cost must be positive", money.ErrInvalidAmount)
	}
	if b == nil {
		return Result{}, ErrBenefitsNotVerified
	}
	if status := b.EffectiveStatus(now, p.Validity); status != benefits.StatusVerified {
		return Result{}, fmt.Errorf("%w: status is %s", ErrBenefitsNotVerified, status)
	}
	oon := b.OutOfNetwork
	if !oon.Populated() {
		return Result{}, fmt.Errorf("%w: no out-of-network terms on file", ErrBenefitsNotVerified)
	}

	r := Result{BenefitsID: b.ID, ServiceCost: serviceCost, EstimatedAt: now}

	if b.EstimatedAllowedAmount != nil {
		r.AllowedAmount = *b.EstimatedAllowedAmount
		r.AllowedSource = AllowedFromPlan
	} else {
		r.AllowedAmount = money.Scale(serviceCost, p.DefaultAllowedRatio)
		r.AllowedSource = AllowedFromPolicyDefault
	}

	if oon.DeductibleIndividual != nil {
		r.DeductibleRemaining = money.Max(0, *oon.DeductibleIndividual-money.ValueOr(oon.DeductibleMet, 0))
	}
	r.DeductibleApplied = money.Min(r.DeductibleRemaining, r.AllowedAmount)
	r.AmountAfterDeductible = r.AllowedAmount - r.DeductibleApplied

	if oon.CoinsurancePct.Valid {
		r.CoinsurancePct = oon.CoinsurancePct.Decimal
	}
	r.InsurerShare = money.Percent(r.AmountAfterDeductible, decimal.NewFromInt(100).Sub(r.CoinsurancePct))
	r.PatientResponsibility = money.Max(0, serviceCost-r.InsurerShare)

	if oon.OOPMax != nil {
		rem := money.Max(0, *oon.OOPMax-money.ValueOr(oon.OOPMet, 0))
		r.OOPRemaining = &rem
	}
	return r, nil
}
