package dispute

import (
	"time"

	"github.com/google/uuid"

	"github.com/desthealth/claims/pkg/money"
)

// IDR case statuses, in the order a case moves through them. Withdrawn is
// terminal and reachable from any unresolved status.
const (
	CaseNegotiation     = "negotiation"
	CaseInitiated       = "initiated"
	CaseEntitySelected  = "entity_selected"
	CaseOffersSubmitted = "offers_submitted"
	CaseResolved        = "resolved"
	CaseWithdrawn       = "withdrawn"
)

var caseOrder = map[string]int{
	CaseNegotiation:     0,
	CaseInitiated:       1,
	CaseEntitySelected:  2,
	CaseOffersSubmitted: 3,
	CaseResolved:        4,
}

// Parties to an arbitration.
const (
	PartyProvider = "provider"
	PartyPayer    = "payer"
)

// Case is the independent dispute resolution record for one claim.
type Case struct {
	ID                  uuid.UUID    `db:"id" json:"id"`
	ClaimID             uuid.UUID    `db:"claim_id" json:"claim_id"`
	Status              string       `db:"status" json:"status"`
	IDREntity           *string      `db:"idr_entity" json:"idr_entity,omitempty"`
	QPAAmount           money.Cents  `db:"qpa_amount" json:"qpa_amount"`
	ProviderOfferAmount *money.Cents `db:"provider_offer_amount" json:"provider_offer_amount,omitempty"`
	PayerOfferAmount    *money.Cents `db:"payer_offer_amount" json:"payer_offer_amount,omitempty"`
	DecisionAmount      *money.Cents `db:"decision_amount" json:"decision_amount,omitempty"`
	PrevailingParty     *string      `db:"prevailing_party" json:"prevailing_party,omitempty"`
	InitiatedAt         *time.Time   `db:"initiated_at" json:"initiated_at,omitempty"`
	OffersDueDate       *time.Time   `db:"offers_due_date" json:"offers_due_date,omitempty"`
	DecisionDueDate     *time.Time   `db:"decision_due_date" json:"decision_due_date,omitempty"`
	IDRFeeAmount        *money.Cents `db:"idr_fee_amount" json:"idr_fee_amount,omitempty"`
	IDRFeePaidBy        *string      `db:"idr_fee_paid_by" json:"idr_fee_paid_by,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

// HasOffer reports whether either party has submitted an offer.
func (c *Case) HasOffer() bool {
	return c.ProviderOfferAmount != nil || c.PayerOfferAmount != nil
}

// Terminal reports whether the case can no longer change.
func (c *Case) Terminal() bool {
	return c.Status == CaseResolved || c.Status == CaseWithdrawn
}

type EntityRequest struct {
	IDREntity     string       `json:"idr_entity"`
	OffersDueDate *time.Time   `json:"offers_due_date,omitempty"`
	IDRFeeAmount  *money.Cents `json:"idr_fee_amount,omitempty"`
}

type OffersRequest struct {
	ProviderOfferAmount *money.Cents `json:"provider_offer_amount,omitempty"`
	PayerOfferAmount    *money.Cents `json:"payer_offer_amount,omitempty"`
	DecisionDueDate     *time.Time   `json:"decision_due_date,omitempty"`
}

type DecisionRequest struct {
	DecisionAmount money.Cents `json:"decision_amount"`
}

type AppealRequest struct {
	Level string `json:"level"`
}
