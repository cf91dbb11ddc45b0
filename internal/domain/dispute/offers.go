package dispute

import (
	"github.com/shopspring/decimal"

	"github.com/desthealth/claims/pkg/money"
)

// OfferAnalysis compares baseball-arbitration offers with the QPA and, once
// decided, with the decision.
type OfferAnalysis struct {
	QPA                  money.Cents         `json:"qpa"`
	ProviderOffer        *money.Cents        `json:"provider_offer,omitempty"`
	PayerOffer           *money.Cents        `json:"payer_offer,omitempty"`
	ProviderMultiple     decimal.NullDecimal `json:"provider_multiple"`
	PayerMultiple        decimal.NullDecimal `json:"payer_multiple"`
	Spread               *money.Cents        `json:"spread,omitempty"`
	Decision             *money.Cents        `json:"decision,omitempty"`
	DecisionMultiple     decimal.NullDecimal `json:"decision_multiple"`
	PrevailingParty      string              `json:"prevailing_party,omitempty"`
	DecisionVsQPA        *money.Cents        `json:"decision_vs_qpa,omitempty"`
	DecisionVsPayerOffer *money.Cents        `json:"decision_vs_payer_offer,omitempty"`
}

func multiple(amount *money.Cents, qpa money.Cents) decimal.NullDecimal {
	if amount == nil {
		return decimal.NullDecimal{}
	}
	return money.Ratio(*amount, qpa)
}

func abs(c money.Cents) money.Cents {
	if c < 0 {
		return -c
	}
	return c
}

// PrevailingParty returns the party whose offer is closer to decision. On an
// exact tie the offer closer to the QPA wins, and if that also ties the payer
// wins.
func PrevailingParty(provider, payer, qpa, decision money.Cents) string {
	dProv, dPayer := abs(decision-provider), abs(decision-payer)
	switch {
	case dProv < dPayer:
		return PartyProvider
	case dPayer < dProv:
		return PartyPayer
	}
	if abs(provider-qpa) < abs(payer-qpa) {
		return PartyProvider
	}
	return PartyPayer
}

// AnalyzeOffers works on whatever is known so far. Multiples are undefined
// without a QPA; the prevailing party needs both offers and a decision.
func AnalyzeOffers(provider, payer *money.Cents, qpa money.Cents, decision *money.Cents) OfferAnalysis {
	a := OfferAnalysis{
		QPA:              qpa,
		ProviderOffer:    provider,
		PayerOffer:       payer,
		ProviderMultiple: multiple(provider, qpa),
		PayerMultiple:    multiple(payer, qpa),
		Decision:         decision,
		DecisionMultiple: multiple(decision, qpa),
	}
	if provider != nil && payer != nil {
		a.Spread = money.Ptr(*provider - *payer)
	}
	if decision == nil {
		return a
	}
	a.DecisionVsQPA = money.Ptr(*decision - qpa)
	if payer != nil {
		a.DecisionVsPayerOffer = money.Ptr(*decision - *payer)
	}
	if provider != nil && payer != nil {
		a.PrevailingParty = PrevailingParty(*provider, *payer, qpa, *decision)
	}
	return a
}

// Analyze runs AnalyzeOffers over a stored case.
func (c *Case) Analyze() OfferAnalysis {
	return AnalyzeOffers(c.ProviderOfferAmount, c.PayerOfferAmount, c.QPAAmount, c.DecisionAmount)
}
