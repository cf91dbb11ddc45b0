package claims

import (
	"github.com/shopspring/decimal"

	"github.com/desthealth/claims/pkg/money"
)

// StatusBucket is the count and money in one claim status.
type StatusBucket struct {
	Count  int         `json:"count"`
	Billed money.Cents `json:"billed"`
	Paid   money.Cents `json:"paid"`
}

// PipelineSummary rolls a set of claims up for the dashboard.
type PipelineSummary struct {
	ClaimCount        int                     `json:"claim_count"`
	ByStatus          map[string]StatusBucket `json:"by_status"`
	TotalBilled       money.Cents             `json:"total_billed"`
	TotalQPA          money.Cents             `json:"total_qpa"`
	TotalAllowed      money.Cents             `json:"total_allowed"`
	TotalPaid         money.Cents             `json:"total_paid"`
	Outstanding       money.Cents             `json:"outstanding"`
	AverageMultiplier decimal.NullDecimal     `json:"average_multiplier"`
	CollectedPercent  *int                    `json:"collected_percent,omitempty"`
	OverpaidClaims    int                     `json:"overpaid_claims"`
}

// Summarize rolls claims up by status. Outstanding is billed minus paid over
// claims that are not closed; the average multiplier only counts claims with a
// QPA and is undefined when none has one.
func Summarize(list []*Claim) PipelineSummary {
	s := PipelineSummary{ByStatus: make(map[string]StatusBucket)}
	sum := decimal.Zero
	withQPA := 0

	for _, c := range list {
		s.ClaimCount++
		b := s.ByStatus[c.Status]
		b.Count++
		b.Billed += c.BilledAmount
		b.Paid += c.PaidAmount
		s.ByStatus[c.Status] = b

		s.TotalBilled += c.BilledAmount
		s.TotalQPA += c.QPAAmount
		s.TotalAllowed += c.AllowedAmount
		s.TotalPaid += c.PaidAmount
		if c.Status != StatusClosed {
			s.Outstanding += money.Max(0, c.BilledAmount-c.PaidAmount)
		}
		if c.PaidAmount > c.BilledAmount {
			s.OverpaidClaims++
		}
		if m := c.Multiplier(); m.Valid {
			sum = sum.Add(m.Decimal)
			withQPA++
		}
	}

	if withQPA > 0 {
		s.AverageMultiplier = decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(withQPA))).Round(4))
	}
	if p, ok := money.PercentOf(s.TotalPaid, s.TotalBilled); ok {
		p = money.Clamp(p, 0, 100)
		s.CollectedPercent = &p
	}
	return s
}
