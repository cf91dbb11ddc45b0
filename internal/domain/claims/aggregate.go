package claims

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/desthealth/claims/pkg/money"
)

// ErrOverpaymentDetected flags a claim whose paid total exceeds its charges.
// It is reported, never clamped away.
var ErrOverpaymentDetected = errors.New("overpayment detected")

// Totals is the roll-up of a claim's line items.
type Totals struct {
	LineCount    int                 `json:"line_count"`
	TotalCharged money.Cents         `json:"total_charged"`
	TotalQPA     money.Cents         `json:"total_qpa"`
	TotalAllowed money.Cents         `json:"total_allowed"`
	TotalPaid    money.Cents         `json:"total_paid"`
	Multiplier   decimal.NullDecimal `json:"multiplier"`
}

// Aggregate sums line items. An empty slice yields zero totals and an
// undefined multiplier.
func Aggregate(items []LineItem) Totals {
	var t Totals
	for _, it := range items {
		t.LineCount++
		t.TotalCharged += it.ChargeAmount
		t.TotalQPA += it.QPAAmount
		t.TotalAllowed += it.AllowedAmount
		t.TotalPaid += it.PaidAmount
	}
	t.Multiplier = money.Ratio(t.TotalCharged, t.TotalQPA)
	return t
}

// PaidPercent is paid/charged as a whole percentage clamped to [0,100]. ok is
// false when nothing was charged.
func (t Totals) PaidPercent() (pct int, ok bool) {
	p, ok := money.PercentOf(t.TotalPaid, t.TotalCharged)
	if !ok {
		return 0, false
	}
	return money.Clamp(p, 0, 100), true
}

// Validate reports ErrOverpaymentDetected when paid exceeds charged.
func (t Totals) Validate() error {
	if t.TotalPaid > t.TotalCharged {
		return fmt.Errorf("%w: paid %s exceeds charged %s", ErrOverpaymentDetected,
			money.Format(t.TotalPaid), money.Format(t.TotalCharged))
	}
	return nil
}

// Mismatch is a stored claim field that disagrees with its line items.
type Mismatch struct {
	Field    string      `json:"field"`
	Stored   money.Cents `json:"stored"`
	Computed money.Cents `json:"computed"`
}

// CheckConsistency compares the claim's stored money fields with t.
func CheckConsistency(c *Claim, t Totals) []Mismatch {
	var out []Mismatch
	check := func(field string, stored, computed money.Cents) {
		if stored != computed {
			out = append(out, Mismatch{Field: field, Stored: stored, Computed: computed})
		}
	}
	check("billed_amount", c.BilledAmount, t.TotalCharged)
	check("qpa_amount", c.QPAAmount, t.TotalQPA)
	check("allowed_amount", c.AllowedAmount, t.TotalAllowed)
	check("paid_amount", c.PaidAmount, t.TotalPaid)
	return out
}

// BuildDetail assembles the API view of a claim from its line items.
func BuildDetail(c *Claim, items []LineItem) *Detail {
	t := Aggregate(items)
	d := &Detail{
		Claim:      c,
		LineItems:  items,
		Totals:     t,
		Multiplier: money.FormatRatio(t.Multiplier),
		Mismatches: CheckConsistency(c, t),
	}
	if d.LineItems == nil {
		d.LineItems = []LineItem{}
	}
	if p, ok := t.PaidPercent(); ok {
		d.PaidPercent = &p
	}
	if err := t.Validate(); err != nil {
		d.Warnings = append(d.Warnings, err.Error())
	}
	if len(d.Mismatches) > 0 {
		d.Warnings = append(d.Warnings, "stored claim totals disagree with line items")
	}
	return d
}
