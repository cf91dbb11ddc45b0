// Package money holds the integer-cents currency type used by every financial
// calculation in the engine, plus the only sanctioned conversions between cents
// and fractional dollar representations.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Placeholder is rendered wherever a value is undefined or not applicable.
const Placeholder = "—"

// ErrInvalidAmount is returned for non-positive, non-numeric or over-precise
// monetary input.
var ErrInvalidAmount = errors.New("invalid amount")

// Cents is a USD amount in integer cents.
type Cents int64

var hundred = decimal.NewFromInt(100)

var printer = message.NewPrinter(language.AmericanEnglish)

// FromDollars converts a dollar amount to cents, rounding half away from zero.
func FromDollars(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// ParseDollars parses user input such as "1,250.50" or "$75" into cents.
// Input with more than two fractional digits is rejected rather than rounded.
func ParseDollars(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}
	return FromDollars(d), nil
}

// Dollars returns the amount as an exact decimal dollar value.
func (c Cents) Dollars() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// Value stores cents as BIGINT.
func (c Cents) Value() (driver.Value, error) { return int64(c), nil }

// Scan reads a BIGINT column.
func (c *Cents) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*c = Cents(v)
	case int32:
		*c = Cents(v)
	case nil:
		*c = 0
	default:
		return fmt.Errorf("money: cannot scan %T into Cents", src)
	}
	return nil
}

// String implements fmt.Stringer using Format.
func (c Cents) String() string { return Format(c) }

// Format renders cents as "$1,234.56" (negative amounts as "-$1,234.56").
func Format(c Cents) string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + printer.Sprintf("$%d.%02d", v/100, v%100)
}

// FormatOptional renders nil as the placeholder.
func FormatOptional(c *Cents) string {
	if c == nil {
		return Placeholder
	}
	return Format(*c)
}

// Percent returns pct percent of amount, rounded half away from zero.
func Percent(amount Cents, pct decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(amount)).Mul(pct).Div(hundred).Round(0).IntPart())
}

// Scale multiplies amount by a ratio such as 0.70 and rounds to whole cents.
func Scale(amount Cents, ratio decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(amount)).Mul(ratio).Round(0).IntPart())
}

// Ratio returns num/den rounded to four places. The result is invalid when den
// is not positive; callers render it with FormatRatio.
func Ratio(num, den Cents) decimal.NullDecimal {
	if den <= 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den))).Round(4),
		Valid:   true,
	}
}

// FormatRatio renders a multiple as "2.50x", or the placeholder when undefined.
func FormatRatio(r decimal.NullDecimal) string {
	if !r.Valid {
		return Placeholder
	}
	return r.Decimal.StringFixed(2) + "x"
}

// PercentOf returns round(part/whole*100). ok is false when whole is zero.
func PercentOf(part, whole Cents) (pct int, ok bool) {
	if whole == 0 {
		return 0, false
	}
	p := decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(0)
	return int(p.IntPart()), true
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Max returns the larger of a and b.
func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// Ptr returns a pointer to c.
func Ptr(c Cents) *Cents { return &c }

// ValueOr dereferences c, returning def when c is nil.
func ValueOr(c *Cents, def Cents) Cents {
	if c == nil {
		return def
	}
	return *c
}
