package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   Cents
		want string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{12345, "$123.45"},
		{123456789, "$1,234,567.89"},
		{-1200, "-$12.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in))
	}
}

func TestFormatOptional(t *testing.T) {
	assert.Equal(t, Placeholder, FormatOptional(nil))
	assert.Equal(t, "$1.00", FormatOptional(Ptr(100)))
}

func TestParseDollars(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Cents
		wantErr bool
	}{
		{"plain", "5000", 500000, false},
		{"cents", "12.34", 1234, false},
		{"one decimal", "12.5", 1250, false},
		{"dollar sign and commas", "$1,250.00", 125000, false},
		{"whitespace", "  7.01 ", 701, false},
		{"negative parses", "-3.00", -300, false},
		{"too precise", "1.005", 0, true},
		{"not a number", "abc", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDollars(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDollarsRoundTrip(t *testing.T) {
	c := Cents(987654)
	assert.Equal(t, "9876.54", c.Dollars().StringFixed(2))
	assert.Equal(t, c, FromDollars(c.Dollars()))
}

func TestFromDollars_RoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, Cents(101), FromDollars(decimal.RequireFromString("1.005")))
	assert.Equal(t, Cents(-101), FromDollars(decimal.RequireFromString("-1.005")))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, Cents(150000), Percent(250000, decimal.NewFromInt(60)))
	assert.Equal(t, Cents(0), Percent(250000, decimal.Zero))
	assert.Equal(t, Cents(250000), Percent(250000, decimal.NewFromInt(100)))
	// 333 * 50% = 166.5 -> 167
	assert.Equal(t, Cents(167), Percent(333, decimal.NewFromInt(50)))
	assert.Equal(t, Cents(25), Percent(100, decimal.RequireFromString("25.00")))
}

func TestScale(t *testing.T) {
	assert.Equal(t, Cents(350000), Scale(500000, decimal.RequireFromString("0.70")))
	// 101 * 0.7 = 70.7 -> 71
	assert.Equal(t, Cents(71), Scale(101, decimal.RequireFromString("0.7")))
}

func TestRatio(t *testing.T) {
	r := Ratio(400000, 250000)
	require.True(t, r.Valid)
	assert.Equal(t, "1.60x", FormatRatio(r))

	assert.False(t, Ratio(100, 0).Valid)
	assert.False(t, Ratio(100, -5).Valid)
	assert.Equal(t, Placeholder, FormatRatio(Ratio(100, 0)))
}

func TestPercentOf(t *testing.T) {
	p, ok := PercentOf(50, 200)
	assert.True(t, ok)
	assert.Equal(t, 25, p)

	p, ok = PercentOf(2, 3)
	assert.True(t, ok)
	assert.Equal(t, 67, p)

	_, ok = PercentOf(10, 0)
	assert.False(t, ok)

	p, _ = PercentOf(300, 200)
	assert.Equal(t, 150, p)
	assert.Equal(t, 100, Clamp(p, 0, 100))
}

func TestMinMaxValueOr(t *testing.T) {
	assert.Equal(t, Cents(5), Max(5, -1))
	assert.Equal(t, Cents(-1), Min(5, -1))
	assert.Equal(t, Cents(9), ValueOr(nil, 9))
	assert.Equal(t, Cents(3), ValueOr(Ptr(3), 9))
}

func TestCentsScanValue(t *testing.T) {
	v, err := Cents(4250).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(4250), v)

	var c Cents
	require.NoError(t, c.Scan(int64(99)))
	assert.Equal(t, Cents(99), c)
	require.NoError(t, c.Scan(nil))
	assert.Equal(t, Cents(0), c)
	assert.Error(t, c.Scan("12.00"))
}
