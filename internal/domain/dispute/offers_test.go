package dispute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desthealth/claims/pkg/money"
)

func TestAnalyzeOffers_ProviderPrevails(t *testing.T) {
	a := AnalyzeOffers(money.Ptr(400000), money.Ptr(200000), 250000, money.Ptr(380000))

	assert.Equal(t, PartyProvider, a.PrevailingParty)
	assert.Equal(t, "1.60x", money.FormatRatio(a.ProviderMultiple))
	assert.Equal(t, "0.80x", money.FormatRatio(a.PayerMultiple))
	assert.Equal(t, "1.52x", money.FormatRatio(a.DecisionMultiple))
	require.NotNil(t, a.Spread)
	assert.Equal(t, money.Cents(200000), *a.Spread)
	require.NotNil(t, a.DecisionVsQPA)
	assert.Equal(t, money.Cents(130000), *a.DecisionVsQPA)
	require.NotNil(t, a.DecisionVsPayerOffer)
	assert.Equal(t, money.Cents(180000), *a.DecisionVsPayerOffer)
}

func TestAnalyzeOffers_PayerPrevails(t *testing.T) {
	a := AnalyzeOffers(money.Ptr(400000), money.Ptr(200000), 250000, money.Ptr(210000))
	assert.Equal(t, PartyPayer, a.PrevailingParty)
}

func TestAnalyzeOffers_NoQPA(t *testing.T) {
	a := AnalyzeOffers(money.Ptr(400000), money.Ptr(200000), 0, nil)
	assert.False(t, a.ProviderMultiple.Valid)
	assert.False(t, a.PayerMultiple.Valid)
	assert.Equal(t, money.Placeholder, money.FormatRatio(a.ProviderMultiple))
	assert.Empty(t, a.PrevailingParty)
	assert.Nil(t, a.DecisionVsQPA)
}

func TestAnalyzeOffers_Partial(t *testing.T) {
	a := AnalyzeOffers(money.Ptr(400000), nil, 250000, nil)
	assert.True(t, a.ProviderMultiple.Valid)
	assert.False(t, a.PayerMultiple.Valid)
	assert.Nil(t, a.Spread)

	// A decision without both offers has no prevailing party.
	a = AnalyzeOffers(nil, money.Ptr(200000), 250000, money.Ptr(220000))
	assert.Empty(t, a.PrevailingParty)
	require.NotNil(t, a.DecisionVsPayerOffer)
	assert.Equal(t, money.Cents(20000), *a.DecisionVsPayerOffer)
}

func TestPrevailingParty_TieBreak(t *testing.T) {
	// Decision equidistant (1000 from each). Payer offer 2000 is 500 from the
	// QPA of 2500, provider 4000 is 1500 away: payer wins.
	assert.Equal(t, PartyPayer, PrevailingParty(4000, 2000, 2500, 3000))
	// Provider closer to QPA wins the tie.
	assert.Equal(t, PartyProvider, PrevailingParty(3000, 1000, 3200, 2000))
	// Fully symmetric: payer wins.
	assert.Equal(t, PartyPayer, PrevailingParty(3000, 1000, 2000, 2000))
}
