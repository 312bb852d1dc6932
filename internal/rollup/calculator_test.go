package rollup

import (
	"math/rand"
	"testing"

	"eventstaff/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculate(t *testing.T) {
	tests := []struct {
		name        string
		team        string
		equipment   string
		margin      string
		totalCost   string
		clientPrice string
		profit      string
	}{
		{"team only default margin", "1000", "0", "30", "1000", "1300", "300"},
		{"all zero", "0", "0", "30", "0", "0", "0"},
		{"zero margin", "250.50", "100", "0", "350.50", "350.50", "0"},
		{"team and equipment", "1000", "700", "30", "1700", "2210", "510"},
		{"fractional rounding", "0.10", "0.20", "33.333", "0.30", "0.40", "0.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Calculate(d(tt.team), d(tt.equipment), d(tt.margin))
			require.NoError(t, err)
			assert.True(t, d(tt.totalCost).Equal(r.TotalCost), "totalCost %s", r.TotalCost)
			assert.True(t, d(tt.clientPrice).Equal(r.ClientPrice), "clientPrice %s", r.ClientPrice)
			assert.True(t, d(tt.profit).Equal(r.Profit), "profit %s", r.Profit)
		})
	}
}

func TestCalculate_NegativeInput(t *testing.T) {
	_, err := Calculate(d("-1"), d("0"), d("30"))
	assert.ErrorIs(t, err, models.ErrNegativeAmount)

	_, err = Calculate(d("1"), d("0"), d("-5"))
	assert.ErrorIs(t, err, models.ErrNegativeAmount)
}

func TestCalculate_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		team := decimal.New(rng.Int63n(10_000_000), -2)
		equipment := decimal.New(rng.Int63n(10_000_000), -2)
		margin := decimal.New(rng.Int63n(20_000), -2)

		r, err := Calculate(team, equipment, margin)
		require.NoError(t, err)
		require.True(t, r.TotalCost.Equal(team.Add(equipment)))
		require.True(t, r.ClientPrice.Sub(r.TotalCost).Equal(r.Profit))
		require.False(t, r.Profit.IsNegative())
	}
}

func TestForProject_DefaultMargin(t *testing.T) {
	p := &models.EventProject{ID: "p1"}

	costs, err := ForProject(p, d("1000"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, d("30").Equal(costs.ProfitMarginPercent))
	assert.True(t, d("1300").Equal(costs.TotalClientPrice))
	assert.True(t, d("300").Equal(costs.TotalProfit))
}

func TestForProject_ExplicitMargin(t *testing.T) {
	p := &models.EventProject{ID: "p1", ProfitMarginPercent: decimal.NewNullDecimal(d("10"))}

	costs, err := ForProject(p, d("500"), d("500"))
	require.NoError(t, err)
	assert.True(t, d("1000").Equal(costs.TotalCost))
	assert.True(t, d("1100").Equal(costs.TotalClientPrice))
}
