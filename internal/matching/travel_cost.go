package matching

import (
	"eventstaff/models"

	"github.com/shopspring/decimal"
)

// DefaultRatePerKm ставка за километр сверх радиуса обслуживания.
var DefaultRatePerKm = decimal.RequireFromString("1.50")

type TravelCostPolicy interface {
	TravelCost(c models.Candidate, distanceKm float64) decimal.Decimal
}

// PerKmPolicy бесплатно в пределах радиуса кандидата, дальше ставка за каждый километр.
type PerKmPolicy struct {
	RatePerKm decimal.Decimal
}

func (p PerKmPolicy) TravelCost(c models.Candidate, distanceKm float64) decimal.Decimal {
	radius := 0.0
	if c.ServiceRadiusKm != nil {
		radius = *c.ServiceRadiusKm
	}
	beyond := distanceKm - radius
	if beyond <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(beyond).Mul(p.RatePerKm).Round(2)
}
