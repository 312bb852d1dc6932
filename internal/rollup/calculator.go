// Package rollup считает итоговую стоимость, цену для клиента и прибыль проекта.
package rollup

import (
	"fmt"

	"eventstaff/models"

	"github.com/shopspring/decimal"
)

// MoneyPlaces точность денежных сумм.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Calculate без ввода-вывода:
//
//	totalCost   = teamCost + equipmentCost
//	clientPrice = totalCost * (1 + margin/100), округление до центов
//	profit      = clientPrice - totalCost
func Calculate(teamCost, equipmentCost, profitMarginPercent decimal.Decimal) (models.CostRollup, error) {
	if teamCost.IsNegative() || equipmentCost.IsNegative() || profitMarginPercent.IsNegative() {
		return models.CostRollup{}, fmt.Errorf("rollup team=%s equipment=%s margin=%s: %w",
			teamCost, equipmentCost, profitMarginPercent, models.ErrNegativeAmount)
	}

	totalCost := teamCost.Add(equipmentCost).Round(MoneyPlaces)
	factor := decimal.NewFromInt(1).Add(profitMarginPercent.Div(hundred))
	clientPrice := totalCost.Mul(factor).Round(MoneyPlaces)

	return models.CostRollup{
		TotalCost:   totalCost,
		ClientPrice: clientPrice,
		Profit:      clientPrice.Sub(totalCost),
	}, nil
}

// ForProject применяет маржу проекта (или 30 по умолчанию).
func ForProject(p *models.EventProject, teamCost, equipmentCost decimal.Decimal) (models.ProjectCosts, error) {
	margin := p.Margin()
	teamCost, equipmentCost = teamCost.Round(MoneyPlaces), equipmentCost.Round(MoneyPlaces)
	r, err := Calculate(teamCost, equipmentCost, margin)
	if err != nil {
		return models.ProjectCosts{}, err
	}
	return models.ProjectCosts{
		ProjectID:           p.ID,
		TotalTeamCost:       teamCost,
		TotalEquipmentCost:  equipmentCost,
		TotalCost:           r.TotalCost,
		ProfitMarginPercent: margin,
		TotalClientPrice:    r.ClientPrice,
		TotalProfit:         r.Profit,
		EquipmentSupplierID: p.EquipmentSupplierID,
	}, nil
}
