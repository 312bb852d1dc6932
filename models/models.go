package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultProfitMarginPercent применяется, когда у проекта маржа не задана.
var DefaultProfitMarginPercent = decimal.NewFromInt(30)

// Coordinates точка на карте в градусах WGS84.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid проверяет диапазоны широты и долготы.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Сущность проекта мероприятия. Финансовые поля только производные.
type EventProject struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	Venue               *Coordinates        `json:"venue,omitempty"`
	TotalTeamCost       decimal.Decimal     `json:"totalTeamCost"`
	TotalEquipmentCost  decimal.Decimal     `json:"totalEquipmentCost"`
	TotalCost           decimal.Decimal     `json:"totalCost"`
	ProfitMarginPercent decimal.NullDecimal `json:"profitMarginPercent"`
	TotalClientPrice    decimal.Decimal     `json:"totalClientPrice"`
	TotalProfit         decimal.Decimal     `json:"totalProfit"`
	EquipmentSupplierID *string             `json:"equipmentSupplierId,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// Margin возвращает маржу проекта или значение по умолчанию.
func (p *EventProject) Margin() decimal.Decimal {
	if p.ProfitMarginPercent.Valid {
		return p.ProfitMarginPercent.Decimal
	}
	return DefaultProfitMarginPercent
}

// Costs срез производных полей проекта.
func (p *EventProject) Costs() ProjectCosts {
	return ProjectCosts{
		ProjectID:           p.ID,
		TotalTeamCost:       p.TotalTeamCost,
		TotalEquipmentCost:  p.TotalEquipmentCost,
		TotalCost:           p.TotalCost,
		ProfitMarginPercent: p.Margin(),
		TotalClientPrice:    p.TotalClientPrice,
		TotalProfit:         p.TotalProfit,
		EquipmentSupplierID: p.EquipmentSupplierID,
	}
}

// ProjectCosts то, что сохраняется после пересчёта.
type ProjectCosts struct {
	ProjectID           string          `json:"projectId"`
	TotalTeamCost       decimal.Decimal `json:"totalTeamCost"`
	TotalEquipmentCost  decimal.Decimal `json:"totalEquipmentCost"`
	TotalCost           decimal.Decimal `json:"totalCost"`
	ProfitMarginPercent decimal.Decimal `json:"profitMarginPercent"`
	TotalClientPrice    decimal.Decimal `json:"totalClientPrice"`
	TotalProfit         decimal.Decimal `json:"totalProfit"`
	EquipmentSupplierID *string         `json:"equipmentSupplierId,omitempty"`
}

// CostRollup результат калькулятора.
type CostRollup struct {
	TotalCost   decimal.Decimal `json:"totalCost"`
	ClientPrice decimal.Decimal `json:"clientPrice"`
	Profit      decimal.Decimal `json:"profit"`
}

// Строка персонала проекта.
type TeamMember struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"projectId"`
	Category     string          `json:"category"`
	Quantity     int             `json:"quantity"`
	DurationDays int             `json:"durationDays"`
	DailyRate    decimal.Decimal `json:"dailyRate"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Recalculate пересчитывает TotalCost из количества, дней и ставки.
func (m *TeamMember) Recalculate() {
	m.TotalCost = LineCost(m.Quantity, m.DurationDays, m.DailyRate)
}

// Строка запроса оборудования. QuotationID выставляется, когда строку покрывает принятая котировка.
type EquipmentLine struct {
	ID            string          `json:"id"`
	ProjectID     string          `json:"projectId"`
	Category      string          `json:"category"`
	EquipmentType string          `json:"equipmentType"`
	Quantity      int             `json:"quantity"`
	DurationDays  int             `json:"durationDays"`
	DailyRate     decimal.Decimal `json:"dailyRate"`
	QuotationID   *string         `json:"quotationId,omitempty"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (l *EquipmentLine) Recalculate() {
	l.TotalCost = LineCost(l.Quantity, l.DurationDays, l.DailyRate)
}

// LineCost quantity * durationDays * dailyRate.
func LineCost(quantity, durationDays int, dailyRate decimal.Decimal) decimal.Decimal {
	return dailyRate.Mul(decimal.NewFromInt(int64(quantity))).Mul(decimal.NewFromInt(int64(durationDays)))
}
