package db

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventstaff/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type projectRow struct {
	ID                  string              `db:"id"`
	Name                string              `db:"name"`
	VenueLat            sql.NullFloat64     `db:"venue_lat"`
	VenueLng            sql.NullFloat64     `db:"venue_lng"`
	TotalTeamCost       decimal.Decimal     `db:"total_team_cost"`
	TotalEquipmentCost  decimal.Decimal     `db:"total_equipment_cost"`
	TotalCost           decimal.Decimal     `db:"total_cost"`
	ProfitMarginPercent decimal.NullDecimal `db:"profit_margin_percent"`
	TotalClientPrice    decimal.Decimal     `db:"total_client_price"`
	TotalProfit         decimal.Decimal     `db:"total_profit"`
	EquipmentSupplierID sql.NullString      `db:"equipment_supplier_id"`
	CreatedAt           time.Time           `db:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at"`
}

const projectColumns = `id, name, venue_lat, venue_lng, total_team_cost, total_equipment_cost, total_cost,
	profit_margin_percent, total_client_price, total_profit, equipment_supplier_id, created_at, updated_at`

func (r projectRow) toModel() *models.EventProject {
	p := &models.EventProject{
		ID:                  r.ID,
		Name:                r.Name,
		TotalTeamCost:       r.TotalTeamCost,
		TotalEquipmentCost:  r.TotalEquipmentCost,
		TotalCost:           r.TotalCost,
		ProfitMarginPercent: r.ProfitMarginPercent,
		TotalClientPrice:    r.TotalClientPrice,
		TotalProfit:         r.TotalProfit,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.VenueLat.Valid && r.VenueLng.Valid {
		p.Venue = &models.Coordinates{Lat: r.VenueLat.Float64, Lng: r.VenueLng.Float64}
	}
	if r.EquipmentSupplierID.Valid {
		id := r.EquipmentSupplierID.String
		p.EquipmentSupplierID = &id
	}
	return p
}

type teamMemberRow struct {
	ID           string          `db:"id"`
	ProjectID    string          `db:"project_id"`
	Category     string          `db:"category"`
	Quantity     int             `db:"quantity"`
	DurationDays int             `db:"duration_days"`
	DailyRate    decimal.Decimal `db:"daily_rate"`
	TotalCost    decimal.Decimal `db:"total_cost"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

const teamMemberColumns = `id, project_id, category, quantity, duration_days, daily_rate, total_cost, created_at, updated_at`

func (r teamMemberRow) toModel() models.TeamMember {
	return models.TeamMember(r)
}

type equipmentLineRow struct {
	ID            string          `db:"id"`
	ProjectID     string          `db:"project_id"`
	Category      string          `db:"category"`
	EquipmentType string          `db:"equipment_type"`
	Quantity      int             `db:"quantity"`
	DurationDays  int             `db:"duration_days"`
	DailyRate     decimal.Decimal `db:"daily_rate"`
	QuotationID   sql.NullString  `db:"quotation_id"`
	TotalCost     decimal.Decimal `db:"total_cost"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

const equipmentLineColumns = `id, project_id, category, equipment_type, quantity, duration_days, daily_rate,
	quotation_id, total_cost, created_at, updated_at`

func (r equipmentLineRow) toModel() models.EquipmentLine {
	l := models.EquipmentLine{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		Category:      r.Category,
		EquipmentType: r.EquipmentType,
		Quantity:      r.Quantity,
		DurationDays:  r.DurationDays,
		DailyRate:     r.DailyRate,
		TotalCost:     r.TotalCost,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.QuotationID.Valid {
		id := r.QuotationID.String
		l.QuotationID = &id
	}
	return l
}

// requestedItems JSONB-колонка со списком позиций.
type requestedItems []models.RequestedItem

func (ri requestedItems) Value() (driver.Value, error) {
	if ri == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]models.RequestedItem(ri))
}

func (ri *requestedItems) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*ri = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("requested_items: unsupported type %T", src)
	}
	return json.Unmarshal(raw, (*[]models.RequestedItem)(ri))
}

type quotationRow struct {
	ID             string          `db:"id"`
	ProjectID      string          `db:"project_id"`
	SupplierID     string          `db:"supplier_id"`
	Token          string          `db:"token"`
	RequestedItems requestedItems  `db:"requested_items"`
	CoversLineIDs  pq.StringArray  `db:"covers_line_ids"`
	TotalPrice     decimal.Decimal `db:"total_price"`
	ValidUntil     time.Time       `db:"valid_until"`
	Status         string          `db:"status"`
	SubmittedAt    sql.NullTime    `db:"submitted_at"`
	RespondedAt    sql.NullTime    `db:"responded_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

const quotationColumns = `id, project_id, supplier_id, token, requested_items, covers_line_ids, total_price,
	valid_until, status, submitted_at, responded_at, created_at, updated_at`

func (r quotationRow) toModel() models.SupplierQuotation {
	q := models.SupplierQuotation{
		ID:             r.ID,
		ProjectID:      r.ProjectID,
		SupplierID:     r.SupplierID,
		Token:          r.Token,
		RequestedItems: []models.RequestedItem(r.RequestedItems),
		CoversLineIDs:  []string(r.CoversLineIDs),
		TotalPrice:     r.TotalPrice,
		ValidUntil:     r.ValidUntil,
		Status:         models.QuotationStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.SubmittedAt.Valid {
		t := r.SubmittedAt.Time
		q.SubmittedAt = &t
	}
	if r.RespondedAt.Valid {
		t := r.RespondedAt.Time
		q.RespondedAt = &t
	}
	return q
}

type candidateRow struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	Type            string          `db:"type"`
	Lat             sql.NullFloat64 `db:"lat"`
	Lng             sql.NullFloat64 `db:"lng"`
	Categories      pq.StringArray  `db:"categories"`
	ServiceRadiusKm sql.NullFloat64 `db:"service_radius_km"`
	Active          bool            `db:"active"`
}

func (r candidateRow) toModel() models.Candidate {
	c := models.Candidate{
		ID:         r.ID,
		Name:       r.Name,
		Type:       models.CandidateType(r.Type),
		Categories: []string(r.Categories),
		Active:     r.Active,
	}
	if r.Lat.Valid && r.Lng.Valid {
		c.Location = &models.Coordinates{Lat: r.Lat.Float64, Lng: r.Lng.Float64}
	}
	if r.ServiceRadiusKm.Valid {
		radius := r.ServiceRadiusKm.Float64
		c.ServiceRadiusKm = &radius
	}
	return c
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Коды Postgres, после которых read-modify-write можно повторить.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

// classify превращает ошибки конкурентного доступа в models.ErrConcurrentUpdate.
func classify(err error) error {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %s", models.ErrConcurrentUpdate, pgErr.Message)
		}
	}
	return err
}
