package financials

import (
	"context"
	"fmt"

	"eventstaff/db"
	"eventstaff/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput количество, дни и ставка строки персонала или оборудования.
type LineInput struct {
	Category      string          `json:"category"`
	EquipmentType string          `json:"equipmentType,omitempty"`
	Quantity      int             `json:"quantity"`
	DurationDays  int             `json:"durationDays"`
	DailyRate     decimal.Decimal `json:"dailyRate"`
}

func (in LineInput) validate() error {
	if in.Category == "" {
		return fmt.Errorf("%w: category is required", models.ErrValidation)
	}
	if in.Quantity < 0 || in.DurationDays < 0 {
		return fmt.Errorf("%w: quantity and durationDays must not be negative", models.ErrValidation)
	}
	if in.DailyRate.IsNegative() {
		return fmt.Errorf("%w: dailyRate", models.ErrNegativeAmount)
	}
	return nil
}

// TeamMemberPatch частичное изменение строки персонала.
type TeamMemberPatch struct {
	Category     *string          `json:"category"`
	Quantity     *int             `json:"quantity"`
	DurationDays *int             `json:"durationDays"`
	DailyRate    *decimal.Decimal `json:"dailyRate"`
}

func (s *Service) AddTeamMember(ctx context.Context, projectID string, in LineInput) (*models.TeamMember, models.ProjectCosts, error) {
	if err := in.validate(); err != nil {
		return nil, models.ProjectCosts{}, err
	}
	var created models.TeamMember
	costs, err := s.Mutate(ctx, projectID, func(ctx context.Context, tx db.Tx) error {
		m := models.TeamMember{
			ID:           uuid.NewString(),
			Category:     in.Category,
			Quantity:     in.Quantity,
			DurationDays: in.DurationDays,
			DailyRate:    in.DailyRate,
		}
		m.Recalculate()
		if err := tx.InsertTeamMember(ctx, &m); err != nil {
			return err
		}
		created = m
		return nil
	})
	if err != nil {
		return nil, models.ProjectCosts{}, err
	}
	return &created, costs, nil
}

func (s *Service) UpdateTeamMember(ctx context.Context, projectID, memberID string, patch TeamMemberPatch) (*models.TeamMember, models.ProjectCosts, error) {
	var updated models.TeamMember
	costs, err := s.Mutate(ctx, projectID, func(ctx context.Context, tx db.Tx) error {
		m, err := tx.GetTeamMember(ctx, memberID)
		if err != nil {
			return err
		}
		in := LineInput{Category: m.Category, Quantity: m.Quantity, DurationDays: m.DurationDays, DailyRate: m.DailyRate}
		if patch.Category != nil {
			in.Category = *patch.Category
		}
		if patch.Quantity != nil {
			in.Quantity = *patch.Quantity
		}
		if patch.DurationDays != nil {
			in.DurationDays = *patch.DurationDays
		}
		if patch.DailyRate != nil {
			in.DailyRate = *patch.DailyRate
		}
		if err := in.validate(); err != nil {
			return err
		}
		m.Category, m.Quantity, m.DurationDays, m.DailyRate = in.Category, in.Quantity, in.DurationDays, in.DailyRate
		m.Recalculate()
		if err := tx.UpdateTeamMember(ctx, m); err != nil {
			return err
		}
		updated = *m
		return nil
	})
	if err != nil {
		return nil, models.ProjectCosts{}, err
	}
	return &updated, costs, nil
}

func (s *Service) RemoveTeamMember(ctx context.Context, projectID, memberID string) (models.ProjectCosts, error) {
	return s.Mutate(ctx, projectID, func(ctx context.Context, tx db.Tx) error {
		return tx.DeleteTeamMember(ctx, memberID)
	})
}

func (s *Service) AddEquipmentLine(ctx context.Context, projectID string, in LineInput) (*models.EquipmentLine, models.ProjectCosts, error) {
	if err := in.validate(); err != nil {
		return nil, models.ProjectCosts{}, err
	}
	var created models.EquipmentLine
	costs, err := s.Mutate(ctx, projectID, func(ctx context.Context, tx db.Tx) error {
		l := models.EquipmentLine{
			ID:            uuid.NewString(),
			Category:      in.Category,
			EquipmentType: in.EquipmentType,
			Quantity:      in.Quantity,
			DurationDays:  in.DurationDays,
			DailyRate:     in.DailyRate,
		}
		l.Recalculate()
		if err := tx.InsertEquipmentLine(ctx, &l); err != nil {
			return err
		}
		created = l
		return nil
	})
	if err != nil {
		return nil, models.ProjectCosts{}, err
	}
	return &created, costs, nil
}

func (s *Service) RemoveEquipmentLine(ctx context.Context, projectID, lineID string) (models.ProjectCosts, error) {
	return s.Mutate(ctx, projectID, func(ctx context.Context, tx db.Tx) error {
		return tx.DeleteEquipmentLine(ctx, lineID)
	})
}

// SetProfitMargin nil возвращает проект к марже по умолчанию.
func (s *Service) SetProfitMargin(ctx context.Context, projectID string, margin *decimal.Decimal) (models.ProjectCosts, error) {
	value := decimal.NullDecimal{}
	if margin != nil {
		if margin.IsNegative() {
			return models.ProjectCosts{}, fmt.Errorf("%w: profit margin", models.ErrNegativeAmount)
		}
		value = decimal.NewNullDecimal(*margin)
	}
	return s.Mutate(ctx, projectID, func(ctx context.Context, tx db.Tx) error {
		return tx.SetMargin(ctx, value)
	})
}
