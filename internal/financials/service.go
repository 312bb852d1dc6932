// Package financials держит производные финансовые поля проекта согласованными.
// Каждая мутация и полный пересчёт выполняются в одной транзакции проекта.
package financials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventstaff/db"
	"eventstaff/internal/metrics"
	"eventstaff/internal/rollup"
	"eventstaff/models"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// DefaultMarginPercent ставится новым проектам без своей маржи; не задан значит 30.
	DefaultMarginPercent decimal.NullDecimal
	MaxAttempts          int
	RetryBaseDelay       time.Duration
}

type Service struct {
	store   db.Store
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	cfg     Config
}

func NewService(store db.Store, log logrus.FieldLogger, m *metrics.Metrics, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 20 * time.Millisecond
	}
	if !cfg.DefaultMarginPercent.Valid || cfg.DefaultMarginPercent.Decimal.IsNegative() {
		cfg.DefaultMarginPercent = decimal.NewNullDecimal(models.DefaultProfitMarginPercent)
	}
	return &Service{store: store, log: log, metrics: m, cfg: cfg}
}

// MutateFunc меняет строки проекта внутри его транзакции.
type MutateFunc func(ctx context.Context, tx db.Tx) error

// Mutate выполняет fn и полный пересчёт под блокировкой проекта.
// Конфликт конкурентной записи повторяется до MaxAttempts раз, затем возвращается ErrRollupUnavailable.
func (s *Service) Mutate(ctx context.Context, projectID string, fn MutateFunc) (models.ProjectCosts, error) {
	var costs models.ProjectCosts
	attempt := 0

	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewExponential(s.cfg.RetryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := s.store.InProjectTx(ctx, projectID, func(tx db.Tx) error {
			if fn != nil {
				if err := fn(ctx, tx); err != nil {
					return err
				}
			}
			var err error
			costs, err = Recalculate(ctx, tx)
			return err
		})
		if errors.Is(err, models.ErrConcurrentUpdate) && ctx.Err() == nil {
			s.metrics.RollupConflict()
			s.log.WithFields(logrus.Fields{
				"project_id": projectID,
				"attempt":    attempt,
			}).WithError(err).Warn("rollup conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, models.ErrConcurrentUpdate) {
		s.metrics.RollupUnavailable()
		return models.ProjectCosts{}, fmt.Errorf("%w: project %s after %d attempts: %w",
			models.ErrRollupUnavailable, projectID, attempt, err)
	}
	if err != nil {
		return models.ProjectCosts{}, err
	}
	return costs, nil
}

// RecalculateAndPersist пересчитывает проект с нуля без других изменений.
func (s *Service) RecalculateAndPersist(ctx context.Context, projectID string) (models.ProjectCosts, error) {
	return s.Mutate(ctx, projectID, nil)
}

// Recalculate пересуммирует все строки проекта и сохраняет результат. Вызывается только внутри транзакции.
// Цена принятой котировки заменяет строки оборудования, которые она покрывает.
func Recalculate(ctx context.Context, tx db.Tx) (models.ProjectCosts, error) {
	team, err := tx.ListTeamMembers(ctx)
	if err != nil {
		return models.ProjectCosts{}, err
	}
	lines, err := tx.ListEquipmentLines(ctx)
	if err != nil {
		return models.ProjectCosts{}, err
	}
	quotes, err := tx.ListQuotations(ctx)
	if err != nil {
		return models.ProjectCosts{}, err
	}

	teamCost := decimal.Zero
	for _, m := range team {
		teamCost = teamCost.Add(models.LineCost(m.Quantity, m.DurationDays, m.DailyRate))
	}

	var accepted *models.SupplierQuotation
	for i := range quotes {
		if quotes[i].Status == models.QuotationAccepted {
			accepted = &quotes[i]
			break
		}
	}

	equipmentCost := decimal.Zero
	var supplierID *string
	if accepted != nil {
		equipmentCost = accepted.TotalPrice
		id := accepted.SupplierID
		supplierID = &id
	}
	for _, l := range lines {
		if accepted != nil && l.QuotationID != nil && *l.QuotationID == accepted.ID {
			continue
		}
		equipmentCost = equipmentCost.Add(models.LineCost(l.Quantity, l.DurationDays, l.DailyRate))
	}

	p := tx.Project()
	p.EquipmentSupplierID = supplierID
	costs, err := rollup.ForProject(p, teamCost, equipmentCost)
	if err != nil {
		return models.ProjectCosts{}, err
	}
	if err := tx.SaveCosts(ctx, costs); err != nil {
		return models.ProjectCosts{}, err
	}
	return costs, nil
}

// NewProject входные данные проекта.
type NewProject struct {
	Name                string              `json:"name"`
	Venue               *models.Coordinates `json:"venue,omitempty"`
	ProfitMarginPercent *decimal.Decimal    `json:"profitMarginPercent,omitempty"`
}

func (s *Service) CreateProject(ctx context.Context, in NewProject) (*models.EventProject, error) {
	if in.Venue != nil && !in.Venue.Valid() {
		return nil, fmt.Errorf("%w: venue %+v", models.ErrInvalidLocation, *in.Venue)
	}
	margin := s.cfg.DefaultMarginPercent.Decimal
	if in.ProfitMarginPercent != nil {
		margin = *in.ProfitMarginPercent
	}
	if margin.IsNegative() {
		return nil, fmt.Errorf("%w: profit margin", models.ErrNegativeAmount)
	}

	p := &models.EventProject{
		ID:                  uuid.NewString(),
		Name:                in.Name,
		Venue:               in.Venue,
		ProfitMarginPercent: decimal.NewNullDecimal(margin),
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.log.WithField("project_id", p.ID).Info("project created")
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (*models.EventProject, error) {
	return s.store.GetProject(ctx, projectID)
}

// Costs текущие сохранённые итоги проекта.
func (s *Service) Costs(ctx context.Context, projectID string) (models.ProjectCosts, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return models.ProjectCosts{}, err
	}
	return p.Costs(), nil
}
