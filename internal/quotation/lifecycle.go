// Package quotation ведёт котировку поставщика от запроса до принятия или отклонения.
package quotation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"eventstaff/db"
	"eventstaff/internal/financials"
	"eventstaff/internal/metrics"
	"eventstaff/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultValidDays = 7

type Config struct {
	DefaultValidDays int
	Now              func() time.Time
}

type Lifecycle struct {
	store   db.Store
	fin     *financials.Service
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	cfg     Config
}

func NewLifecycle(store db.Store, fin *financials.Service, log logrus.FieldLogger, m *metrics.Metrics, cfg Config) *Lifecycle {
	if cfg.DefaultValidDays <= 0 {
		cfg.DefaultValidDays = defaultValidDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Lifecycle{store: store, fin: fin, log: log, metrics: m, cfg: cfg}
}

// RequestInput запрос цен у поставщиков по проекту.
type RequestInput struct {
	ProjectID      string                 `json:"projectId"`
	SupplierIDs    []string               `json:"supplierIds"`
	RequestedItems []models.RequestedItem `json:"requestedItems"`
	CoversLineIDs  []string               `json:"coversLineIds,omitempty"`
	ValidDays      int                    `json:"validDays,omitempty"`
}

// Request создаёт pending-котировку на каждого поставщика. Повторный запрос того же поставщика
// обновляет его строку, если она ещё не submitted и не accepted, и сохраняет прежний токен.
func (l *Lifecycle) Request(ctx context.Context, in RequestInput) ([]models.SupplierQuotation, error) {
	suppliers, err := validateRequest(in)
	if err != nil {
		return nil, err
	}
	validDays := in.ValidDays
	if validDays == 0 {
		validDays = l.cfg.DefaultValidDays
	}

	var result []models.SupplierQuotation
	_, err = l.fin.Mutate(ctx, in.ProjectID, func(ctx context.Context, tx db.Tx) error {
		result = result[:0]
		if err := checkLines(ctx, tx, in.CoversLineIDs); err != nil {
			return err
		}
		existing, err := tx.ListQuotations(ctx)
		if err != nil {
			return err
		}
		bySupplier := make(map[string]models.SupplierQuotation, len(existing))
		for _, q := range existing {
			bySupplier[q.SupplierID] = q
		}

		now := l.cfg.Now()
		validUntil := now.AddDate(0, 0, validDays)
		for _, supplierID := range suppliers {
			q, ok := bySupplier[supplierID]
			if ok && (q.Status == models.QuotationSubmitted || q.Status == models.QuotationAccepted) {
				result = append(result, q)
				continue
			}
			if !ok {
				token, err := newToken()
				if err != nil {
					return err
				}
				q = models.SupplierQuotation{ID: uuid.NewString(), SupplierID: supplierID, Token: token}
			}
			q.RequestedItems = append([]models.RequestedItem(nil), in.RequestedItems...)
			q.CoversLineIDs = append([]string(nil), in.CoversLineIDs...)
			q.TotalPrice = decimal.Zero
			q.ValidUntil = validUntil
			q.Status = models.QuotationPending
			q.SubmittedAt, q.RespondedAt = nil, nil
			if err := tx.SaveQuotation(ctx, &q); err != nil {
				return err
			}
			result = append(result, q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, q := range result {
		l.logTransition(q, "quotation requested")
	}
	return result, nil
}

func validateRequest(in RequestInput) ([]string, error) {
	if in.ProjectID == "" {
		return nil, fmt.Errorf("%w: projectId is required", models.ErrValidation)
	}
	if in.ValidDays < 0 {
		return nil, fmt.Errorf("%w: validDays must be positive", models.ErrValidation)
	}
	seen := make(map[string]struct{}, len(in.SupplierIDs))
	suppliers := make([]string, 0, len(in.SupplierIDs))
	for _, id := range in.SupplierIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty supplier id", models.ErrValidation)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		suppliers = append(suppliers, id)
	}
	if len(suppliers) == 0 {
		return nil, fmt.Errorf("%w: at least one supplier is required", models.ErrValidation)
	}
	if err := validateItems(in.RequestedItems); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func validateItems(items []models.RequestedItem) error {
	for i, it := range items {
		if it.Quantity < 0 || it.DurationDays < 0 {
			return fmt.Errorf("%w: item %d has negative quantity or duration", models.ErrValidation, i)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("item %d: %w", i, models.ErrNegativeAmount)
		}
	}
	return nil
}

func checkLines(ctx context.Context, tx db.Tx, lineIDs []string) error {
	if len(lineIDs) == 0 {
		return nil
	}
	lines, err := tx.ListEquipmentLines(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		known[l.ID] = struct{}{}
	}
	for _, id := range lineIDs {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: line %s", models.ErrEquipmentLineNotFound, id)
		}
	}
	return nil
}

// Submit ответ поставщика по токену: pending -> submitted.
func (l *Lifecycle) Submit(ctx context.Context, token string, pricing models.QuotationPricing) (*models.SupplierQuotation, error) {
	if token == "" {
		return nil, models.ErrQuotationNotFound
	}
	if err := validateItems(pricing.Items); err != nil {
		return nil, err
	}
	if pricing.TotalPrice.IsNegative() {
		return nil, fmt.Errorf("totalPrice: %w", models.ErrNegativeAmount)
	}
	found, err := l.store.GetQuotationByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	var submitted models.SupplierQuotation
	_, err = l.fin.Mutate(ctx, found.ProjectID, func(ctx context.Context, tx db.Tx) error {
		q, err := tx.GetQuotation(ctx, found.ID)
		if err != nil {
			return err
		}
		now := l.cfg.Now()
		switch q.EffectiveStatus(now) {
		case models.QuotationPending:
		case models.QuotationExpired:
			return fmt.Errorf("quotation %s: %w", q.ID, models.ErrQuotationExpired)
		default:
			return fmt.Errorf("%w: submit from %s", models.ErrInvalidStateTransition, q.Status)
		}

		if len(pricing.Items) > 0 {
			q.RequestedItems = append([]models.RequestedItem(nil), pricing.Items...)
		}
		q.TotalPrice = pricing.TotalPrice
		if q.TotalPrice.IsZero() {
			q.TotalPrice = itemsTotal(q.RequestedItems)
		}
		q.Status = models.QuotationSubmitted
		q.SubmittedAt = &now
		if err := tx.SaveQuotation(ctx, q); err != nil {
			return err
		}
		submitted = *q
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logTransition(submitted, "quotation submitted")
	return &submitted, nil
}

// itemsTotal сумма unitPrice * quantity * дни; позиция без дней считается за один день.
func itemsTotal(items []models.RequestedItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		days := it.DurationDays
		if days == 0 {
			days = 1
		}
		total = total.Add(models.LineCost(it.Quantity, days, it.UnitPrice))
	}
	return total.Round(2)
}

// AcceptResult итог принятия котировки.
type AcceptResult struct {
	Quotation    models.SupplierQuotation `json:"quotation"`
	RejectedIDs  []string                 `json:"rejectedIds"`
	UpdatedCosts models.ProjectCosts      `json:"updatedCosts"`
}

// Accept принимает submitted-котировку, отклоняет остальные submitted того же проекта
// и пересчитывает проект. Всё в одной транзакции.
// Котировка без coversLineIds покрывает все ещё не привязанные строки оборудования.
func (l *Lifecycle) Accept(ctx context.Context, quotationID string) (*AcceptResult, error) {
	found, err := l.store.GetQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}

	res := &AcceptResult{}
	costs, err := l.fin.Mutate(ctx, found.ProjectID, func(ctx context.Context, tx db.Tx) error {
		res.RejectedIDs = res.RejectedIDs[:0]
		quotes, err := tx.ListQuotations(ctx)
		if err != nil {
			return err
		}
		now := l.cfg.Now()

		var target *models.SupplierQuotation
		for i := range quotes {
			q := &quotes[i]
			if q.ID == quotationID {
				target = q
				continue
			}
			if q.Status == models.QuotationAccepted {
				return fmt.Errorf("%w: project already accepted quotation %s", models.ErrInvalidStateTransition, q.ID)
			}
		}
		if target == nil {
			return models.ErrQuotationNotFound
		}
		if target.Status != models.QuotationSubmitted {
			return fmt.Errorf("%w: accept from %s", models.ErrInvalidStateTransition, target.Status)
		}

		if len(target.CoversLineIDs) == 0 {
			if target.CoversLineIDs, err = unlinkedLines(ctx, tx); err != nil {
				return err
			}
		}
		target.Status = models.QuotationAccepted
		target.RespondedAt = &now
		if err := tx.SaveQuotation(ctx, target); err != nil {
			return err
		}
		for i := range quotes {
			q := &quotes[i]
			if q.ID == target.ID || q.Status != models.QuotationSubmitted {
				continue
			}
			q.Status = models.QuotationRejected
			q.RespondedAt = &now
			if err := tx.SaveQuotation(ctx, q); err != nil {
				return err
			}
			res.RejectedIDs = append(res.RejectedIDs, q.ID)
		}
		if err := tx.LinkEquipmentLines(ctx, target.CoversLineIDs, target.ID); err != nil {
			return err
		}
		res.Quotation = *target
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.UpdatedCosts = costs
	sort.Strings(res.RejectedIDs)

	l.logTransition(res.Quotation, "quotation accepted")
	for _, id := range res.RejectedIDs {
		l.metrics.QuotationTransition(string(models.QuotationRejected))
		l.log.WithFields(logrus.Fields{
			"quotation_id": id,
			"project_id":   res.Quotation.ProjectID,
			"status":       models.QuotationRejected,
		}).Info("sibling quotation rejected")
	}
	return res, nil
}

func unlinkedLines(ctx context.Context, tx db.Tx) ([]string, error) {
	lines, err := tx.ListEquipmentLines(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, l := range lines {
		if l.QuotationID == nil {
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

// Reject submitted -> rejected, итоги проекта не меняются.
func (l *Lifecycle) Reject(ctx context.Context, quotationID string) (*models.SupplierQuotation, error) {
	found, err := l.store.GetQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	var rejected models.SupplierQuotation
	_, err = l.fin.Mutate(ctx, found.ProjectID, func(ctx context.Context, tx db.Tx) error {
		q, err := tx.GetQuotation(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.Status != models.QuotationSubmitted {
			return fmt.Errorf("%w: reject from %s", models.ErrInvalidStateTransition, q.Status)
		}
		now := l.cfg.Now()
		q.Status = models.QuotationRejected
		q.RespondedAt = &now
		if err := tx.SaveQuotation(ctx, q); err != nil {
			return err
		}
		rejected = *q
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logTransition(rejected, "quotation rejected")
	return &rejected, nil
}

// ExpireStale сохраняет expired для pending-котировок с истёкшим сроком.
func (l *Lifecycle) ExpireStale(ctx context.Context) (int, error) {
	expired, err := l.store.ExpirePendingQuotations(ctx, l.cfg.Now())
	for _, q := range expired {
		l.logTransition(q, "quotation expired")
	}
	if err != nil {
		return len(expired), fmt.Errorf("expire stale quotations: %w", err)
	}
	return len(expired), nil
}

// List котировки проекта со статусом на текущий момент, без токенов.
func (l *Lifecycle) List(ctx context.Context, projectID string) ([]models.SupplierQuotation, error) {
	if _, err := l.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	quotes, err := l.store.ListQuotations(ctx, projectID)
	if err != nil {
		return nil, err
	}
	now := l.cfg.Now()
	res := make([]models.SupplierQuotation, 0, len(quotes))
	for _, q := range quotes {
		q.Status = q.EffectiveStatus(now)
		res = append(res, q.Redacted())
	}
	return res, nil
}

// ByToken котировка для формы поставщика.
func (l *Lifecycle) ByToken(ctx context.Context, token string) (*models.SupplierQuotation, error) {
	if token == "" {
		return nil, models.ErrQuotationNotFound
	}
	q, err := l.store.GetQuotationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	q.Status = q.EffectiveStatus(l.cfg.Now())
	redacted := q.Redacted()
	return &redacted, nil
}

func (l *Lifecycle) logTransition(q models.SupplierQuotation, msg string) {
	l.metrics.QuotationTransition(string(q.Status))
	l.log.WithFields(logrus.Fields{
		"quotation_id": q.ID,
		"project_id":   q.ProjectID,
		"supplier_id":  q.SupplierID,
		"status":       q.Status,
	}).Info(msg)
}
