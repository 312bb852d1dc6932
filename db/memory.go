package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"eventstaff/internal/keylock"
	"eventstaff/models"

	"github.com/shopspring/decimal"
)

// MemoryStore хранилище для одного процесса. Проект сериализуется через keylock,
// транзакция работает на копии строк проекта и записывает их обратно только при успехе.
type MemoryStore struct {
	mu         sync.RWMutex
	projects   map[string]models.EventProject
	team       map[string]models.TeamMember
	equipment  map[string]models.EquipmentLine
	quotations map[string]models.SupplierQuotation
	tokens     map[string]string

	locks *keylock.Locker
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:   make(map[string]models.EventProject),
		team:       make(map[string]models.TeamMember),
		equipment:  make(map[string]models.EquipmentLine),
		quotations: make(map[string]models.SupplierQuotation),
		tokens:     make(map[string]string),
		locks:      keylock.New(),
		now:        time.Now,
	}
}

func (s *MemoryStore) CreateProject(ctx context.Context, p *models.EventProject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("%w: project %s already exists", models.ErrValidation, p.ID)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.projects[p.ID] = cloneProject(*p)
	return nil
}

func (s *MemoryStore) GetProject(ctx context.Context, id string) (*models.EventProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, models.ErrProjectNotFound
	}
	p = cloneProject(p)
	return &p, nil
}

func (s *MemoryStore) GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.team[id]
	if !ok {
		return nil, models.ErrTeamMemberNotFound
	}
	return &m, nil
}

func (s *MemoryStore) GetEquipmentLine(ctx context.Context, id string) (*models.EquipmentLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.equipment[id]
	if !ok {
		return nil, models.ErrEquipmentLineNotFound
	}
	l = cloneLine(l)
	return &l, nil
}

func (s *MemoryStore) GetQuotation(ctx context.Context, id string) (*models.SupplierQuotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotations[id]
	if !ok {
		return nil, models.ErrQuotationNotFound
	}
	q = cloneQuotation(q)
	return &q, nil
}

func (s *MemoryStore) GetQuotationByToken(ctx context.Context, token string) (*models.SupplierQuotation, error) {
	s.mu.RLock()
	id, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrQuotationNotFound
	}
	return s.GetQuotation(ctx, id)
}

func (s *MemoryStore) ListQuotations(ctx context.Context, projectID string) ([]models.SupplierQuotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []models.SupplierQuotation{}
	for _, q := range s.quotations {
		if q.ProjectID == projectID {
			res = append(res, cloneQuotation(q))
		}
	}
	sortQuotations(res)
	return res, nil
}

func (s *MemoryStore) ExpirePendingQuotations(ctx context.Context, now time.Time) ([]models.SupplierQuotation, error) {
	s.mu.RLock()
	stale := map[string]struct{}{}
	for _, q := range s.quotations {
		if q.EffectiveStatus(now) == models.QuotationExpired && q.Status == models.QuotationPending {
			stale[q.ProjectID] = struct{}{}
		}
	}
	s.mu.RUnlock()

	projectIDs := make([]string, 0, len(stale))
	for id := range stale {
		projectIDs = append(projectIDs, id)
	}
	sort.Strings(projectIDs)

	var expired []models.SupplierQuotation
	for _, projectID := range projectIDs {
		err := s.InProjectTx(ctx, projectID, func(tx Tx) error {
			quotes, err := tx.ListQuotations(ctx)
			if err != nil {
				return err
			}
			for i := range quotes {
				q := &quotes[i]
				if q.Status != models.QuotationPending || !now.After(q.ValidUntil) {
					continue
				}
				q.Status = models.QuotationExpired
				if err := tx.SaveQuotation(ctx, q); err != nil {
					return err
				}
				expired = append(expired, *q)
			}
			return nil
		})
		if err != nil {
			return expired, fmt.Errorf("expire quotations of %s: %w", projectID, err)
		}
	}
	return expired, nil
}

func (s *MemoryStore) InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error {
	unlock, err := s.locks.Lock(ctx, projectID)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrConcurrentUpdate, err)
	}
	defer unlock()

	tx, err := s.begin(projectID)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) begin(projectID string) (*memTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, models.ErrProjectNotFound
	}
	p = cloneProject(p)
	tx := &memTx{
		store:      s,
		project:    &p,
		team:       map[string]models.TeamMember{},
		equipment:  map[string]models.EquipmentLine{},
		quotations: map[string]models.SupplierQuotation{},
	}
	for id, m := range s.team {
		if m.ProjectID == projectID {
			tx.team[id] = m
		}
	}
	for id, l := range s.equipment {
		if l.ProjectID == projectID {
			tx.equipment[id] = cloneLine(l)
		}
	}
	for id, q := range s.quotations {
		if q.ProjectID == projectID {
			tx.quotations[id] = cloneQuotation(q)
		}
	}
	return tx, nil
}

func (s *MemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	projectID := tx.project.ID

	for id, m := range s.team {
		if m.ProjectID == projectID {
			delete(s.team, id)
		}
	}
	for id, l := range s.equipment {
		if l.ProjectID == projectID {
			delete(s.equipment, id)
		}
	}
	for id, q := range s.quotations {
		if q.ProjectID == projectID {
			delete(s.quotations, id)
			delete(s.tokens, q.Token)
		}
	}

	s.projects[projectID] = *tx.project
	for id, m := range tx.team {
		s.team[id] = m
	}
	for id, l := range tx.equipment {
		s.equipment[id] = l
	}
	for id, q := range tx.quotations {
		s.quotations[id] = q
		s.tokens[q.Token] = id
	}
}

// tokenTaken проверяет уникальность токена среди других проектов.
func (s *MemoryStore) tokenTaken(token, projectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok {
		return false
	}
	return s.quotations[id].ProjectID != projectID
}

type memTx struct {
	store      *MemoryStore
	project    *models.EventProject
	team       map[string]models.TeamMember
	equipment  map[string]models.EquipmentLine
	quotations map[string]models.SupplierQuotation
}

func (t *memTx) Project() *models.EventProject { return t.project }

func (t *memTx) ListTeamMembers(ctx context.Context) ([]models.TeamMember, error) {
	res := make([]models.TeamMember, 0, len(t.team))
	for _, m := range t.team {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (t *memTx) GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error) {
	m, ok := t.team[id]
	if !ok {
		return nil, models.ErrTeamMemberNotFound
	}
	return &m, nil
}

func (t *memTx) InsertTeamMember(ctx context.Context, m *models.TeamMember) error {
	if _, ok := t.team[m.ID]; ok {
		return fmt.Errorf("%w: team member %s already exists", models.ErrValidation, m.ID)
	}
	now := t.store.now()
	m.ProjectID = t.project.ID
	m.CreatedAt, m.UpdatedAt = now, now
	t.team[m.ID] = *m
	return nil
}

func (t *memTx) UpdateTeamMember(ctx context.Context, m *models.TeamMember) error {
	old, ok := t.team[m.ID]
	if !ok {
		return models.ErrTeamMemberNotFound
	}
	m.ProjectID = t.project.ID
	m.CreatedAt = old.CreatedAt
	m.UpdatedAt = t.store.now()
	t.team[m.ID] = *m
	return nil
}

func (t *memTx) DeleteTeamMember(ctx context.Context, id string) error {
	if _, ok := t.team[id]; !ok {
		return models.ErrTeamMemberNotFound
	}
	delete(t.team, id)
	return nil
}

func (t *memTx) ListEquipmentLines(ctx context.Context) ([]models.EquipmentLine, error) {
	res := make([]models.EquipmentLine, 0, len(t.equipment))
	for _, l := range t.equipment {
		res = append(res, cloneLine(l))
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (t *memTx) InsertEquipmentLine(ctx context.Context, l *models.EquipmentLine) error {
	if _, ok := t.equipment[l.ID]; ok {
		return fmt.Errorf("%w: equipment line %s already exists", models.ErrValidation, l.ID)
	}
	now := t.store.now()
	l.ProjectID = t.project.ID
	l.CreatedAt, l.UpdatedAt = now, now
	t.equipment[l.ID] = cloneLine(*l)
	return nil
}

func (t *memTx) DeleteEquipmentLine(ctx context.Context, id string) error {
	if _, ok := t.equipment[id]; !ok {
		return models.ErrEquipmentLineNotFound
	}
	delete(t.equipment, id)
	return nil
}

func (t *memTx) LinkEquipmentLines(ctx context.Context, lineIDs []string, quotationID string) error {
	now := t.store.now()
	for _, id := range lineIDs {
		l, ok := t.equipment[id]
		if !ok {
			continue
		}
		qid := quotationID
		l.QuotationID = &qid
		l.UpdatedAt = now
		t.equipment[id] = l
	}
	return nil
}

func (t *memTx) ListQuotations(ctx context.Context) ([]models.SupplierQuotation, error) {
	res := make([]models.SupplierQuotation, 0, len(t.quotations))
	for _, q := range t.quotations {
		res = append(res, cloneQuotation(q))
	}
	sortQuotations(res)
	return res, nil
}

func (t *memTx) GetQuotation(ctx context.Context, id string) (*models.SupplierQuotation, error) {
	q, ok := t.quotations[id]
	if !ok {
		return nil, models.ErrQuotationNotFound
	}
	q = cloneQuotation(q)
	return &q, nil
}

// SaveQuotation повторяет ограничения таблицы: один поставщик на проект, одна принятая котировка, уникальный токен.
func (t *memTx) SaveQuotation(ctx context.Context, q *models.SupplierQuotation) error {
	for id, other := range t.quotations {
		if id == q.ID {
			continue
		}
		if other.SupplierID == q.SupplierID {
			return fmt.Errorf("%w: supplier %s already has a quotation", models.ErrValidation, q.SupplierID)
		}
		if other.Token == q.Token {
			return fmt.Errorf("%w: duplicate token", models.ErrValidation)
		}
		if q.Status == models.QuotationAccepted && other.Status == models.QuotationAccepted {
			return fmt.Errorf("%w: project already has an accepted quotation", models.ErrInvalidStateTransition)
		}
	}
	if t.store.tokenTaken(q.Token, t.project.ID) {
		return fmt.Errorf("%w: duplicate token", models.ErrValidation)
	}

	now := t.store.now()
	if old, ok := t.quotations[q.ID]; ok {
		q.CreatedAt = old.CreatedAt
	} else {
		q.CreatedAt = now
	}
	q.ProjectID = t.project.ID
	q.UpdatedAt = now
	t.quotations[q.ID] = cloneQuotation(*q)
	return nil
}

func (t *memTx) SetMargin(ctx context.Context, margin decimal.NullDecimal) error {
	t.project.ProfitMarginPercent = margin
	t.project.UpdatedAt = t.store.now()
	return nil
}

func (t *memTx) SaveCosts(ctx context.Context, c models.ProjectCosts) error {
	t.project.TotalTeamCost = c.TotalTeamCost
	t.project.TotalEquipmentCost = c.TotalEquipmentCost
	t.project.TotalCost = c.TotalCost
	t.project.TotalClientPrice = c.TotalClientPrice
	t.project.TotalProfit = c.TotalProfit
	t.project.EquipmentSupplierID = cloneString(c.EquipmentSupplierID)
	t.project.UpdatedAt = t.store.now()
	return nil
}

func sortQuotations(qs []models.SupplierQuotation) {
	sort.Slice(qs, func(i, j int) bool {
		if !qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].CreatedAt.Before(qs[j].CreatedAt)
		}
		return qs[i].ID < qs[j].ID
	})
}

func cloneProject(p models.EventProject) models.EventProject {
	if p.Venue != nil {
		v := *p.Venue
		p.Venue = &v
	}
	p.EquipmentSupplierID = cloneString(p.EquipmentSupplierID)
	return p
}

func cloneLine(l models.EquipmentLine) models.EquipmentLine {
	l.QuotationID = cloneString(l.QuotationID)
	return l
}

func cloneQuotation(q models.SupplierQuotation) models.SupplierQuotation {
	if q.RequestedItems != nil {
		q.RequestedItems = append([]models.RequestedItem(nil), q.RequestedItems...)
	}
	if q.CoversLineIDs != nil {
		q.CoversLineIDs = append([]string(nil), q.CoversLineIDs...)
	}
	if q.SubmittedAt != nil {
		t := *q.SubmittedAt
		q.SubmittedAt = &t
	}
	if q.RespondedAt != nil {
		t := *q.RespondedAt
		q.RespondedAt = &t
	}
	return q
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
