package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventstaff/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Storage хранилище в Postgres. Сериализация по проекту через SELECT ... FOR UPDATE.
type Storage struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewStorage(db *sqlx.DB, lockTimeout time.Duration) *Storage {
	return &Storage{db: db, lockTimeout: lockTimeout}
}

func (s *Storage) CreateProject(ctx context.Context, p *models.EventProject) error {
	var lat, lng sql.NullFloat64
	if p.Venue != nil {
		lat = sql.NullFloat64{Float64: p.Venue.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: p.Venue.Lng, Valid: true}
	}
	query := `
        INSERT INTO event_projects (id, name, venue_lat, venue_lng, profit_margin_percent)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at`
	return s.db.QueryRowContext(ctx, query, p.ID, p.Name, lat, lng, p.ProfitMarginPercent).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (s *Storage) GetProject(ctx context.Context, id string) (*models.EventProject, error) {
	var row projectRow
	query := `SELECT ` + projectColumns + ` FROM event_projects WHERE id=$1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return row.toModel(), nil
}

func (s *Storage) GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error) {
	var row teamMemberRow
	query := `SELECT ` + teamMemberColumns + ` FROM team_members WHERE id=$1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTeamMemberNotFound
		}
		return nil, fmt.Errorf("get team member: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

func (s *Storage) GetEquipmentLine(ctx context.Context, id string) (*models.EquipmentLine, error) {
	var row equipmentLineRow
	query := `SELECT ` + equipmentLineColumns + ` FROM equipment_lines WHERE id=$1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrEquipmentLineNotFound
		}
		return nil, fmt.Errorf("get equipment line: %w", err)
	}
	l := row.toModel()
	return &l, nil
}

func (s *Storage) GetQuotation(ctx context.Context, id string) (*models.SupplierQuotation, error) {
	return s.getQuotation(ctx, `WHERE id=$1`, id)
}

func (s *Storage) GetQuotationByToken(ctx context.Context, token string) (*models.SupplierQuotation, error) {
	return s.getQuotation(ctx, `WHERE token=$1`, token)
}

func (s *Storage) getQuotation(ctx context.Context, where string, arg string) (*models.SupplierQuotation, error) {
	var row quotationRow
	query := `SELECT ` + quotationColumns + ` FROM supplier_quotations ` + where
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrQuotationNotFound
		}
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	q := row.toModel()
	return &q, nil
}

func (s *Storage) ListQuotations(ctx context.Context, projectID string) ([]models.SupplierQuotation, error) {
	return listQuotations(ctx, s.db, projectID)
}

// ExpirePendingQuotations обходит проекты по одному под их блокировкой, чтобы не перетереть параллельный Submit.
func (s *Storage) ExpirePendingQuotations(ctx context.Context, now time.Time) ([]models.SupplierQuotation, error) {
	projectIDs := []string{}
	query := `
        SELECT DISTINCT project_id FROM supplier_quotations
        WHERE status = $1 AND valid_until < $2
        ORDER BY project_id`
	if err := s.db.SelectContext(ctx, &projectIDs, query, models.QuotationPending, now); err != nil {
		return nil, fmt.Errorf("find stale quotations: %w", err)
	}

	var expired []models.SupplierQuotation
	for _, projectID := range projectIDs {
		err := s.lockedTx(ctx, projectID, func(tx *pgTx) error {
			rows, err := tx.expirePending(ctx, now)
			expired = append(expired, rows...)
			return err
		})
		if err != nil {
			return expired, fmt.Errorf("expire quotations of %s: %w", projectID, err)
		}
	}
	return expired, nil
}

func (s *Storage) InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error {
	return s.lockedTx(ctx, projectID, func(tx *pgTx) error { return fn(tx) })
}

func (s *Storage) lockedTx(ctx context.Context, projectID string, fn func(tx *pgTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		// SET LOCAL не принимает параметры
		stmt := fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	var row projectRow
	query := `SELECT ` + projectColumns + ` FROM event_projects WHERE id=$1 FOR UPDATE`
	if err = tx.GetContext(ctx, &row, query, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrProjectNotFound
		}
		return classify(fmt.Errorf("lock project: %w", err))
	}

	if err = fn(&pgTx{tx: tx, project: row.toModel()}); err != nil {
		return classify(err)
	}

	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func listQuotations(ctx context.Context, q queryer, projectID string) ([]models.SupplierQuotation, error) {
	rows := []quotationRow{}
	query := `SELECT ` + quotationColumns + ` FROM supplier_quotations WHERE project_id=$1 ORDER BY created_at ASC, id ASC`
	if err := q.SelectContext(ctx, &rows, query, projectID); err != nil {
		return nil, fmt.Errorf("list quotations: %w", err)
	}
	res := make([]models.SupplierQuotation, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toModel())
	}
	return res, nil
}

// pgTx операции внутри транзакции с заблокированной строкой проекта.
type pgTx struct {
	tx      *sqlx.Tx
	project *models.EventProject
}

func (t *pgTx) Project() *models.EventProject { return t.project }

func (t *pgTx) ListTeamMembers(ctx context.Context) ([]models.TeamMember, error) {
	rows := []teamMemberRow{}
	query := `SELECT ` + teamMemberColumns + ` FROM team_members WHERE project_id=$1 ORDER BY created_at, id`
	if err := t.tx.SelectContext(ctx, &rows, query, t.project.ID); err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	res := make([]models.TeamMember, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toModel())
	}
	return res, nil
}

func (t *pgTx) GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error) {
	var row teamMemberRow
	query := `SELECT ` + teamMemberColumns + ` FROM team_members WHERE id=$1 AND project_id=$2`
	if err := t.tx.GetContext(ctx, &row, query, id, t.project.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTeamMemberNotFound
		}
		return nil, fmt.Errorf("get team member: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

func (t *pgTx) InsertTeamMember(ctx context.Context, m *models.TeamMember) error {
	query := `
        INSERT INTO team_members
            (id, project_id, category, quantity, duration_days, daily_rate, total_cost)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at, updated_at`
	err := t.tx.QueryRowContext(ctx, query,
		m.ID, t.project.ID, m.Category, m.Quantity, m.DurationDays, m.DailyRate, m.TotalCost).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert team member: %w", err)
	}
	m.ProjectID = t.project.ID
	return nil
}

func (t *pgTx) UpdateTeamMember(ctx context.Context, m *models.TeamMember) error {
	query := `
        UPDATE team_members
        SET category=$1, quantity=$2, duration_days=$3, daily_rate=$4, total_cost=$5, updated_at=NOW()
        WHERE id=$6 AND project_id=$7
        RETURNING updated_at`
	err := t.tx.QueryRowContext(ctx, query,
		m.Category, m.Quantity, m.DurationDays, m.DailyRate, m.TotalCost, m.ID, t.project.ID).
		Scan(&m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrTeamMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("update team member: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteTeamMember(ctx context.Context, id string) error {
	query := `DELETE FROM team_members WHERE id=$1 AND project_id=$2`
	return t.execOne(ctx, query, models.ErrTeamMemberNotFound, id, t.project.ID)
}

func (t *pgTx) ListEquipmentLines(ctx context.Context) ([]models.EquipmentLine, error) {
	rows := []equipmentLineRow{}
	query := `SELECT ` + equipmentLineColumns + ` FROM equipment_lines WHERE project_id=$1 ORDER BY created_at, id`
	if err := t.tx.SelectContext(ctx, &rows, query, t.project.ID); err != nil {
		return nil, fmt.Errorf("list equipment lines: %w", err)
	}
	res := make([]models.EquipmentLine, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toModel())
	}
	return res, nil
}

func (t *pgTx) InsertEquipmentLine(ctx context.Context, l *models.EquipmentLine) error {
	query := `
        INSERT INTO equipment_lines
            (id, project_id, category, equipment_type, quantity, duration_days, daily_rate, quotation_id, total_cost)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at, updated_at`
	err := t.tx.QueryRowContext(ctx, query,
		l.ID, t.project.ID, l.Category, l.EquipmentType, l.Quantity, l.DurationDays, l.DailyRate,
		nullString(l.QuotationID), l.TotalCost).
		Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert equipment line: %w", err)
	}
	l.ProjectID = t.project.ID
	return nil
}

func (t *pgTx) DeleteEquipmentLine(ctx context.Context, id string) error {
	query := `DELETE FROM equipment_lines WHERE id=$1 AND project_id=$2`
	return t.execOne(ctx, query, models.ErrEquipmentLineNotFound, id, t.project.ID)
}

func (t *pgTx) LinkEquipmentLines(ctx context.Context, lineIDs []string, quotationID string) error {
	if len(lineIDs) == 0 {
		return nil
	}
	query := `
        UPDATE equipment_lines
        SET quotation_id=$1, updated_at=NOW()
        WHERE project_id=$2 AND id = ANY($3)`
	if _, err := t.tx.ExecContext(ctx, query, quotationID, t.project.ID, pq.Array(lineIDs)); err != nil {
		return fmt.Errorf("link equipment lines: %w", err)
	}
	return nil
}

func (t *pgTx) ListQuotations(ctx context.Context) ([]models.SupplierQuotation, error) {
	return listQuotations(ctx, t.tx, t.project.ID)
}

func (t *pgTx) GetQuotation(ctx context.Context, id string) (*models.SupplierQuotation, error) {
	var row quotationRow
	query := `SELECT ` + quotationColumns + ` FROM supplier_quotations WHERE id=$1 AND project_id=$2`
	if err := t.tx.GetContext(ctx, &row, query, id, t.project.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrQuotationNotFound
		}
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	q := row.toModel()
	return &q, nil
}

func (t *pgTx) SaveQuotation(ctx context.Context, q *models.SupplierQuotation) error {
	query := `
        INSERT INTO supplier_quotations
            (id, project_id, supplier_id, token, requested_items, covers_line_ids, total_price,
             valid_until, status, submitted_at, responded_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO UPDATE SET
            requested_items = EXCLUDED.requested_items,
            covers_line_ids = EXCLUDED.covers_line_ids,
            total_price     = EXCLUDED.total_price,
            valid_until     = EXCLUDED.valid_until,
            status          = EXCLUDED.status,
            submitted_at    = EXCLUDED.submitted_at,
            responded_at    = EXCLUDED.responded_at,
            updated_at      = NOW()
        RETURNING created_at, updated_at`
	covers := q.CoversLineIDs
	if covers == nil {
		covers = []string{}
	}
	err := t.tx.QueryRowContext(ctx, query,
		q.ID, t.project.ID, q.SupplierID, q.Token, requestedItems(q.RequestedItems), pq.Array(covers),
		q.TotalPrice, q.ValidUntil, q.Status, nullTime(q.SubmittedAt), nullTime(q.RespondedAt)).
		Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", models.ErrInvalidStateTransition, pgErr.Constraint)
		}
		return fmt.Errorf("save quotation: %w", err)
	}
	q.ProjectID = t.project.ID
	return nil
}

func (t *pgTx) expirePending(ctx context.Context, now time.Time) ([]models.SupplierQuotation, error) {
	query := `
        UPDATE supplier_quotations
        SET status = $1, updated_at = $3
        WHERE project_id = $4 AND status = $2 AND valid_until < $3
        RETURNING ` + quotationColumns
	rows := []quotationRow{}
	if err := t.tx.SelectContext(ctx, &rows, query, models.QuotationExpired, models.QuotationPending, now, t.project.ID); err != nil {
		return nil, fmt.Errorf("expire quotations: %w", err)
	}
	res := make([]models.SupplierQuotation, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toModel())
	}
	return res, nil
}

func (t *pgTx) SetMargin(ctx context.Context, margin decimal.NullDecimal) error {
	query := `UPDATE event_projects SET profit_margin_percent=$1, updated_at=NOW() WHERE id=$2`
	if _, err := t.tx.ExecContext(ctx, query, margin, t.project.ID); err != nil {
		return fmt.Errorf("set margin: %w", err)
	}
	t.project.ProfitMarginPercent = margin
	return nil
}

func (t *pgTx) SaveCosts(ctx context.Context, c models.ProjectCosts) error {
	query := `
        UPDATE event_projects
        SET total_team_cost=$1, total_equipment_cost=$2, total_cost=$3,
            total_client_price=$4, total_profit=$5, equipment_supplier_id=$6, updated_at=NOW()
        WHERE id=$7`
	_, err := t.tx.ExecContext(ctx, query,
		c.TotalTeamCost, c.TotalEquipmentCost, c.TotalCost, c.TotalClientPrice, c.TotalProfit,
		nullString(c.EquipmentSupplierID), t.project.ID)
	if err != nil {
		return fmt.Errorf("save costs: %w", err)
	}
	t.project.TotalTeamCost = c.TotalTeamCost
	t.project.TotalEquipmentCost = c.TotalEquipmentCost
	t.project.TotalCost = c.TotalCost
	t.project.TotalClientPrice = c.TotalClientPrice
	t.project.TotalProfit = c.TotalProfit
	t.project.EquipmentSupplierID = c.EquipmentSupplierID
	return nil
}

func (t *pgTx) execOne(ctx context.Context, query string, notFound error, args ...interface{}) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
