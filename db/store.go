package db

import (
	"context"
	"time"

	"eventstaff/models"

	"github.com/shopspring/decimal"
)

// Tx операции внутри сериализованной транзакции одного проекта.
// Все методы видят только строки этого проекта.
type Tx interface {
	Project() *models.EventProject

	ListTeamMembers(ctx context.Context) ([]models.TeamMember, error)
	GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error)
	InsertTeamMember(ctx context.Context, m *models.TeamMember) error
	UpdateTeamMember(ctx context.Context, m *models.TeamMember) error
	DeleteTeamMember(ctx context.Context, id string) error

	ListEquipmentLines(ctx context.Context) ([]models.EquipmentLine, error)
	InsertEquipmentLine(ctx context.Context, l *models.EquipmentLine) error
	DeleteEquipmentLine(ctx context.Context, id string) error
	LinkEquipmentLines(ctx context.Context, lineIDs []string, quotationID string) error

	ListQuotations(ctx context.Context) ([]models.SupplierQuotation, error)
	GetQuotation(ctx context.Context, id string) (*models.SupplierQuotation, error)
	SaveQuotation(ctx context.Context, q *models.SupplierQuotation) error

	SetMargin(ctx context.Context, margin decimal.NullDecimal) error
	SaveCosts(ctx context.Context, costs models.ProjectCosts) error
}

// Store граница хранения проекта и его финансов.
type Store interface {
	CreateProject(ctx context.Context, p *models.EventProject) error
	GetProject(ctx context.Context, id string) (*models.EventProject, error)
	GetTeamMember(ctx context.Context, id string) (*models.TeamMember, error)
	GetEquipmentLine(ctx context.Context, id string) (*models.EquipmentLine, error)
	GetQuotation(ctx context.Context, id string) (*models.SupplierQuotation, error)
	GetQuotationByToken(ctx context.Context, token string) (*models.SupplierQuotation, error)
	ListQuotations(ctx context.Context, projectID string) ([]models.SupplierQuotation, error)

	// InProjectTx держит блокировку проекта на всё время fn. Ошибка fn откатывает все изменения.
	InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error

	// ExpirePendingQuotations переводит pending с истёкшим valid_until в expired.
	ExpirePendingQuotations(ctx context.Context, now time.Time) ([]models.SupplierQuotation, error)
}

// CandidateQuery фильтр каталога кандидатов.
type CandidateQuery struct {
	Type       models.CandidateType
	Categories []string
}

// Directory каталог специалистов и поставщиков, из которого берутся кандидаты для подбора.
type Directory interface {
	ListCandidates(ctx context.Context, q CandidateQuery) ([]models.Candidate, error)
}
