package handlers

import (
	"context"

	"eventstaff/internal/financials"
	"eventstaff/internal/matching"
	"eventstaff/internal/quotation"
	"eventstaff/models"

	"github.com/shopspring/decimal"
)

type ProjectService interface {
	CreateProject(ctx context.Context, in financials.NewProject) (*models.EventProject, error)
	GetProject(ctx context.Context, projectID string) (*models.EventProject, error)
	Costs(ctx context.Context, projectID string) (models.ProjectCosts, error)
	RecalculateAndPersist(ctx context.Context, projectID string) (models.ProjectCosts, error)
	SetProfitMargin(ctx context.Context, projectID string, margin *decimal.Decimal) (models.ProjectCosts, error)

	AddTeamMember(ctx context.Context, projectID string, in financials.LineInput) (*models.TeamMember, models.ProjectCosts, error)
	UpdateTeamMember(ctx context.Context, projectID, memberID string, patch financials.TeamMemberPatch) (*models.TeamMember, models.ProjectCosts, error)
	RemoveTeamMember(ctx context.Context, projectID, memberID string) (models.ProjectCosts, error)

	AddEquipmentLine(ctx context.Context, projectID string, in financials.LineInput) (*models.EquipmentLine, models.ProjectCosts, error)
	RemoveEquipmentLine(ctx context.Context, projectID, lineID string) (models.ProjectCosts, error)
}

type QuotationService interface {
	Request(ctx context.Context, in quotation.RequestInput) ([]models.SupplierQuotation, error)
	List(ctx context.Context, projectID string) ([]models.SupplierQuotation, error)
	Accept(ctx context.Context, quotationID string) (*quotation.AcceptResult, error)
	Reject(ctx context.Context, quotationID string) (*models.SupplierQuotation, error)
	ByToken(ctx context.Context, token string) (*models.SupplierQuotation, error)
	Submit(ctx context.Context, token string, pricing models.QuotationPricing) (*models.SupplierQuotation, error)
}

type MatchService interface {
	Find(ctx context.Context, req matching.Request) (*matching.Response, error)
}
