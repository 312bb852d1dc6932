package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eventstaff/internal/financials"
	"eventstaff/internal/handlers"
	"eventstaff/internal/handlers/testutils"
	"eventstaff/internal/matching"
	"eventstaff/internal/quotation"
	"eventstaff/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProjects реализует ProjectService
type MockProjects struct {
	CreateProjectFunc    func(ctx context.Context, in financials.NewProject) (*models.EventProject, error)
	CostsFunc            func(ctx context.Context, projectID string) (models.ProjectCosts, error)
	AddTeamMemberFunc    func(ctx context.Context, projectID string, in financials.LineInput) (*models.TeamMember, models.ProjectCosts, error)
	RemoveTeamMemberFunc func(ctx context.Context, projectID, memberID string) (models.ProjectCosts, error)
}

func (m *MockProjects) CreateProject(ctx context.Context, in financials.NewProject) (*models.EventProject, error) {
	if m.CreateProjectFunc != nil {
		return m.CreateProjectFunc(ctx, in)
	}
	return &models.EventProject{ID: "p1", Name: in.Name}, nil
}
func (m *MockProjects) GetProject(ctx context.Context, projectID string) (*models.EventProject, error) {
	return &models.EventProject{ID: projectID, Name: "Test Project"}, nil
}
func (m *MockProjects) Costs(ctx context.Context, projectID string) (models.ProjectCosts, error) {
	if m.CostsFunc != nil {
		return m.CostsFunc(ctx, projectID)
	}
	return models.ProjectCosts{ProjectID: projectID}, nil
}
func (m *MockProjects) RecalculateAndPersist(ctx context.Context, projectID string) (models.ProjectCosts, error) {
	return models.ProjectCosts{ProjectID: projectID}, nil
}
func (m *MockProjects) SetProfitMargin(ctx context.Context, projectID string, margin *decimal.Decimal) (models.ProjectCosts, error) {
	return models.ProjectCosts{ProjectID: projectID}, nil
}
func (m *MockProjects) AddTeamMember(ctx context.Context, projectID string, in financials.LineInput) (*models.TeamMember, models.ProjectCosts, error) {
	if m.AddTeamMemberFunc != nil {
		return m.AddTeamMemberFunc(ctx, projectID, in)
	}
	return &models.TeamMember{ID: "m1", ProjectID: projectID}, models.ProjectCosts{ProjectID: projectID}, nil
}
func (m *MockProjects) UpdateTeamMember(ctx context.Context, projectID, memberID string, patch financials.TeamMemberPatch) (*models.TeamMember, models.ProjectCosts, error) {
	return &models.TeamMember{ID: memberID, ProjectID: projectID}, models.ProjectCosts{ProjectID: projectID}, nil
}
func (m *MockProjects) RemoveTeamMember(ctx context.Context, projectID, memberID string) (models.ProjectCosts, error) {
	if m.RemoveTeamMemberFunc != nil {
		return m.RemoveTeamMemberFunc(ctx, projectID, memberID)
	}
	return models.ProjectCosts{ProjectID: projectID}, nil
}
func (m *MockProjects) AddEquipmentLine(ctx context.Context, projectID string, in financials.LineInput) (*models.EquipmentLine, models.ProjectCosts, error) {
	return &models.EquipmentLine{ID: "l1", ProjectID: projectID}, models.ProjectCosts{ProjectID: projectID}, nil
}
func (m *MockProjects) RemoveEquipmentLine(ctx context.Context, projectID, lineID string) (models.ProjectCosts, error) {
	return models.ProjectCosts{ProjectID: projectID}, nil
}

// MockQuotations реализует QuotationService
type MockQuotations struct {
	AcceptFunc func(ctx context.Context, quotationID string) (*quotation.AcceptResult, error)
	SubmitFunc func(ctx context.Context, token string, pricing models.QuotationPricing) (*models.SupplierQuotation, error)
}

func (m *MockQuotations) Request(ctx context.Context, in quotation.RequestInput) ([]models.SupplierQuotation, error) {
	return []models.SupplierQuotation{{ID: "q1", ProjectID: in.ProjectID, Token: "secret"}}, nil
}
func (m *MockQuotations) List(ctx context.Context, projectID string) ([]models.SupplierQuotation, error) {
	return []models.SupplierQuotation{{ID: "q1", ProjectID: projectID}}, nil
}
func (m *MockQuotations) Accept(ctx context.Context, quotationID string) (*quotation.AcceptResult, error) {
	if m.AcceptFunc != nil {
		return m.AcceptFunc(ctx, quotationID)
	}
	return &quotation.AcceptResult{Quotation: models.SupplierQuotation{ID: quotationID, Token: "secret"}}, nil
}
func (m *MockQuotations) Reject(ctx context.Context, quotationID string) (*models.SupplierQuotation, error) {
	return &models.SupplierQuotation{ID: quotationID, Status: models.QuotationRejected, Token: "secret"}, nil
}
func (m *MockQuotations) ByToken(ctx context.Context, token string) (*models.SupplierQuotation, error) {
	return &models.SupplierQuotation{ID: "q1"}, nil
}
func (m *MockQuotations) Submit(ctx context.Context, token string, pricing models.QuotationPricing) (*models.SupplierQuotation, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, token, pricing)
	}
	return &models.SupplierQuotation{ID: "q1", Status: models.QuotationSubmitted, Token: token}, nil
}

// MockMatches реализует MatchService
type MockMatches struct {
	FindFunc func(ctx context.Context, req matching.Request) (*matching.Response, error)
}

func (m *MockMatches) Find(ctx context.Context, req matching.Request) (*matching.Response, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, req)
	}
	return &matching.Response{Matches: []matching.Match{}}, nil
}

func newHandler(p *MockProjects, q *MockQuotations, m *MockMatches) *handlers.Handler {
	log, _ := test.NewNullLogger()
	return handlers.NewHandler(p, q, m, log)
}

func TestPingHandler(t *testing.T) {
	handler := newHandler(&MockProjects{}, &MockQuotations{}, &MockMatches{})

	req := httptest.NewRequest("GET", "/api/ping", nil)
	w := httptest.NewRecorder()

	handler.PingHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestCreateProjectHandler(t *testing.T) {
	handler := newHandler(&MockProjects{}, &MockQuotations{}, &MockMatches{})

	body := `{"name":"Summer Fest","venue":{"lat":-23.55,"lng":-46.63},"profitMarginPercent":"25"}`
	req := httptest.NewRequest("POST", "/api/projects", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.CreateProjectHandler(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"name":"Summer Fest"`)
}

func TestCreateProjectHandler_BadRequests(t *testing.T) {
	handler := newHandler(&MockProjects{}, &MockQuotations{}, &MockMatches{})

	for _, body := range []string{`{`, `{"name":""}`} {
		req := httptest.NewRequest("POST", "/api/projects", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.CreateProjectHandler(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestAddTeamMemberHandler(t *testing.T) {
	mockProjects := &MockProjects{
		AddTeamMemberFunc: func(ctx context.Context, projectID string, in financials.LineInput) (*models.TeamMember, models.ProjectCosts, error) {
			require.Equal(t, "p42", projectID)
			require.Equal(t, 3, in.Quantity)
			return &models.TeamMember{ID: "m1"}, models.ProjectCosts{TotalCost: decimal.NewFromInt(300)}, nil
		},
	}
	handler := newHandler(mockProjects, &MockQuotations{}, &MockMatches{})

	body := `{"category":"waiter","quantity":3,"durationDays":1,"dailyRate":"100"}`
	req := testutils.ProjectRequest("POST", "/api/projects/p42/team", body, map[string]string{"projectId": "p42"})
	w := httptest.NewRecorder()

	handler.AddTeamMemberHandler(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"totalCost":"300"`)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.ErrTeamMemberNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", models.ErrValidation), http.StatusBadRequest},
		{models.ErrNegativeAmount, http.StatusBadRequest},
		{models.ErrInvalidStateTransition, http.StatusConflict},
		{models.ErrRollupUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			mockProjects := &MockProjects{
				RemoveTeamMemberFunc: func(ctx context.Context, projectID, memberID string) (models.ProjectCosts, error) {
					return models.ProjectCosts{}, tt.err
				},
			}
			handler := newHandler(mockProjects, &MockQuotations{}, &MockMatches{})

			req := testutils.ProjectRequest("DELETE", "/api/projects/p1/team/m1", "", map[string]string{"projectId": "p1", "memberId": "m1"})
			w := httptest.NewRecorder()

			handler.RemoveTeamMemberHandler(w, req)

			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusServiceUnavailable {
				require.Equal(t, "1", w.Header().Get("Retry-After"))
			}
			if tt.status == http.StatusInternalServerError {
				require.NotContains(t, w.Body.String(), "connection reset")
			}
		})
	}
}

func TestAcceptQuotationHandler(t *testing.T) {
	handler := newHandler(&MockProjects{}, &MockQuotations{}, &MockMatches{})

	req := testutils.ProjectRequest("PUT", "/api/quotations/q7/accept", "", map[string]string{"quotationId": "q7"})
	w := httptest.NewRecorder()

	handler.AcceptQuotationHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"updatedCosts"`)
	require.NotContains(t, w.Body.String(), "secret")
}

func TestAcceptQuotationHandler_InvalidTransition(t *testing.T) {
	mockQuotations := &MockQuotations{
		AcceptFunc: func(ctx context.Context, quotationID string) (*quotation.AcceptResult, error) {
			return nil, models.ErrInvalidStateTransition
		},
	}
	handler := newHandler(&MockProjects{}, mockQuotations, &MockMatches{})

	req := testutils.ProjectRequest("PUT", "/api/quotations/q7/accept", "", map[string]string{"quotationId": "q7"})
	w := httptest.NewRecorder()

	handler.AcceptQuotationHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRequestQuotationsHandlerReturnsTokens(t *testing.T) {
	handler := newHandler(&MockProjects{}, &MockQuotations{}, &MockMatches{})

	req := testutils.ProjectRequest("POST", "/api/projects/p1/quotations", `{"supplierIds":["s1"]}`, map[string]string{"projectId": "p1"})
	w := httptest.NewRecorder()

	handler.RequestQuotationsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"token":"secret"`)
	require.Contains(t, w.Body.String(), `"projectId":"p1"`)
}

func TestSubmitSupplierQuotationHandler_Expired(t *testing.T) {
	mockQuotations := &MockQuotations{
		SubmitFunc: func(ctx context.Context, token string, pricing models.QuotationPricing) (*models.SupplierQuotation, error) {
			require.Equal(t, "tok", token)
			return nil, models.ErrQuotationExpired
		},
	}
	handler := newHandler(&MockProjects{}, mockQuotations, &MockMatches{})

	req := testutils.ProjectRequest("POST", "/api/supplier/quotations/tok/submit", `{"totalPrice":"500"}`, map[string]string{"token": "tok"})
	w := httptest.NewRecorder()

	handler.SubmitSupplierQuotationHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestMatchCandidatesHandler(t *testing.T) {
	mockMatches := &MockMatches{
		FindFunc: func(ctx context.Context, req matching.Request) (*matching.Response, error) {
			if req.EventLocation == nil && req.EventID == "" {
				return nil, models.ErrInvalidLocation
			}
			return &matching.Response{
				Matches:        []matching.Match{{CandidateID: "c1", Type: models.CandidateSupplier, TravelCost: decimal.Zero}},
				EventLocation:  *req.EventLocation,
				FiltersApplied: matching.DefaultFilters(),
			}, nil
		},
	}
	handler := newHandler(&MockProjects{}, &MockQuotations{}, mockMatches)

	req := httptest.NewRequest("POST", "/api/matches", strings.NewReader(`{"eventLocation":{"lat":-23.55,"lng":-46.63}}`))
	w := httptest.NewRecorder()
	handler.MatchCandidatesHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp matching.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "c1", resp.Matches[0].CandidateID)
	assert.Equal(t, 50.0, resp.FiltersApplied.MaxDistanceKm)

	req = httptest.NewRequest("POST", "/api/matches", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	handler.MatchCandidatesHandler(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
