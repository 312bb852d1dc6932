package handlers

import (
	"net/http"

	"eventstaff/internal/financials"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CreateProjectHandler обрабатывает POST /api/projects
func (h *Handler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var in financials.NewProject
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Name == "" || len(in.Name) > 200 {
		http.Error(w, "name is required and max length 200", http.StatusBadRequest)
		return
	}

	p, err := h.Projects.CreateProject(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Projects.GetProject(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetCostsHandler(w http.ResponseWriter, r *http.Request) {
	costs, err := h.Projects.Costs(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

// RecalculateHandler пересчитывает итоги проекта с нуля
func (h *Handler) RecalculateHandler(w http.ResponseWriter, r *http.Request) {
	costs, err := h.Projects.RecalculateAndPersist(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

// SetMarginHandler PUT /api/projects/{projectId}/margin, null возвращает маржу по умолчанию
func (h *Handler) SetMarginHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ProfitMarginPercent *decimal.Decimal `json:"profitMarginPercent"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	costs, err := h.Projects.SetProfitMargin(r.Context(), chi.URLParam(r, "projectId"), input.ProfitMarginPercent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

func (h *Handler) AddTeamMemberHandler(w http.ResponseWriter, r *http.Request) {
	var in financials.LineInput
	if !decodeJSON(w, r, &in) {
		return
	}
	m, costs, err := h.Projects.AddTeamMember(r.Context(), chi.URLParam(r, "projectId"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"teamMember":   m,
		"updatedCosts": costs,
	})
}

func (h *Handler) UpdateTeamMemberHandler(w http.ResponseWriter, r *http.Request) {
	var patch financials.TeamMemberPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	m, costs, err := h.Projects.UpdateTeamMember(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "memberId"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"teamMember":   m,
		"updatedCosts": costs,
	})
}

func (h *Handler) RemoveTeamMemberHandler(w http.ResponseWriter, r *http.Request) {
	costs, err := h.Projects.RemoveTeamMember(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "memberId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updatedCosts": costs})
}

func (h *Handler) AddEquipmentLineHandler(w http.ResponseWriter, r *http.Request) {
	var in financials.LineInput
	if !decodeJSON(w, r, &in) {
		return
	}
	l, costs, err := h.Projects.AddEquipmentLine(r.Context(), chi.URLParam(r, "projectId"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"equipmentLine": l,
		"updatedCosts":  costs,
	})
}

func (h *Handler) RemoveEquipmentLineHandler(w http.ResponseWriter, r *http.Request) {
	costs, err := h.Projects.RemoveEquipmentLine(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "lineId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updatedCosts": costs})
}
