package handlers

import (
	"net/http"

	"eventstaff/internal/quotation"
	"eventstaff/models"

	"github.com/go-chi/chi/v5"
)

// RequestQuotationsHandler POST /api/projects/{projectId}/quotations.
// Токены возвращаются только здесь, оператору.
func (h *Handler) RequestQuotationsHandler(w http.ResponseWriter, r *http.Request) {
	var in quotation.RequestInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.ProjectID = chi.URLParam(r, "projectId")

	quotes, err := h.Quotations.Request(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quotations": quotes})
}

func (h *Handler) ListQuotationsHandler(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.Quotations.List(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quotations": quotes})
}

// AcceptQuotationHandler PUT /api/quotations/{quotationId}/accept
func (h *Handler) AcceptQuotationHandler(w http.ResponseWriter, r *http.Request) {
	quotationID := chi.URLParam(r, "quotationId")
	if quotationID == "" {
		http.Error(w, "Invalid quotationId", http.StatusBadRequest)
		return
	}

	res, err := h.Quotations.Accept(r.Context(), quotationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res.Quotation = res.Quotation.Redacted()
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RejectQuotationHandler(w http.ResponseWriter, r *http.Request) {
	quotationID := chi.URLParam(r, "quotationId")
	if quotationID == "" {
		http.Error(w, "Invalid quotationId", http.StatusBadRequest)
		return
	}

	q, err := h.Quotations.Reject(r.Context(), quotationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.Redacted())
}

// GetSupplierQuotationHandler форма поставщика, доступ по токену без учётной записи
func (h *Handler) GetSupplierQuotationHandler(w http.ResponseWriter, r *http.Request) {
	q, err := h.Quotations.ByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) SubmitSupplierQuotationHandler(w http.ResponseWriter, r *http.Request) {
	var pricing models.QuotationPricing
	if !decodeJSON(w, r, &pricing) {
		return
	}

	q, err := h.Quotations.Submit(r.Context(), chi.URLParam(r, "token"), pricing)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.Redacted())
}
