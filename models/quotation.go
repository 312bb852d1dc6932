package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuotationStatus string

const (
	QuotationPending   QuotationStatus = "pending"
	QuotationSubmitted QuotationStatus = "submitted"
	QuotationAccepted  QuotationStatus = "accepted"
	QuotationRejected  QuotationStatus = "rejected"
	QuotationExpired   QuotationStatus = "expired"
)

func ValidQuotationStatus(s QuotationStatus) bool {
	switch s {
	case QuotationPending, QuotationSubmitted, QuotationAccepted, QuotationRejected, QuotationExpired:
		return true
	default:
		return false
	}
}

// RequestedItem позиция, по которой поставщика просят назвать цену.
type RequestedItem struct {
	Category      string          `json:"category"`
	EquipmentType string          `json:"equipmentType"`
	Quantity      int             `json:"quantity"`
	DurationDays  int             `json:"durationDays,omitempty"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Notes         string          `json:"notes,omitempty"`
}

// Котировка поставщика. Token даёт доступ к строке без аккаунта на платформе.
type SupplierQuotation struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"projectId"`
	SupplierID     string          `json:"supplierId"`
	Token          string          `json:"token,omitempty"`
	RequestedItems []RequestedItem `json:"requestedItems"`
	CoversLineIDs  []string        `json:"coversLineIds,omitempty"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	ValidUntil     time.Time       `json:"validUntil"`
	Status         QuotationStatus `json:"status"`
	SubmittedAt    *time.Time      `json:"submittedAt,omitempty"`
	RespondedAt    *time.Time      `json:"respondedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// EffectiveStatus учитывает истечение срока: pending после ValidUntil считается expired.
func (q *SupplierQuotation) EffectiveStatus(now time.Time) QuotationStatus {
	if q.Status == QuotationPending && now.After(q.ValidUntil) {
		return QuotationExpired
	}
	return q.Status
}

// Redacted копия без токена, для ответов не оператору и для логов.
func (q SupplierQuotation) Redacted() SupplierQuotation {
	q.Token = ""
	return q
}

// QuotationPricing то, что поставщик присылает через форму.
type QuotationPricing struct {
	Items      []RequestedItem `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}
