package models

import "github.com/shopspring/decimal"

type CandidateType string

const (
	CandidateProfessional CandidateType = "professional"
	CandidateSupplier     CandidateType = "supplier"
	CandidateBoth         CandidateType = "both"
)

func ValidCandidateType(t CandidateType) bool {
	switch t {
	case CandidateProfessional, CandidateSupplier, CandidateBoth:
		return true
	default:
		return false
	}
}

// Candidate проекция специалиста или поставщика для подбора.
type Candidate struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Type            CandidateType `json:"type"`
	Location        *Coordinates  `json:"location,omitempty"`
	Categories      []string      `json:"categories"`
	ServiceRadiusKm *float64      `json:"serviceRadiusKm,omitempty"`
	Active          bool          `json:"active"`
}

// MatchResult кандидат с рассчитанной дорогой, не хранится.
type MatchResult struct {
	Candidate       Candidate       `json:"candidate"`
	DistanceKm      float64         `json:"distanceKm"`
	DurationMinutes float64         `json:"durationMinutes"`
	TravelCost      decimal.Decimal `json:"travelCost"`
	Degraded        bool            `json:"degraded"`
}
