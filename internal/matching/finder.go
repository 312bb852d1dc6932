package matching

import (
	"context"
	"fmt"

	"eventstaff/db"
	"eventstaff/models"

	"github.com/shopspring/decimal"
)

type ProjectGetter interface {
	GetProject(ctx context.Context, id string) (*models.EventProject, error)
}

// Request поиск по координатам или по проекту (eventId).
type Request struct {
	EventLocation      *models.Coordinates  `json:"eventLocation,omitempty"`
	EventID            string               `json:"eventId,omitempty"`
	MaxDistanceKm      float64              `json:"maxDistanceKm,omitempty"`
	MaxDurationMinutes float64              `json:"maxDurationMinutes,omitempty"`
	Limit              int                  `json:"limit,omitempty"`
	Categories         []string             `json:"categories,omitempty"`
	CandidateType      models.CandidateType `json:"candidateType"`
}

type Match struct {
	CandidateID     string               `json:"candidateId"`
	Name            string               `json:"name"`
	Type            models.CandidateType `json:"type"`
	DistanceKm      float64              `json:"distanceKm"`
	DurationMinutes float64              `json:"durationMinutes"`
	TravelCost      decimal.Decimal      `json:"travelCost"`
	Degraded        bool                 `json:"degraded,omitempty"`
}

type Response struct {
	Matches        []Match            `json:"matches"`
	EventLocation  models.Coordinates `json:"eventLocation"`
	FiltersApplied Filters            `json:"filtersApplied"`
}

// Finder связывает каталог кандидатов, проекты и Matcher.
type Finder struct {
	matcher   *Matcher
	directory db.Directory
	projects  ProjectGetter
}

func NewFinder(matcher *Matcher, directory db.Directory, projects ProjectGetter) *Finder {
	return &Finder{matcher: matcher, directory: directory, projects: projects}
}

func (f *Finder) Find(ctx context.Context, req Request) (*Response, error) {
	location, err := f.location(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.CandidateType == "" {
		req.CandidateType = models.CandidateBoth
	}
	if !models.ValidCandidateType(req.CandidateType) {
		return nil, fmt.Errorf("%w: candidateType %q", models.ErrValidation, req.CandidateType)
	}
	filters, err := f.matcher.Resolve(Filters{
		MaxDistanceKm:      req.MaxDistanceKm,
		MaxDurationMinutes: req.MaxDurationMinutes,
		Limit:              req.Limit,
		Categories:         req.Categories,
	})
	if err != nil {
		return nil, err
	}

	candidates, err := f.directory.ListCandidates(ctx, db.CandidateQuery{Type: req.CandidateType, Categories: req.Categories})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	results, err := f.matcher.Match(ctx, &location, candidates, filters)
	if err != nil {
		return nil, err
	}
	results = f.matcher.CalculateTravelCosts(results)

	resp := &Response{Matches: make([]Match, 0, len(results)), EventLocation: location, FiltersApplied: filters}
	for _, r := range results {
		resp.Matches = append(resp.Matches, Match{
			CandidateID:     r.Candidate.ID,
			Name:            r.Candidate.Name,
			Type:            r.Candidate.Type,
			DistanceKm:      r.DistanceKm,
			DurationMinutes: r.DurationMinutes,
			TravelCost:      r.TravelCost,
			Degraded:        r.Degraded,
		})
	}
	return resp, nil
}

func (f *Finder) location(ctx context.Context, req Request) (models.Coordinates, error) {
	if req.EventLocation != nil {
		if !req.EventLocation.Valid() {
			return models.Coordinates{}, fmt.Errorf("%w: %+v", models.ErrInvalidLocation, *req.EventLocation)
		}
		return *req.EventLocation, nil
	}
	if req.EventID == "" {
		return models.Coordinates{}, fmt.Errorf("%w: eventLocation or eventId is required", models.ErrInvalidLocation)
	}
	p, err := f.projects.GetProject(ctx, req.EventID)
	if err != nil {
		return models.Coordinates{}, err
	}
	if p.Venue == nil || !p.Venue.Valid() {
		return models.Coordinates{}, fmt.Errorf("%w: project %s has no venue", models.ErrInvalidLocation, p.ID)
	}
	return *p.Venue, nil
}
