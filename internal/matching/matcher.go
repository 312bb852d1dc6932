// Package matching подбирает специалистов и поставщиков по расстоянию до площадки.
package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"eventstaff/internal/geo"
	"eventstaff/internal/metrics"
	"eventstaff/models"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Filters нулевые поля заменяются значениями по умолчанию.
type Filters struct {
	MaxDistanceKm      float64  `json:"maxDistanceKm"`
	MaxDurationMinutes float64  `json:"maxDurationMinutes"`
	Limit              int      `json:"limit"`
	Categories         []string `json:"categories,omitempty"`
}

// DefaultFilters 50 км, 60 минут, 20 результатов.
func DefaultFilters() Filters {
	return Filters{MaxDistanceKm: 50, MaxDurationMinutes: 60, Limit: 20}
}

type Estimator interface {
	Estimate(ctx context.Context, origin, destination models.Coordinates) (geo.Estimate, error)
}

type Matcher struct {
	est      Estimator
	workers  int
	defaults Filters
	policy   TravelCostPolicy
	metrics  *metrics.Metrics
}

func NewMatcher(est Estimator, workers int, defaults Filters, policy TravelCostPolicy, m *metrics.Metrics) *Matcher {
	if workers <= 0 {
		workers = 8
	}
	d := DefaultFilters()
	if defaults.MaxDistanceKm <= 0 {
		defaults.MaxDistanceKm = d.MaxDistanceKm
	}
	if defaults.MaxDurationMinutes <= 0 {
		defaults.MaxDurationMinutes = d.MaxDurationMinutes
	}
	if defaults.Limit <= 0 {
		defaults.Limit = d.Limit
	}
	if policy == nil {
		policy = PerKmPolicy{RatePerKm: DefaultRatePerKm}
	}
	return &Matcher{est: est, workers: workers, defaults: defaults, policy: policy, metrics: m}
}

// Resolve подставляет значения по умолчанию и проверяет фильтры.
func (m *Matcher) Resolve(f Filters) (Filters, error) {
	if f.MaxDistanceKm < 0 || f.MaxDurationMinutes < 0 || f.Limit < 0 {
		return Filters{}, fmt.Errorf("%w: filters must not be negative", models.ErrValidation)
	}
	if f.MaxDistanceKm == 0 {
		f.MaxDistanceKm = m.defaults.MaxDistanceKm
	}
	if f.MaxDurationMinutes == 0 {
		f.MaxDurationMinutes = m.defaults.MaxDurationMinutes
	}
	if f.Limit == 0 {
		f.Limit = m.defaults.Limit
	}
	return f, nil
}

// Match ранжирует кандидатов по времени в пути, затем по расстоянию, затем по ID.
// Кандидаты без координат и дальше MaxDistanceKm по прямой отбрасываются до запроса маршрута.
func (m *Matcher) Match(ctx context.Context, event *models.Coordinates, candidates []models.Candidate, f Filters) ([]models.MatchResult, error) {
	if event == nil || !event.Valid() {
		return nil, models.ErrInvalidLocation
	}
	f, err := m.Resolve(f)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { m.metrics.ObserveMatch(time.Since(start).Seconds()) }()

	survivors := prefilter(*event, candidates, f)
	estimates := make([]geo.Estimate, len(survivors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range survivors {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := m.est.Estimate(gctx, *survivors[i].Location, *event)
			if err != nil {
				return err
			}
			estimates[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]models.MatchResult, 0, len(survivors))
	for i, c := range survivors {
		e := estimates[i]
		if e.DistanceKm > f.MaxDistanceKm || e.DurationMinutes > f.MaxDurationMinutes {
			continue
		}
		results = append(results, models.MatchResult{
			Candidate:       c,
			DistanceKm:      e.DistanceKm,
			DurationMinutes: e.DurationMinutes,
			TravelCost:      decimal.Zero,
			Degraded:        e.Degraded,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.DurationMinutes != b.DurationMinutes {
			return a.DurationMinutes < b.DurationMinutes
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Candidate.ID != b.Candidate.ID {
			return a.Candidate.ID < b.Candidate.ID
		}
		return a.Candidate.Type < b.Candidate.Type
	})
	if len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results, nil
}

func prefilter(event models.Coordinates, candidates []models.Candidate, f Filters) []models.Candidate {
	wanted := make(map[string]struct{}, len(f.Categories))
	for _, c := range f.Categories {
		wanted[c] = struct{}{}
	}

	res := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Active || c.Location == nil || !c.Location.Valid() {
			continue
		}
		if len(wanted) > 0 && !intersects(c.Categories, wanted) {
			continue
		}
		// прямая не длиннее дороги, поэтому годных кандидатов здесь не теряем
		if geo.HaversineKm(*c.Location, event) > f.MaxDistanceKm {
			continue
		}
		res = append(res, c)
	}
	return res
}

func intersects(have []string, wanted map[string]struct{}) bool {
	for _, h := range have {
		if _, ok := wanted[h]; ok {
			return true
		}
	}
	return false
}

// CalculateTravelCosts проставляет стоимость дороги по политике матчера.
func (m *Matcher) CalculateTravelCosts(results []models.MatchResult) []models.MatchResult {
	out := make([]models.MatchResult, len(results))
	for i, r := range results {
		r.TravelCost = m.policy.TravelCost(r.Candidate, r.DistanceKm)
		out[i] = r
	}
	return out
}
