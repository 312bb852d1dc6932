package matching_test

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"eventstaff/db"
	"eventstaff/internal/geo"
	"eventstaff/internal/matching"
	"eventstaff/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var event = models.Coordinates{Lat: -23.55, Lng: -46.63}

type countingRouter struct {
	calls atomic.Int32
	err   error
}

func (r *countingRouter) Route(ctx context.Context, origin, destination models.Coordinates) (geo.Route, error) {
	r.calls.Add(1)
	if r.err != nil {
		return geo.Route{}, r.err
	}
	km := geo.HaversineKm(origin, destination) * 1.2
	return geo.Route{DistanceKm: km, DurationMinutes: km}, nil
}

// tableEstimator отвечает заданной оценкой по широте кандидата.
type tableEstimator struct {
	mu    sync.Mutex
	byLat map[float64]geo.Estimate
}

func (e *tableEstimator) Estimate(ctx context.Context, origin, destination models.Coordinates) (geo.Estimate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if est, ok := e.byLat[origin.Lat]; ok {
		return est, nil
	}
	return geo.Fallback(origin, destination, 40), nil
}

func at(lat, lng float64) *models.Coordinates { return &models.Coordinates{Lat: lat, Lng: lng} }

func candidate(id string, loc *models.Coordinates, categories ...string) models.Candidate {
	return models.Candidate{ID: id, Name: id, Type: models.CandidateProfessional, Location: loc, Categories: categories, Active: true}
}

func newMatcher(t *testing.T, router geo.Router) *matching.Matcher {
	t.Helper()
	log, _ := test.NewNullLogger()
	est := geo.NewEstimator(router, 40, log, nil)
	return matching.NewMatcher(est, 4, matching.DefaultFilters(), nil, nil)
}

func TestSamePointIncludedFarExcludedBeforeRouting(t *testing.T) {
	router := &countingRouter{}
	m := newMatcher(t, router)

	candidates := []models.Candidate{
		candidate("near", at(event.Lat, event.Lng)),
		candidate("far", at(event.Lat+9, event.Lng)),
	}
	res, err := m.Match(context.Background(), &event, candidates, matching.Filters{MaxDistanceKm: 50})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "near", res[0].Candidate.ID)
	assert.InDelta(t, 0, res[0].DistanceKm, 1e-6)
	assert.EqualValues(t, 1, router.calls.Load())
}

func TestProviderDownStillReturnsResults(t *testing.T) {
	router := &countingRouter{err: errors.New("dial tcp: connection refused")}
	m := newMatcher(t, router)

	candidates := []models.Candidate{
		candidate("a", at(event.Lat, event.Lng)),
		candidate("b", at(event.Lat+0.1, event.Lng)),
	}
	res, err := m.Match(context.Background(), &event, candidates, matching.Filters{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.True(t, r.Degraded)
		assert.InDelta(t, r.DistanceKm/40*60, r.DurationMinutes, 1e-9)
	}
	assert.Equal(t, "a", res[0].Candidate.ID)
}

func TestRankingTieBreaks(t *testing.T) {
	est := &tableEstimator{byLat: map[float64]geo.Estimate{
		-23.50: {DistanceKm: 10, DurationMinutes: 20},
		-23.51: {DistanceKm: 8, DurationMinutes: 20},
		-23.52: {DistanceKm: 30, DurationMinutes: 15},
	}}
	m := matching.NewMatcher(est, 2, matching.DefaultFilters(), nil, nil)

	candidates := []models.Candidate{
		candidate("z", at(-23.50, -46.63)),
		candidate("b", at(-23.50, -46.63)),
		candidate("a", at(-23.51, -46.63)),
		candidate("fast", at(-23.52, -46.63)),
	}
	res, err := m.Match(context.Background(), &event, candidates, matching.Filters{})
	require.NoError(t, err)

	ids := make([]string, len(res))
	for i, r := range res {
		ids[i] = r.Candidate.ID
	}
	assert.Equal(t, []string{"fast", "a", "b", "z"}, ids)
}

func TestHardFiltersAndLimit(t *testing.T) {
	est := &tableEstimator{byLat: map[float64]geo.Estimate{
		-23.50: {DistanceKm: 10, DurationMinutes: 90},
		-23.51: {DistanceKm: 70, DurationMinutes: 30},
	}}
	m := matching.NewMatcher(est, 2, matching.DefaultFilters(), nil, nil)

	candidates := []models.Candidate{
		candidate("slow", at(-23.50, -46.63)),
		candidate("long", at(-23.51, -46.63)),
	}
	for i := 0; i < 5; i++ {
		candidates = append(candidates, candidate(string(rune('a'+i)), at(-23.55+float64(i)*0.01, -46.63)))
	}

	res, err := m.Match(context.Background(), &event, candidates, matching.Filters{Limit: 3})
	require.NoError(t, err)
	require.Len(t, res, 3)
	for _, r := range res {
		assert.NotEqual(t, "slow", r.Candidate.ID)
		assert.NotEqual(t, "long", r.Candidate.ID)
	}
	assert.Equal(t, "a", res[0].Candidate.ID)
}

func TestPrefilterSkipsIneligible(t *testing.T) {
	router := &countingRouter{}
	m := newMatcher(t, router)

	inactive := candidate("inactive", at(event.Lat, event.Lng), "sound")
	inactive.Active = false
	candidates := []models.Candidate{
		candidate("sound", at(event.Lat, event.Lng), "sound", "light"),
		candidate("catering", at(event.Lat, event.Lng), "catering"),
		candidate("nowhere", nil, "sound"),
		candidate("broken", at(200, 0), "sound"),
		inactive,
	}
	res, err := m.Match(context.Background(), &event, candidates, matching.Filters{Categories: []string{"sound"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "sound", res[0].Candidate.ID)
	assert.EqualValues(t, 1, router.calls.Load())
}

func TestInvalidEventLocation(t *testing.T) {
	router := &countingRouter{}
	m := newMatcher(t, router)
	candidates := []models.Candidate{candidate("a", at(event.Lat, event.Lng))}

	_, err := m.Match(context.Background(), nil, candidates, matching.Filters{})
	require.ErrorIs(t, err, models.ErrInvalidLocation)
	_, err = m.Match(context.Background(), at(-100, 0), candidates, matching.Filters{})
	require.ErrorIs(t, err, models.ErrInvalidLocation)
	_, err = m.Match(context.Background(), &event, candidates, matching.Filters{Limit: -1})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, router.calls.Load())
}

func TestEmptyResultIsNotError(t *testing.T) {
	m := newMatcher(t, &countingRouter{})
	res, err := m.Match(context.Background(), &event, nil, matching.Filters{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestCancelledContext(t *testing.T) {
	m := newMatcher(t, &countingRouter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Match(ctx, &event, []models.Candidate{candidate("a", at(event.Lat, event.Lng))}, matching.Filters{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMatchPropertiesOnRandomPools(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := newMatcher(t, &countingRouter{})

	for iter := 0; iter < 50; iter++ {
		candidates := make([]models.Candidate, 0, 40)
		for i := 0; i < 40; i++ {
			loc := at(event.Lat+(rng.Float64()-0.5), event.Lng+(rng.Float64()-0.5))
			candidates = append(candidates, candidate(string(rune('A'+i)), loc))
		}
		f := matching.Filters{MaxDistanceKm: 10 + rng.Float64()*60, MaxDurationMinutes: 10 + rng.Float64()*60, Limit: 1 + rng.Intn(25)}

		first, err := m.Match(context.Background(), &event, candidates, f)
		require.NoError(t, err)
		second, err := m.Match(context.Background(), &event, candidates, f)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		assert.LessOrEqual(t, len(first), f.Limit)
		for _, r := range first {
			assert.LessOrEqual(t, r.DistanceKm, f.MaxDistanceKm)
			assert.LessOrEqual(t, r.DurationMinutes, f.MaxDurationMinutes)
		}
		assert.True(t, sort.SliceIsSorted(first, func(i, j int) bool {
			return first[i].DurationMinutes < first[j].DurationMinutes
		}))
	}
}

func TestCalculateTravelCosts(t *testing.T) {
	radius := 10.0
	m := matching.NewMatcher(&tableEstimator{}, 1, matching.DefaultFilters(),
		matching.PerKmPolicy{RatePerKm: decimal.RequireFromString("2")}, nil)

	covered := candidate("covered", nil)
	covered.ServiceRadiusKm = &radius
	beyond := candidate("beyond", nil)
	beyond.ServiceRadiusKm = &radius
	noRadius := candidate("none", nil)

	res := m.CalculateTravelCosts([]models.MatchResult{
		{Candidate: covered, DistanceKm: 8},
		{Candidate: beyond, DistanceKm: 25.5},
		{Candidate: noRadius, DistanceKm: 3},
	})
	assert.True(t, res[0].TravelCost.IsZero())
	assert.True(t, decimal.RequireFromString("31").Equal(res[1].TravelCost), "got %s", res[1].TravelCost)
	assert.True(t, decimal.RequireFromString("6").Equal(res[2].TravelCost))
}

func TestDefaultPolicyRate(t *testing.T) {
	cost := matching.PerKmPolicy{RatePerKm: matching.DefaultRatePerKm}.TravelCost(candidate("x", nil), 10)
	assert.True(t, decimal.RequireFromString("15").Equal(cost))
}

func TestFinder(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	require.NoError(t, store.CreateProject(ctx, &models.EventProject{ID: "with-venue", Venue: at(event.Lat, event.Lng)}))
	require.NoError(t, store.CreateProject(ctx, &models.EventProject{ID: "no-venue"}))

	supplier := candidate("s1", at(event.Lat, event.Lng), "sound")
	supplier.Type = models.CandidateSupplier
	dir := db.NewMemoryDirectory(candidate("p1", at(event.Lat+0.01, event.Lng), "waiter"), supplier)
	finder := matching.NewFinder(newMatcher(t, &countingRouter{}), dir, store)

	resp, err := finder.Find(ctx, matching.Request{EventID: "with-venue"})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, "s1", resp.Matches[0].CandidateID)
	assert.Equal(t, 50.0, resp.FiltersApplied.MaxDistanceKm)
	assert.Equal(t, 20, resp.FiltersApplied.Limit)
	assert.Equal(t, event, resp.EventLocation)

	resp, err = finder.Find(ctx, matching.Request{EventLocation: at(event.Lat, event.Lng), CandidateType: models.CandidateProfessional})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "p1", resp.Matches[0].CandidateID)

	_, err = finder.Find(ctx, matching.Request{EventID: "no-venue"})
	require.ErrorIs(t, err, models.ErrInvalidLocation)
	_, err = finder.Find(ctx, matching.Request{})
	require.ErrorIs(t, err, models.ErrInvalidLocation)
	_, err = finder.Find(ctx, matching.Request{EventID: "missing"})
	require.ErrorIs(t, err, models.ErrProjectNotFound)
	_, err = finder.Find(ctx, matching.Request{EventLocation: at(0, 0), CandidateType: "robot"})
	require.ErrorIs(t, err, models.ErrValidation)
}
