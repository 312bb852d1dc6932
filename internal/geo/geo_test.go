package geo_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"eventstaff/internal/geo"
	"eventstaff/models"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	saoPaulo = models.Coordinates{Lat: -23.55, Lng: -46.63}
	rio      = models.Coordinates{Lat: -22.91, Lng: -43.17}
)

type stubRouter struct {
	mu    sync.Mutex
	route geo.Route
	err   error
	calls int
}

func (s *stubRouter) Route(ctx context.Context, origin, destination models.Coordinates) (geo.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.route, s.err
}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, geo.HaversineKm(saoPaulo, saoPaulo), 1e-9)
	assert.InDelta(t, 360.6, geo.HaversineKm(saoPaulo, rio), 0.5)
	assert.InDelta(t, geo.HaversineKm(saoPaulo, rio), geo.HaversineKm(rio, saoPaulo), 1e-9)

	// четверть окружности по экватору
	quarter := geo.HaversineKm(models.Coordinates{Lat: 0, Lng: 0}, models.Coordinates{Lat: 0, Lng: 90})
	assert.InDelta(t, 6371*3.141592653589793/2, quarter, 1e-6)
}

func TestFallbackUses40Kmh(t *testing.T) {
	e := geo.Fallback(saoPaulo, rio, 0)
	assert.True(t, e.Degraded)
	assert.InDelta(t, e.DistanceKm/40*60, e.DurationMinutes, 1e-9)
}

func TestEstimatorUsesRouter(t *testing.T) {
	log, hook := test.NewNullLogger()
	router := &stubRouter{route: geo.Route{DistanceKm: 430, DurationMinutes: 330}}
	est := geo.NewEstimator(router, 40, log, nil)

	e, err := est.Estimate(context.Background(), saoPaulo, rio)
	require.NoError(t, err)
	assert.False(t, e.Degraded)
	assert.Equal(t, 430.0, e.DistanceKm)
	assert.Equal(t, 330.0, e.DurationMinutes)
	assert.Empty(t, hook.AllEntries())
}

func TestEstimatorFallsBackOnProviderError(t *testing.T) {
	log, hook := test.NewNullLogger()
	router := &stubRouter{err: errors.New("connection refused")}
	est := geo.NewEstimator(router, 40, log, nil)

	e, err := est.Estimate(context.Background(), saoPaulo, rio)
	require.NoError(t, err)
	assert.True(t, e.Degraded)
	assert.InDelta(t, geo.HaversineKm(saoPaulo, rio), e.DistanceKm, 1e-9)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Data, "origin")
	assert.Contains(t, entry.Data, "destination")
}

func TestEstimatorFallsBackOnBadRoute(t *testing.T) {
	log, _ := test.NewNullLogger()
	router := &stubRouter{route: geo.Route{DistanceKm: -1}}
	est := geo.NewEstimator(router, 40, log, nil)

	e, err := est.Estimate(context.Background(), saoPaulo, rio)
	require.NoError(t, err)
	assert.True(t, e.Degraded)
}

func TestEstimatorRejectsInvalidCoordinates(t *testing.T) {
	log, _ := test.NewNullLogger()
	router := &stubRouter{}
	est := geo.NewEstimator(router, 40, log, nil)

	_, err := est.Estimate(context.Background(), models.Coordinates{Lat: 120}, rio)
	require.ErrorIs(t, err, models.ErrInvalidLocation)
	assert.Zero(t, router.calls)
}

func TestEstimatorWithoutRouter(t *testing.T) {
	log, hook := test.NewNullLogger()
	est := geo.NewEstimator(nil, 0, log, nil)

	e, err := est.Estimate(context.Background(), saoPaulo, saoPaulo)
	require.NoError(t, err)
	assert.True(t, e.Degraded)
	assert.InDelta(t, 0, e.DistanceKm, 1e-9)
	assert.Empty(t, hook.AllEntries())
}

func TestOSRMClient(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":12500,"duration":900}]}`))
	}))
	defer srv.Close()

	c := geo.NewOSRMClient(srv.URL+"/", "", time.Second, srv.Client())
	r, err := c.Route(context.Background(), saoPaulo, rio)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, r.DistanceKm, 1e-9)
	assert.InDelta(t, 15, r.DurationMinutes, 1e-9)
	assert.Equal(t, "/route/v1/driving/-46.630000,-23.550000;-43.170000,-22.910000", gotPath)
}

func TestOSRMClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		noRoute bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "bad json", status: http.StatusOK, body: `{`},
		{name: "no route", status: http.StatusOK, body: `{"code":"NoRoute","message":"Impossible route","routes":[]}`, noRoute: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := geo.NewOSRMClient(srv.URL, "driving", time.Second, srv.Client())
			_, err := c.Route(context.Background(), saoPaulo, rio)
			require.Error(t, err)
			if tt.noRoute {
				require.ErrorIs(t, err, geo.ErrNoRoute)
			}
		})
	}
}

func TestOSRMClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := geo.NewOSRMClient(srv.URL, "driving", 20*time.Millisecond, srv.Client())
	_, err := c.Route(context.Background(), saoPaulo, rio)
	require.Error(t, err)
}

type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, geo.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func TestCachedRouter(t *testing.T) {
	log, _ := test.NewNullLogger()
	router := &stubRouter{route: geo.Route{DistanceKm: 10, DurationMinutes: 12}}
	cache := &mapCache{data: map[string][]byte{}}
	cached := geo.NewCachedRouter(router, cache, time.Hour, log, nil)

	for i := 0; i < 3; i++ {
		r, err := cached.Route(context.Background(), saoPaulo, rio)
		require.NoError(t, err)
		assert.Equal(t, 10.0, r.DistanceKm)
	}
	assert.Equal(t, 1, router.calls)
	assert.Len(t, cache.data, 1)
}

func TestCachedRouterSurvivesCacheErrors(t *testing.T) {
	log, _ := test.NewNullLogger()
	router := &stubRouter{route: geo.Route{DistanceKm: 10, DurationMinutes: 12}}
	cache := &mapCache{data: map[string][]byte{}, getErr: errors.New("redis down")}
	cached := geo.NewCachedRouter(router, cache, time.Hour, log, nil)

	_, err := cached.Route(context.Background(), saoPaulo, rio)
	require.NoError(t, err)
	_, err = cached.Route(context.Background(), saoPaulo, rio)
	require.NoError(t, err)
	assert.Equal(t, 2, router.calls)
}

func TestCachedRouterDoesNotCacheFailures(t *testing.T) {
	log, _ := test.NewNullLogger()
	router := &stubRouter{err: errors.New("down")}
	cache := &mapCache{data: map[string][]byte{}}
	cached := geo.NewCachedRouter(router, cache, time.Hour, log, nil)

	_, err := cached.Route(context.Background(), saoPaulo, rio)
	require.Error(t, err)
	assert.Empty(t, cache.data)
}
