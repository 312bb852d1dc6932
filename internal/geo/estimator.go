// Package geo оценивает расстояние и время в пути между двумя точками.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"eventstaff/internal/metrics"
	"eventstaff/models"

	"github.com/sirupsen/logrus"
)

// ErrNoRoute маршрутизатор ответил, но маршрута нет.
var ErrNoRoute = errors.New("no route")

// Route ответ маршрутизатора по дорогам.
type Route struct {
	DistanceKm      float64
	DurationMinutes float64
}

type Router interface {
	Route(ctx context.Context, origin, destination models.Coordinates) (Route, error)
}

// Estimate итог оценки. Degraded означает, что использована формула гаверсинуса.
type Estimate struct {
	DistanceKm      float64 `json:"distanceKm"`
	DurationMinutes float64 `json:"durationMinutes"`
	Degraded        bool    `json:"degraded"`
}

type Estimator struct {
	router   Router
	speedKmh float64
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewEstimator router может быть nil, тогда все оценки считаются по прямой.
func NewEstimator(router Router, fallbackSpeedKmh float64, log logrus.FieldLogger, m *metrics.Metrics) *Estimator {
	if fallbackSpeedKmh <= 0 {
		fallbackSpeedKmh = DefaultFallbackKmh
	}
	return &Estimator{router: router, speedKmh: fallbackSpeedKmh, log: log, metrics: m}
}

// Estimate возвращает ошибку только для некорректных координат. Отказ маршрутизатора
// заменяется оценкой по прямой с предупреждением в логе.
func (e *Estimator) Estimate(ctx context.Context, origin, destination models.Coordinates) (Estimate, error) {
	if !origin.Valid() || !destination.Valid() {
		return Estimate{}, fmt.Errorf("%w: %+v -> %+v", models.ErrInvalidLocation, origin, destination)
	}
	if e.router == nil {
		return Fallback(origin, destination, e.speedKmh), nil
	}

	route, err := e.router.Route(ctx, origin, destination)
	if err == nil {
		err = checkRoute(route)
	}
	if err != nil {
		e.metrics.RoutingDegraded()
		e.log.WithFields(logrus.Fields{
			"origin":      fmt.Sprintf("%.5f,%.5f", origin.Lat, origin.Lng),
			"destination": fmt.Sprintf("%.5f,%.5f", destination.Lat, destination.Lng),
		}).WithError(err).Warn("routing provider unavailable, using haversine estimate")
		return Fallback(origin, destination, e.speedKmh), nil
	}
	return Estimate{DistanceKm: route.DistanceKm, DurationMinutes: route.DurationMinutes}, nil
}

func checkRoute(r Route) error {
	if math.IsNaN(r.DistanceKm) || math.IsNaN(r.DurationMinutes) || r.DistanceKm < 0 || r.DurationMinutes < 0 {
		return fmt.Errorf("%w: invalid route %+v", ErrNoRoute, r)
	}
	return nil
}
