package geo

import (
	"math"

	"eventstaff/models"
)

const (
	EarthRadiusKm      = 6371.0
	DefaultFallbackKmh = 40.0
	minutesPerHour     = 60.0
	degreesToRadians   = math.Pi / 180
)

// HaversineKm расстояние по большому кругу.
func HaversineKm(a, b models.Coordinates) float64 {
	lat1 := a.Lat * degreesToRadians
	lat2 := b.Lat * degreesToRadians
	dLat := (b.Lat - a.Lat) * degreesToRadians
	dLng := (b.Lng - a.Lng) * degreesToRadians

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Fallback оценка без маршрутизатора: прямая и постоянная скорость.
func Fallback(a, b models.Coordinates, speedKmh float64) Estimate {
	if speedKmh <= 0 {
		speedKmh = DefaultFallbackKmh
	}
	distance := HaversineKm(a, b)
	return Estimate{
		DistanceKm:      distance,
		DurationMinutes: distance / speedKmh * minutesPerHour,
		Degraded:        true,
	}
}
