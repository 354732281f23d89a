// Package geo provides great-circle distance and geofence radius helpers.
package geo

import "math"

const (
	// EarthRadiusMeters is the spherical-Earth approximation radius.
	EarthRadiusMeters = 6371000.0

	// AccuracyMultiplier widens the geofence radius proportionally to the
	// reported GPS accuracy. Reduces false negatives near the boundary at
	// the cost of more false positives.
	AccuracyMultiplier = 1.5

	// MinRadiusMeters and MaxRadiusMeters bound configurable geofence radii.
	MinRadiusMeters = 25.0
	MaxRadiusMeters = 1000.0

	// DefaultRadiusMeters is the geofence radius used when none is configured.
	DefaultRadiusMeters = 150.0
)

// DistanceMeters computes the haversine great-circle distance between two
// coordinates. Pure and deterministic; identical points yield 0.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// EffectiveRadius returns the detection radius widened for GPS accuracy:
// max(configured, accuracy*AccuracyMultiplier). Never below the configured
// radius, so degraded accuracy can only widen the fence.
func EffectiveRadius(configuredMeters, accuracyMeters float64) float64 {
	widened := accuracyMeters * AccuracyMultiplier
	if widened > configuredMeters {
		return widened
	}
	return configuredMeters
}

// ClampRadius clamps a configured radius into [MinRadiusMeters, MaxRadiusMeters].
// Non-positive input falls back to DefaultRadiusMeters.
func ClampRadius(r float64) float64 {
	if r <= 0 {
		return DefaultRadiusMeters
	}
	if r < MinRadiusMeters {
		return MinRadiusMeters
	}
	if r > MaxRadiusMeters {
		return MaxRadiusMeters
	}
	return r
}
