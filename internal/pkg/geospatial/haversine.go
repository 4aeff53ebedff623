package geospatial

import "math"

const (
	earthRadiusMeters = 6371000.0
	metersPerDegree   = 111320.0
)

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Box is a latitude/longitude rectangle.
type Box struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// Contains reports whether the point lies inside the box.
func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// BoundingBox returns a box enclosing the circle of radiusMeters around a
// point. It is a cheap prefilter before Haversine.
func BoundingBox(lat, lon, radiusMeters float64) Box {
	latDelta := radiusMeters / metersPerDegree
	lonDelta := radiusMeters / (metersPerDegree * math.Cos(toRad(lat)))
	return Box{MinLat: lat - latDelta, MinLon: lon - lonDelta, MaxLat: lat + latDelta, MaxLon: lon + lonDelta}
}

// WithinRadius reports whether (lat, lon) is within radiusMeters of the center.
func WithinRadius(lat, lon, centerLat, centerLon, radiusMeters float64) bool {
	if !BoundingBox(centerLat, centerLon, radiusMeters).Contains(lat, lon) {
		return false
	}
	return Haversine(lat, lon, centerLat, centerLon) <= radiusMeters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
