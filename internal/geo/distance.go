package geo

import (
	"fmt"
	"math"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

const earthRadiusKm = 6371.0

// DefaultRadiusKm is how far an incident may be from a canonical location
// and still be attributed to it by coordinates.
const DefaultRadiusKm = 15.0

// Distance is the great-circle distance in kilometres.
func Distance(a, b model.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Nearest resolves a point to the closest canonical location within
// radiusKm. Equal distances pick the smallest name.
func (r *Resolver) Nearest(lat, lon, radiusKm float64) Resolution {
	pt := model.Coordinates{Lat: lat, Lon: lon}
	var (
		best     Place
		bestDist = math.Inf(1)
	)
	for _, p := range r.Places() {
		d := Distance(pt, p.Coords)
		if d > radiusKm || d >= bestDist {
			continue
		}
		best, bestDist = p, d
	}
	if best.Name == "" {
		return Resolution{}
	}
	return Resolution{
		Place:  best,
		Method: model.MatchCoordinates,
		Term:   fmt.Sprintf("%.4f,%.4f", lat, lon),
	}
}
