package merge

import (
	"math"

	"github.com/hearthplan/hearthplan/internal/models"
)

// Similarity weights. Title carries the most signal; date and location
// disambiguate recurring events at the same venue. The threshold is a
// tunable: the requirement is that genuinely distinct events never merge,
// not any exact formula.
const (
	titleWeight    = 0.55
	dateWeight     = 0.25
	locationWeight = 0.20

	// Two events further apart than this never contribute date
	// similarity.
	maxDateSkewHours = 72.0
)

// Similarity scores how likely two canonical events describe the same
// real-world event (0.0 = different, 1.0 = identical).
func Similarity(a, b *models.CanonicalEvent) float64 {
	title := jaccardSimilarity(NormalizeTitle(a.Title), NormalizeTitle(b.Title))
	date := dateProximity(a, b)
	location := locationProximity(a.Location, b.Location)

	return title*titleWeight + date*dateWeight + location*locationWeight
}

// jaccardSimilarity computes the Jaccard coefficient over word sets.
func jaccardSimilarity(s1, s2 string) float64 {
	tokens1 := tokenize(s1)
	tokens2 := tokenize(s2)

	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 1.0
	}
	if len(tokens1) == 0 || len(tokens2) == 0 {
		return 0.0
	}

	set1 := make(map[string]bool, len(tokens1))
	set2 := make(map[string]bool, len(tokens2))
	for _, t := range tokens1 {
		set1[t] = true
	}
	for _, t := range tokens2 {
		set2[t] = true
	}

	intersection := 0
	for t := range set1 {
		if set2[t] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// dateProximity decays linearly with the gap between start times.
func dateProximity(a, b *models.CanonicalEvent) float64 {
	hours := math.Abs(a.StartTime.Sub(b.StartTime).Hours())
	if hours >= maxDateSkewHours {
		return 0.0
	}
	return 1.0 - hours/maxDateSkewHours
}

// locationProximity compares venues: geographic distance when both sides
// carry coordinates, address token overlap otherwise. Missing location
// data on either side is neutral rather than disqualifying.
func locationProximity(a, b models.Location) float64 {
	if a.HasCoordinates() && b.HasCoordinates() {
		km := haversineKm(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		switch {
		case km <= 0.5:
			return 1.0
		case km >= 10.0:
			return 0.0
		default:
			return 1.0 - (km-0.5)/9.5
		}
	}

	if a.Address == "" || b.Address == "" {
		return 0.5
	}

	if VenueToken(a) != "unknown" && VenueToken(a) == VenueToken(b) {
		return 1.0
	}

	return jaccardSimilarity(NormalizeTitle(a.Address), NormalizeTitle(b.Address))
}

// haversineKm returns the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
