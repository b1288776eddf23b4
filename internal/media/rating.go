package media

import "math"

const (
	// RatingMin and RatingMax bound user ratings, matching the half-star
	// scale used by diary exports.
	RatingMin  = 0.5
	RatingMax  = 5.0
	ratingStep = 0.5
)

// ClampRating snaps a raw rating onto the half-star scale. Zero and negative
// values mean "unrated" and are returned as zero.
func ClampRating(value float64) float64 {
	if value <= 0 {
		return 0
	}
	snapped := math.Round(value/ratingStep) * ratingStep
	if snapped < RatingMin {
		return RatingMin
	}
	if snapped > RatingMax {
		return RatingMax
	}
	return snapped
}
