package ranking

import "math"

// DefaultK is the Elo K-factor.
const DefaultK = 32

// Expected is the logistic expected score of a player rated ra against rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// Calculate returns the new ratings for A and B given their actual scores.
func Calculate(ra, rb int, scoreA, scoreB float64, k int) (int, int) {
	ea := Expected(ra, rb)
	eb := Expected(rb, ra)
	na := int(math.Round(float64(ra) + float64(k)*(scoreA-ea)))
	nb := int(math.Round(float64(rb) + float64(k)*(scoreB-eb)))
	return na, nb
}
