package grading

import "math"

// BlockResult pairs a block's recorded score with its configured weight.
type BlockResult struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// AggregateScore computes the weighted mean of per-block scores, rounded to
// two decimal places with half-up rounding. When the total weight is zero the
// aggregate is defined as 0 so an all-zero-weight draft assignment cannot
// produce NaN.
func AggregateScore(results []BlockResult) float64 {
	var weightedSum, totalWeight float64
	for _, result := range results {
		weightedSum += result.Score * result.Weight
		totalWeight += result.Weight
	}

	if totalWeight == 0 {
		return 0
	}

	return roundHalfUp(weightedSum/totalWeight, 2)
}

// RoundToGranularity rounds a score to the nearest multiple of the block's
// granularity. Non-positive granularity leaves the score untouched.
func RoundToGranularity(score, granularity float64) float64 {
	if granularity <= 0 {
		return score
	}
	return math.Round(score/granularity) * granularity
}

// roundHalfUp rounds to the given number of decimals. The epsilon corrects
// binary representation artifacts so x.xx5 values round up.
func roundHalfUp(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Floor(value*factor+0.5+1e-9) / factor
}
