package ransac

import (
	"math"
)

// Estimate runs consensus estimation of est over data and returns the best
// model with its summary. On failure the zero M is returned.
//
// Each iteration draws a minimal sample, fits candidate models and scores
// every datum. After an improvement the required iteration count is
// recomputed from the best inlier ratio; the loop stops once it has run
// min(required, MaxIterations) iterations (and at least MinIterations).
// A degenerate sample still consumes an iteration.
func Estimate[D any, M any](est Estimator[D, M], typ Type, params Params, data []D) (M, Summary) {
	var best M
	summary := Summary{NumInputData: len(data)}

	s := est.SampleSize()
	if s <= 0 || len(data) < s {
		return best, summary
	}
	params = params.withDefaults()

	smp := newSampler(len(data), params.RNG)
	sample := make([]D, s)

	bestCost := math.Inf(1)
	bestInliers := 0
	found := false
	required := math.MaxInt

	iter := 0
	for ; iter < params.MaxIterations; iter++ {
		if iter >= params.MinIterations && iter >= required {
			break
		}
		for i, j := range smp.sample(s) {
			sample[i] = data[j]
		}
		models, ok := est.EstimateModel(sample)
		if !ok {
			continue
		}
		for _, m := range models {
			cost, inliers := score(est, typ, params.ErrorThreshold, data, m)
			if cost < bestCost {
				bestCost = cost
				bestInliers = inliers
				best = m
				found = true
				required = RequiredIterations(params.FailureProbability,
					float64(inliers)/float64(len(data)), s)
			}
		}
	}
	summary.NumIterations = iter

	if !found {
		var zero M
		return zero, summary
	}

	// The reported inliers come from the final model, not from whatever
	// count was cached during the search.
	inliers := make([]int, 0, bestInliers)
	for i, d := range data {
		if est.Error(d, best) < params.ErrorThreshold {
			inliers = append(inliers, i)
		}
	}
	ratio := float64(len(inliers)) / float64(len(data))
	if len(inliers) < s || ratio < params.MinInlierRatio {
		var zero M
		return zero, summary
	}

	summary.Success = true
	summary.Inliers = inliers
	summary.Confidence = confidence(ratio, s, iter)
	return best, summary
}

// score returns a cost (lower is better) and the inlier count of m.
func score[D any, M any](est Estimator[D, M], typ Type, threshold float64, data []D, m M) (float64, int) {
	inliers := 0
	cost := 0.0
	for _, d := range data {
		e := est.Error(d, m)
		if e < threshold {
			inliers++
		}
		if typ == MLESAC {
			cost += math.Min(e, threshold)
		}
	}
	if typ == RANSAC {
		cost = -float64(inliers)
	}
	return cost, inliers
}

// RequiredIterations returns N = log(p) / log(1 - w^s), the number of
// samples needed to draw at least one all-inlier sample with probability
// 1-p when the inlier ratio is w. It saturates at math.MaxInt.
func RequiredIterations(failureProbability, inlierRatio float64, sampleSize int) int {
	if inlierRatio <= 0 {
		return math.MaxInt
	}
	if inlierRatio >= 1 {
		return 0
	}
	denom := math.Log(1 - math.Pow(inlierRatio, float64(sampleSize)))
	if denom == 0 {
		return math.MaxInt
	}
	n := math.Ceil(math.Log(failureProbability) / denom)
	if n >= float64(math.MaxInt) || math.IsNaN(n) {
		return math.MaxInt
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

func confidence(inlierRatio float64, sampleSize, iterations int) float64 {
	pGood := math.Pow(inlierRatio, float64(sampleSize))
	return 1 - math.Pow(1-pGood, float64(iterations))
}
