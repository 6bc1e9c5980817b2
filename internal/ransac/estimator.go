package ransac

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Estimator fits models of type M to data of type D.
type Estimator[D any, M any] interface {
	// SampleSize is the minimal number of data needed by EstimateModel.
	SampleSize() int

	// EstimateModel fits zero or more candidate models to a minimal sample.
	// It returns false for degenerate samples (duplicate points, parallel
	// rays, ...) instead of producing a garbage model.
	EstimateModel(sample []D) ([]M, bool)

	// Error is the residual of d under m, in the same units as
	// Params.ErrorThreshold.
	Error(d D, m M) float64
}

// Type selects how candidate models are scored.
type Type int

const (
	// RANSAC keeps the model with the most inliers.
	RANSAC Type = iota
	// MLESAC keeps the model with the lowest truncated residual cost, an
	// approximation of the negative log-likelihood under an
	// inlier/outlier mixture. It prefers tighter fits among models with
	// similar support.
	MLESAC
)

// String returns the lower-case name used in configuration files.
func (t Type) String() string {
	switch t {
	case RANSAC:
		return "ransac"
	case MLESAC:
		return "mlesac"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses a configuration name ("ransac", "mlesac").
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ransac":
		return RANSAC, nil
	case "mlesac", "msac":
		return MLESAC, nil
	default:
		return RANSAC, fmt.Errorf("unknown ransac type %q", s)
	}
}

// Default parameter values.
const (
	DefaultFailureProbability = 0.01
	DefaultMaxIterations      = 1000
)

// Params configures one Estimate call.
type Params struct {
	// RNG is the random source for sampling. It is used exclusively by the
	// call it is passed to. When nil a source is created from Seed.
	RNG  *rand.Rand
	Seed uint64

	// ErrorThreshold is the inlier residual bound (exclusive).
	ErrorThreshold float64

	// FailureProbability is 1 - confidence for the adaptive bound.
	FailureProbability float64

	// MinInlierRatio is the minimum inlier fraction for success.
	MinInlierRatio float64

	MinIterations int
	MaxIterations int
}

// DefaultParams returns parameters with the package defaults and the given
// error threshold.
func DefaultParams(errorThreshold float64) Params {
	return Params{
		ErrorThreshold:     errorThreshold,
		FailureProbability: DefaultFailureProbability,
		MaxIterations:      DefaultMaxIterations,
	}
}

func (p Params) withDefaults() Params {
	if p.FailureProbability <= 0 || p.FailureProbability >= 1 {
		p.FailureProbability = DefaultFailureProbability
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	if p.MinIterations < 0 {
		p.MinIterations = 0
	}
	if p.MinIterations > p.MaxIterations {
		p.MinIterations = p.MaxIterations
	}
	if p.RNG == nil {
		p.RNG = NewRNG(p.Seed)
	}
	return p
}

// Summary describes the outcome of an Estimate call.
type Summary struct {
	Success bool

	// Inliers indexes the input data whose residual under the returned
	// model is below the threshold. Empty when Success is false.
	Inliers []int

	NumInputData  int
	NumIterations int

	// Confidence is the probability that an all-inlier sample was drawn,
	// given the final inlier ratio and the iterations run.
	Confidence float64
}

// NewRNG returns a deterministic random source for seed.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// DeriveSeed mixes a base seed with a stream index so that fanned-out
// invocations (one per image pair, say) get independent but reproducible
// sources regardless of scheduling order.
func DeriveSeed(base uint64, stream uint64) uint64 {
	// splitmix64 finaliser
	z := base + (stream+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
