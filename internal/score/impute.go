package score

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/wellness.report/internal/catalog"
)

// Imputer produces plausible values for missing items. Only StrategyPrior
// consumes randomness; every other strategy is deterministic in its input.
type Imputer struct {
	Catalog *catalog.Catalog
	Rand    *rand.Rand
}

// NewImputer returns an Imputer drawing prior samples from rng.
func NewImputer(cat *catalog.Catalog, rng *rand.Rand) *Imputer {
	return &Imputer{Catalog: cat, Rand: rng}
}

// Impute returns a value for item id given its resolved scores across past
// days, oldest first. Imputed past values are part of the history.
func (im *Imputer) Impute(id int, history []int, s Strategy) (float64, error) {
	switch s {
	case StrategyPrior:
		v, err := im.Catalog.PriorSample(id, im.Rand)
		return float64(v), err

	case StrategyMean:
		if len(history) == 0 {
			return im.Impute(id, history, StrategyPrior)
		}
		return stat.Mean(toFloats(history), nil), nil

	case StrategyNearestMean:
		mean, err := im.Impute(id, history, StrategyMean)
		if err != nil {
			return 0, err
		}
		return float64(nearest(im.Catalog.Scores(id), mean)), nil

	case StrategyMode:
		if len(history) == 0 {
			return im.Impute(id, history, StrategyPrior)
		}
		return float64(mode(history)), nil

	default:
		return 0, &ConfigError{Field: "imputation", Reason: fmt.Sprintf("unknown imputation strategy %v", s)}
	}
}

// nearest returns the candidate closest to target; the first one wins ties.
func nearest(candidates []int, target float64) int {
	best := candidates[0]
	bestDist := math.Abs(float64(best) - target)
	for _, c := range candidates[1:] {
		if d := math.Abs(float64(c) - target); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// mode returns the most frequent value; the smallest one wins ties.
func mode(values []int) int {
	counts := make(map[int]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := 0, -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

func toFloats(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
