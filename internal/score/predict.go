package score

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/wellness.report/internal/catalog"
)

// trimEpsilon keeps atanh finite for a normalized value of exactly 1.
const trimEpsilon = 1e-6

var errNoHistory = errors.New("prediction needs at least one finalized day")

// PredictNextDay extrapolates tomorrow's score. For every item the past
// resolved scores plus today's are normalized, mapped through atanh, fitted
// with an ordinary least-squares line over positions 0..k-1, evaluated at k
// and mapped back with tanh. The per-item predictions are combined with the
// normalized item weights.
//
// The result is not clamped; see Options.ClampPrediction.
func PredictNextDay(cat *catalog.Catalog, today DayRecord, history HistoryFunc) (float64, error) {
	var predicted float64
	for _, v := range today.Values {
		past := history(v.ItemID)
		if len(past) == 0 {
			return 0, errNoHistory
		}
		seq := append(append(make([]int, 0, len(past)+1), past...), v.Score)

		xs := make([]float64, len(seq))
		ys := make([]float64, len(seq))
		for i, s := range seq {
			n, err := cat.Normalize(v.ItemID, s)
			if err != nil {
				return 0, err
			}
			if n == 1.0 {
				n = 1 - trimEpsilon
			}
			xs[i] = float64(i)
			ys[i] = math.Atanh(n)
		}

		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		next := math.Tanh(alpha + beta*float64(len(seq)))
		predicted += next * cat.NormalizedWeight(v.ItemID)
	}
	return predicted, nil
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
