package score

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/wellness.report/internal/catalog"
)

// HistoryFunc returns the resolved scores of one item across past days,
// oldest first.
type HistoryFunc func(itemID int) []int

// Validate checks an observation set against the catalog without imputing
// anything. Observations for unknown items, repeated item ids and present
// values that are not one of their item's category scores fail with
// ErrDomain. Missing-equivalent values are always accepted.
func Validate(cat *catalog.Catalog, obs []Observation) error {
	_, err := index(cat, obs)
	return err
}

func index(cat *catalog.Catalog, obs []Observation) (map[int]Observation, error) {
	raw := make(map[int]Observation, len(obs))
	for _, o := range obs {
		if _, known := cat.Item(o.ItemID); !known {
			return nil, &DomainError{ItemID: o.ItemID, Value: valueOf(o), Reason: "unknown item"}
		}
		if _, dup := raw[o.ItemID]; dup {
			return nil, &DomainError{ItemID: o.ItemID, Value: valueOf(o), Reason: "duplicate observation"}
		}
		if !o.Missing() {
			v := *o.Value
			if v != math.Trunc(v) || !cat.Valid(o.ItemID, int(v)) {
				return nil, &DomainError{
					ItemID: o.ItemID,
					Value:  v,
					Reason: fmt.Sprintf("not a category score, want one of %v", cat.Scores(o.ItemID)),
				}
			}
		}
		raw[o.ItemID] = o
	}
	return raw, nil
}

// ComputeDay resolves one day's raw observations into a complete DayRecord
// and its normalized weighted score. Items are processed in ascending id
// order so prior draws are reproducible for a seeded source.
//
// The set is validated first, so a rejected day never consumes a prior
// draw; only missing-equivalent values are imputed.
func ComputeDay(cat *catalog.Catalog, imp *Imputer, obs []Observation, history HistoryFunc, s Strategy) (DayRecord, float64, error) {
	raw, err := index(cat, obs)
	if err != nil {
		return DayRecord{}, 0, err
	}

	ids := cat.IDs()
	rec := DayRecord{
		Values: make([]ItemScore, 0, len(ids)),
		Filled: make([]bool, 0, len(ids)),
	}
	weighted := make([]float64, 0, len(ids))

	for _, id := range ids {
		o, present := raw[id]
		var resolved int
		filled := present && !o.Missing()
		if filled {
			resolved = int(*o.Value)
		} else {
			v, err := imp.Impute(id, history(id), s)
			if err != nil {
				return DayRecord{}, 0, fmt.Errorf("impute item %d: %w", id, err)
			}
			resolved = int(v)
		}

		norm, err := cat.Normalize(id, resolved)
		if err != nil {
			return DayRecord{}, 0, err
		}
		weighted = append(weighted, norm*cat.Weight(id))
		rec.Values = append(rec.Values, ItemScore{ItemID: id, Score: resolved})
		rec.Filled = append(rec.Filled, filled)
	}

	return rec, floats.Sum(weighted) / cat.TotalWeight(), nil
}

// AllMissing returns an observation set marking every catalog item as
// missing.
func AllMissing(cat *catalog.Catalog) []Observation {
	ids := cat.IDs()
	out := make([]Observation, len(ids))
	for i, id := range ids {
		out[i] = Observation{ItemID: id}
	}
	return out
}

func valueOf(o Observation) float64 {
	if o.Value == nil {
		return math.NaN()
	}
	return *o.Value
}
