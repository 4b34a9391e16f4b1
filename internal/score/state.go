package score

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/wellness.report/internal/catalog"
)

// DefaultHistoryLength is the number of finalized days kept per resident.
const DefaultHistoryLength = 6

// Options configures a ResidentState. The zero value selects the defaults:
// six days of history, nearest-mean imputation, arithmetic trust index and
// an unclamped prediction.
type Options struct {
	HistoryLength   int
	Strategy        Strategy
	TrustMode       TrustMode
	ClampPrediction bool
	// Rand feeds prior sampling. Nil seeds a source from the wall clock.
	Rand *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.HistoryLength == 0 {
		o.HistoryLength = DefaultHistoryLength
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// Validate reports configuration problems as ConfigError.
func (o Options) Validate() error {
	if o.HistoryLength < 0 {
		return &ConfigError{Field: "history_length", Reason: fmt.Sprintf("must be positive, got %d", o.HistoryLength)}
	}
	switch o.Strategy {
	case StrategyNearestMean, StrategyPrior, StrategyMode:
	case StrategyMean:
		return &ConfigError{Field: "imputation", Reason: "mean does not yield category scores and cannot impute a day"}
	default:
		return &ConfigError{Field: "imputation", Reason: fmt.Sprintf("unknown imputation strategy %v", o.Strategy)}
	}
	switch o.TrustMode {
	case TrustArithmetic, TrustGeometric:
	default:
		return &ConfigError{Field: "trust_mode", Reason: fmt.Sprintf("unknown trust mode %v", o.TrustMode)}
	}
	return nil
}

// History is a copy of a resident's finalized days, oldest first. All
// slices have the same length.
type History struct {
	Days        []DayRecord `json:"days"`
	RealScores  []float64   `json:"real_scores"`
	PredScores  []float64   `json:"pred_scores"`
	TrustIndex  []float64   `json:"trust_index"`
	FillingRate []float64   `json:"filling_rate"`
}

// ResidentState is the rolling scoring state of one resident.
type ResidentState struct {
	cat  *catalog.Catalog
	opts Options
	imp  *Imputer

	computed bool
	current  DayRecord
	result   Result

	days        *ring[DayRecord]
	realScores  *ring[float64]
	predScores  *ring[float64]
	trustIndex  *ring[float64]
	fillingRate *ring[float64]
}

// NewResidentState returns an empty state. Invalid options fail here, not at
// the first update.
func NewResidentState(cat *catalog.Catalog, opts Options) (*ResidentState, error) {
	if cat == nil {
		return nil, &ConfigError{Field: "catalog", Reason: "nil catalog"}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	h := opts.HistoryLength
	return &ResidentState{
		cat:         cat,
		opts:        opts,
		imp:         NewImputer(cat, opts.Rand),
		days:        newRing[DayRecord](h),
		realScores:  newRing[float64](h),
		predScores:  newRing[float64](h),
		trustIndex:  newRing[float64](h),
		fillingRate: newRing[float64](h),
	}, nil
}

// Replay rebuilds a state by updating once per raw observation set, oldest
// first. It is how persisted days are turned back into state after a
// restart.
func Replay(cat *catalog.Catalog, opts Options, days [][]Observation) (*ResidentState, error) {
	st, err := NewResidentState(cat, opts)
	if err != nil {
		return nil, err
	}
	for i, obs := range days {
		if _, err := st.Update(obs); err != nil {
			return nil, fmt.Errorf("replay day %d: %w", i, err)
		}
	}
	return st, nil
}

// view is the history as it will look once the current day is flushed.
// Building it never mutates the state, so a failed update can be dropped.
type view struct {
	days        []DayRecord
	fillingRate []float64
}

func (s *ResidentState) pendingView() view {
	v := view{days: s.days.Slice(), fillingRate: s.fillingRate.Slice()}
	if s.computed {
		v.days = append(v.days, s.current)
		v.fillingRate = append(v.fillingRate, s.result.FillingRate)
		if over := len(v.days) - s.opts.HistoryLength; over > 0 {
			v.days = v.days[over:]
			v.fillingRate = v.fillingRate[over:]
		}
	}
	return v
}

func (v view) itemHistory(id int) []int {
	out := make([]int, 0, len(v.days))
	for _, d := range v.days {
		if s, ok := d.ScoreOf(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Update flushes the current day into history and computes a new current
// day from obs. An empty obs is treated as every item missing. On error the
// state is left exactly as it was before the call.
func (s *ResidentState) Update(obs []Observation) (Result, error) {
	if len(obs) == 0 {
		obs = AllMissing(s.cat)
	}

	v := s.pendingView()
	rec, today, err := ComputeDay(s.cat, s.imp, obs, v.itemHistory, s.opts.Strategy)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Score4Today: today,
		FillingRate: rec.FillingRate(),
	}
	res.TrustIndex = s.trust(res.FillingRate, v.fillingRate)

	if len(v.days) > 0 {
		res.Score4Tomorrow, err = PredictNextDay(s.cat, rec, v.itemHistory)
		if err != nil {
			return Result{}, err
		}
		if s.opts.ClampPrediction {
			res.Score4Tomorrow = clampUnit(res.Score4Tomorrow)
		}
	} else {
		res.Score4Tomorrow = res.Score4Today
	}

	s.flush()
	s.current = rec
	s.result = res
	s.computed = true
	return res, nil
}

func (s *ResidentState) trust(fillingRate float64, past []float64) float64 {
	h := float64(s.opts.HistoryLength)
	switch s.opts.TrustMode {
	case TrustGeometric:
		prior := 1.0
		if len(past) > 0 {
			prior = floats.Prod(past)
		}
		return fillingRate * prior
	default:
		prior := h
		if len(past) > 0 {
			prior = floats.Sum(past)
		}
		return (fillingRate + prior) / (h + 1)
	}
}

// flush moves the current day into the history buffers. It is a no-op
// before the first update.
func (s *ResidentState) flush() {
	if !s.computed {
		return
	}
	s.days.Push(s.current)
	s.realScores.Push(s.result.Score4Today)
	s.predScores.Push(s.result.Score4Tomorrow)
	s.trustIndex.Push(s.result.TrustIndex)
	s.fillingRate.Push(s.result.FillingRate)
	s.current = DayRecord{}
	s.result = Result{}
	s.computed = false
}

// Result returns the output record of the latest update.
func (s *ResidentState) Result() (Result, bool) {
	return s.result, s.computed
}

// Current returns a copy of the latest computed day.
func (s *ResidentState) Current() (DayRecord, bool) {
	if !s.computed {
		return DayRecord{}, false
	}
	return s.current.clone(), true
}

// History returns a copy of the finalized days.
func (s *ResidentState) History() History {
	days := s.days.Slice()
	for i := range days {
		days[i] = days[i].clone()
	}
	return History{
		Days:        days,
		RealScores:  s.realScores.Slice(),
		PredScores:  s.predScores.Slice(),
		TrustIndex:  s.trustIndex.Slice(),
		FillingRate: s.fillingRate.Slice(),
	}
}

// Len returns the number of finalized days held.
func (s *ResidentState) Len() int { return s.days.Len() }

// Capacity returns the history length H.
func (s *ResidentState) Capacity() int { return s.opts.HistoryLength }

// Options returns the effective options.
func (s *ResidentState) Options() Options { return s.opts }
