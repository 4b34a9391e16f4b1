package score

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wellness.report/internal/catalog"
)

const (
	itemA = 1
	itemB = 2
)

// testCatalog is the two-item catalog used by the worked examples: A scores
// {0,4} weight 30, B scores {1,3} weight 70.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.ItemDefinition{
		{
			ID:         itemA,
			Name:       "a",
			Categories: []catalog.Category{{Label: "yes", Score: 0}, {Label: "no", Score: 4}},
			Weight:     30,
			Prior:      []float64{0.25, 0.75},
		},
		{
			ID:         itemB,
			Name:       "b",
			Categories: []catalog.Category{{Label: "low", Score: 1}, {Label: "high", Score: 3}},
			Weight:     70,
			Prior:      []float64{0.5, 0.5},
		},
	})
	require.NoError(t, err)
	return c
}

func newState(t *testing.T, opts Options) *ResidentState {
	t.Helper()
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	st, err := NewResidentState(testCatalog(t), opts)
	require.NoError(t, err)
	return st
}

func day(a, b float64) []Observation {
	return []Observation{{ItemID: itemA, Value: Value(a)}, {ItemID: itemB, Value: Value(b)}}
}

func TestUpdate_FullDayNoMissing(t *testing.T) {
	t.Parallel()
	st := newState(t, Options{})

	res, err := st.Update(day(4, 3))
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Score4Today)
	assert.Equal(t, 1.0, res.FillingRate)
	assert.Equal(t, res.Score4Today, res.Score4Tomorrow)
	assert.InDelta(t, 1.0, res.TrustIndex, 1e-12) // (1 + 6) / 7

	cur, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, []bool{true, true}, cur.Filled)
}

func TestUpdate_OneMissingEmptyHistory(t *testing.T) {
	t.Parallel()
	st := newState(t, Options{})

	res, err := st.Update([]Observation{{ItemID: itemA, Value: Value(4)}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.FillingRate)

	cur, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, []bool{true, false}, cur.Filled)
	b, ok := cur.ScoreOf(itemB)
	require.True(t, ok)
	assert.Contains(t, []int{1, 3}, b)
	assert.Equal(t, []int{itemB}, cur.Imputed())
}

func TestUpdate_MissingEquivalents(t *testing.T) {
	t.Parallel()

	cases := map[string][]Observation{
		"absent":   {{ItemID: itemA, Value: Value(0)}},
		"nil":      {{ItemID: itemA, Value: Value(0)}, {ItemID: itemB}},
		"negative": {{ItemID: itemA, Value: Value(0)}, {ItemID: itemB, Value: Value(-1)}},
	}
	for name, obs := range cases {
		obs := obs
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := newState(t, Options{})
			res, err := st.Update(obs)
			require.NoError(t, err)
			assert.Equal(t, 0.5, res.FillingRate)
		})
	}
}

func TestUpdate_EmptyObservationsImputesEverything(t *testing.T) {
	t.Parallel()
	st := newState(t, Options{})

	res, err := st.Update(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.FillingRate)
	assert.GreaterOrEqual(t, res.Score4Today, 0.0)
	assert.LessOrEqual(t, res.Score4Today, 1.0)
}

func TestUpdate_InvalidInputLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	st := newState(t, Options{})
	_, err := st.Update(day(4, 3))
	require.NoError(t, err)
	_, err = st.Update(day(0, 1))
	require.NoError(t, err)

	beforeHist := st.History()
	beforeRes, _ := st.Result()
	beforeCur, _ := st.Current()

	_, err = st.Update([]Observation{{ItemID: itemA, Value: Value(2)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDomain))
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, itemA, de.ItemID)

	afterRes, ok := st.Result()
	require.True(t, ok)
	afterCur, _ := st.Current()
	if diff := cmp.Diff(beforeHist, st.History()); diff != "" {
		t.Errorf("history changed (-before +after):\n%s", diff)
	}
	assert.Equal(t, beforeRes, afterRes)
	assert.Equal(t, beforeCur, afterCur)
	assert.Equal(t, 1, st.Len())
}

func TestUpdate_RejectsBadObservationSets(t *testing.T) {
	t.Parallel()

	cases := map[string][]Observation{
		"unknown item":  {{ItemID: 42, Value: Value(1)}},
		"duplicate id":  {{ItemID: itemA, Value: Value(0)}, {ItemID: itemA, Value: Value(4)}},
		"non integral":  {{ItemID: itemA, Value: Value(3.5)}},
		"not in domain": {{ItemID: itemB, Value: Value(2)}},
	}
	for name, obs := range cases {
		obs := obs
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := newState(t, Options{})
			_, err := st.Update(obs)
			assert.True(t, errors.Is(err, ErrDomain), "got %v", err)
			_, ok := st.Result()
			assert.False(t, ok)
		})
	}
}

func TestHistory_FlushAndEviction(t *testing.T) {
	t.Parallel()
	st := newState(t, Options{HistoryLength: 2})

	days := [][]Observation{day(0, 1), day(4, 1), day(4, 3), day(0, 3)}
	for i, obs := range days {
		_, err := st.Update(obs)
		require.NoError(t, err)
		assert.Equal(t, min(i, 2), st.Len(), "after update %d", i+1)
	}

	h := st.History()
	require.Len(t, h.Days, 2)
	require.Len(t, h.RealScores, 2)
	require.Len(t, h.PredScores, 2)
	require.Len(t, h.TrustIndex, 2)
	require.Len(t, h.FillingRate, 2)

	// first day evicted; second and third remain in order
	a0, _ := h.Days[0].ScoreOf(itemA)
	b0, _ := h.Days[0].ScoreOf(itemB)
	a1, _ := h.Days[1].ScoreOf(itemA)
	b1, _ := h.Days[1].ScoreOf(itemB)
	assert.Equal(t, []int{4, 1, 4, 3}, []int{a0, b0, a1, b1})
	assert.InDelta(t, 0.3, h.RealScores[0], 1e-12)
	assert.InDelta(t, 1.0, h.RealScores[1], 1e-12)
	assert.Equal(t, 2, st.Capacity())
}

func TestHistory_BoundInvariant(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(99))
	st := newState(t, Options{HistoryLength: 3, Rand: rng})

	for n := 1; n <= 10; n++ {
		var obs []Observation
		if rng.Intn(2) == 0 {
			obs = append(obs, Observation{ItemID: itemA, Value: Value(float64(4 * rng.Intn(2)))})
		}
		if rng.Intn(2) == 0 {
			obs = append(obs, Observation{ItemID: itemB, Value: Value(float64(1 + 2*rng.Intn(2)))})
		}
		res, err := st.Update(obs)
		require.NoError(t, err)

		h := st.History()
		want := min(n-1, 3)
		for _, l := range []int{len(h.Days), len(h.RealScores), len(h.PredScores), len(h.TrustIndex), len(h.FillingRate)} {
			assert.Equal(t, want, l)
		}
		assert.GreaterOrEqual(t, res.FillingRate, 0.0)
		assert.LessOrEqual(t, res.FillingRate, 1.0)
		assert.Equal(t, len(obs) == 2, res.FillingRate == 1.0)
	}
}

func TestTrustIndex(t *testing.T) {
	t.Parallel()

	t.Run("arithmetic", func(t *testing.T) {
		t.Parallel()
		st := newState(t, Options{})
		res, err := st.Update([]Observation{{ItemID: itemA, Value: Value(4)}})
		require.NoError(t, err)
		assert.InDelta(t, (0.5+6)/7, res.TrustIndex, 1e-12)

		res, err = st.Update(day(4, 3))
		require.NoError(t, err)
		assert.InDelta(t, (1.0+0.5)/7, res.TrustIndex, 1e-12)
	})

	t.Run("geometric", func(t *testing.T) {
		t.Parallel()
		st := newState(t, Options{TrustMode: TrustGeometric})
		res, err := st.Update([]Observation{{ItemID: itemA, Value: Value(4)}})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, res.TrustIndex, 1e-12)

		res, err = st.Update(day(4, 3))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, res.TrustIndex, 1e-12)

		res, err = st.Update([]Observation{{ItemID: itemB, Value: Value(3)}})
		require.NoError(t, err)
		assert.InDelta(t, 0.5*0.5*1.0, res.TrustIndex, 1e-12)
	})
}

func TestPrediction(t *testing.T) {
	t.Parallel()

	t.Run("first day equals same-day score", func(t *testing.T) {
		t.Parallel()
		st := newState(t, Options{})
		res, err := st.Update(day(0, 3))
		require.NoError(t, err)
		assert.Equal(t, res.Score4Today, res.Score4Tomorrow)
	})

	t.Run("steady top scores stay just below one", func(t *testing.T) {
		t.Parallel()
		st := newState(t, Options{})
		for i := 0; i < 4; i++ {
			_, err := st.Update(day(4, 3))
			require.NoError(t, err)
		}
		res, _ := st.Result()
		assert.InDelta(t, 1-trimEpsilon, res.Score4Tomorrow, 1e-9)
	})

	// Two points (1-eps, 0) in atanh space extrapolate to -atanh(1-eps).
	t.Run("steep decline is unclamped by default", func(t *testing.T) {
		t.Parallel()
		st := newState(t, Options{})
		_, err := st.Update(day(4, 3))
		require.NoError(t, err)
		res, err := st.Update(day(0, 1))
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Score4Today)
		assert.InDelta(t, -(1 - trimEpsilon), res.Score4Tomorrow, 1e-9)
	})

	t.Run("clamped prediction stays in unit range", func(t *testing.T) {
		t.Parallel()
		st := newState(t, Options{ClampPrediction: true})
		_, err := st.Update(day(4, 3))
		require.NoError(t, err)
		res, err := st.Update(day(0, 1))
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Score4Tomorrow)
	})

	t.Run("no history is an error", func(t *testing.T) {
		t.Parallel()
		c := testCatalog(t)
		rec := DayRecord{Values: []ItemScore{{itemA, 0}, {itemB, 1}}, Filled: []bool{true, true}}
		_, err := PredictNextDay(c, rec, func(int) []int { return nil })
		assert.Error(t, err)
	})
}

func TestReplayMatchesSequentialUpdates(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)
	days := [][]Observation{day(0, 1), nil, day(4, 3), {{ItemID: itemA, Value: Value(4)}}, day(0, 3)}

	replayed, err := Replay(c, Options{HistoryLength: 3, Rand: rand.New(rand.NewSource(5))}, days)
	require.NoError(t, err)

	seq, err := NewResidentState(c, Options{HistoryLength: 3, Rand: rand.New(rand.NewSource(5))})
	require.NoError(t, err)
	for _, obs := range days {
		_, err := seq.Update(obs)
		require.NoError(t, err)
	}

	if diff := cmp.Diff(seq.History(), replayed.History()); diff != "" {
		t.Errorf("history mismatch (-seq +replay):\n%s", diff)
	}
	r1, _ := seq.Result()
	r2, _ := replayed.Result()
	assert.Equal(t, r1, r2)

	_, err = Replay(c, Options{}, [][]Observation{day(0, 1), day(2, 1)})
	assert.True(t, errors.Is(err, ErrDomain))
}

func TestNewResidentState_Config(t *testing.T) {
	t.Parallel()
	c := testCatalog(t)

	for name, opts := range map[string]Options{
		"negative history": {HistoryLength: -1},
		"mean strategy":    {Strategy: StrategyMean},
		"unknown strategy": {Strategy: Strategy(42)},
		"unknown trust":    {TrustMode: TrustMode(9)},
	} {
		_, err := NewResidentState(c, opts)
		assert.True(t, errors.Is(err, ErrConfig), "%s: got %v", name, err)
	}

	_, err := NewResidentState(nil, Options{})
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestParseEnums(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyNearestMean, s)
	s, err = ParseStrategy("Mode")
	require.NoError(t, err)
	assert.Equal(t, StrategyMode, s)
	_, err = ParseStrategy("median")
	assert.True(t, errors.Is(err, ErrConfig))

	m, err := ParseTrustMode("geo")
	require.NoError(t, err)
	assert.Equal(t, TrustGeometric, m)
	_, err = ParseTrustMode("harmonic")
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestRing(t *testing.T) {
	t.Parallel()
	r := newRing[int](3)
	assert.Empty(t, r.Slice())
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Slice())
	assert.Equal(t, 3, r.At(0))
}

func TestValidate(t *testing.T) {
	cat := testCatalog(t)

	assert.NoError(t, Validate(cat, nil))
	assert.NoError(t, Validate(cat, []Observation{{ItemID: itemA, Value: Value(4)}, {ItemID: itemB}}))

	bad := [][]Observation{
		{{ItemID: itemA, Value: Value(1)}},
		{{ItemID: 9, Value: Value(0)}},
		{{ItemID: itemB, Value: Value(1)}, {ItemID: itemB}},
		{{ItemID: itemB, Value: Value(1.5)}},
	}
	for _, obs := range bad {
		err := Validate(cat, obs)
		assert.True(t, errors.Is(err, ErrDomain), "%v: %v", obs, err)
	}
}
