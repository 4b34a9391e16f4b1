package sources

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wellness.report/internal/catalog"
	"github.com/banshee-data/wellness.report/internal/score"
)

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }

// scores flattens observations into item name -> score for readable
// assertions.
func scores(t *testing.T, cat *catalog.Catalog, obs []score.Observation) map[string]int {
	t.Helper()
	out := make(map[string]int, len(obs))
	for _, o := range obs {
		def, ok := cat.Item(o.ItemID)
		require.True(t, ok)
		require.NotNil(t, o.Value)
		out[def.Name] = int(*o.Value)
	}
	return out
}

func TestSensors(t *testing.T) {
	cat := catalog.Default()

	tests := []struct {
		name string
		in   Readings
		want map[string]int
	}{
		{"nothing recorded", Readings{}, map[string]int{}},
		{"good night", Readings{SleepScore: ptrFloat(82)}, map[string]int{ItemSleep: 3}},
		{"average night", Readings{SleepScore: ptrFloat(70)}, map[string]int{ItemSleep: 2}},
		{"poor night", Readings{SleepScore: ptrFloat(50)}, map[string]int{ItemSleep: 1}},
		{"walking", Readings{Steps: ptrInt(1500)}, map[string]int{ItemMobility: 3}},
		{"few steps", Readings{Steps: ptrInt(1000)}, map[string]int{ItemMobility: 1}},
		{"no steps", Readings{Steps: ptrInt(0)}, map[string]int{ItemMobility: 0}},
		{"bedridden", Readings{LyingSeconds: ptrFloat(7 * 3600)}, map[string]int{ItemFatigue: 0}},
		{"long rest", Readings{LyingSeconds: ptrFloat(5 * 3600)}, map[string]int{ItemFatigue: 2}},
		{"nap", Readings{LyingSeconds: ptrFloat(3.5 * 3600)}, map[string]int{ItemFatigue: 3}},
		{"up all day", Readings{LyingSeconds: ptrFloat(600)}, map[string]int{ItemFatigue: 4}},
		{
			"all sensors",
			Readings{SleepScore: ptrFloat(60), Steps: ptrInt(20), LyingSeconds: ptrFloat(0)},
			map[string]int{ItemSleep: 2, ItemMobility: 1, ItemFatigue: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scores(t, cat, Sensors(cat, tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Sensors() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJournal(t *testing.T) {
	cat := catalog.Default()

	tests := []struct {
		name string
		in   Readings
		want map[string]int
	}{
		{"fever", Readings{Temperatures: []float64{37.2, 38.4}}, map[string]int{ItemFever: 0}},
		{"no fever", Readings{Temperatures: []float64{38.0, 36.9}}, map[string]int{ItemFever: 4}},
		{
			"normal stools",
			Readings{Stools: []Stool{{TextureNormal, 2}, {TextureNormal, 3}, {TextureHard, 1}}},
			map[string]int{ItemStoolQuantity: 2, ItemStoolTexture: 4},
		},
		{
			"liquid stools",
			Readings{Stools: []Stool{{TextureLiquid, 1}, {TextureLiquid, 2}}},
			map[string]int{ItemStoolQuantity: 2, ItemStoolTexture: 0},
		},
		{"ate well", Readings{Meals: []float64{1, 0.75, 1}}, map[string]int{ItemAppetite: 4}},
		{"ate half", Readings{Meals: []float64{0.5, 0.5}}, map[string]int{ItemAppetite: 2}},
		{"barely ate", Readings{Meals: []float64{0.25, 0}}, map[string]int{ItemAppetite: 0}},
		{"dehydrated", Readings{Hydration: []int{1, 1}}, map[string]int{ItemHydration: 0}},
		{"some water", Readings{Hydration: []int{2, 1}}, map[string]int{ItemHydration: 1}},
		{"most water", Readings{Hydration: []int{4, 2}}, map[string]int{ItemHydration: 3}},
		{"hydrated", Readings{Hydration: []int{4, 4}}, map[string]int{ItemHydration: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scores(t, cat, Journal(cat, tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Journal() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMappingSkipsItemsOutsideCatalog(t *testing.T) {
	cat, err := catalog.New([]catalog.ItemDefinition{{
		ID:         0,
		Name:       ItemSleep,
		Categories: []catalog.Category{{Label: "bad", Score: 1}, {Label: "good", Score: 3}},
		Weight:     1,
		Prior:      []float64{0.5, 0.5},
	}})
	require.NoError(t, err)

	got := Sensors(cat, Readings{SleepScore: ptrFloat(90), Steps: ptrInt(5000)})
	assert.Equal(t, map[string]int{ItemSleep: 3}, scores(t, cat, got))

	// 2 is not one of this catalog's sleep scores.
	assert.Empty(t, Sensors(cat, Readings{SleepScore: ptrFloat(60)}))
	assert.Empty(t, Journal(cat, Readings{Temperatures: []float64{39}}))
}

func TestFromReadings(t *testing.T) {
	got := FromReadings([]Reading{
		{Kind: KindSleepScore, Value: 64},
		{Kind: KindSteps, Value: 1200},
		{Kind: KindTemperature, Value: 37.5},
		{Kind: KindTemperature, Value: 38.5},
		{Kind: KindStool, Value: 2, Label: "Liquid"},
		{Kind: KindMeal, Value: 0.5},
		{Kind: KindHydration, Value: 3},
		{Kind: "heart_rate", Value: 72},
	})

	want := Readings{
		SleepScore:   ptrFloat(64),
		Steps:        ptrInt(1200),
		Temperatures: []float64{37.5, 38.5},
		Stools:       []Stool{{Texture: TextureLiquid, Quantity: 2}},
		Meals:        []float64{0.5},
		Hydration:    []int{3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromReadings() mismatch (-want +got):\n%s", diff)
	}
}

func TestCombine(t *testing.T) {
	form := []score.Observation{
		{ItemID: 0, Value: score.Value(4)},
		{ItemID: 8, Value: nil},
	}
	sensor := []score.Observation{
		{ItemID: 0, Value: score.Value(0)},
		{ItemID: 8, Value: score.Value(2)},
		{ItemID: 5, Value: score.Value(3)},
	}
	journal := []score.Observation{
		{ItemID: 5, Value: score.Value(0)},
		{ItemID: 2, Value: score.Value(4)},
	}

	got := Combine(form, sensor, journal)

	want := []score.Observation{
		{ItemID: 0, Value: score.Value(4)},
		{ItemID: 8, Value: score.Value(2)},
		{ItemID: 5, Value: score.Value(3)},
		{ItemID: 2, Value: score.Value(4)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Combine() mismatch (-want +got):\n%s", diff)
	}
}

func TestCombine_FormOnly(t *testing.T) {
	assert.Empty(t, Combine(nil))
	form := []score.Observation{{ItemID: 3, Value: score.Value(0)}}
	assert.Equal(t, form, Combine(form, nil, nil))
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourceForm.Valid())
	assert.True(t, SourceJournal.Valid())
	assert.False(t, Source("crm").Valid())
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(KindSleepScore))
	assert.True(t, ValidKind(KindHydration))
	assert.False(t, ValidKind("heart_rate"))
	assert.False(t, ValidKind(""))
}
