// Package sources turns raw sensor and care-journal readings into item
// observations, and merges observation sets coming from different sources.
package sources

import (
	"math"
	"strings"

	"github.com/banshee-data/wellness.report/internal/catalog"
	"github.com/banshee-data/wellness.report/internal/monitoring"
	"github.com/banshee-data/wellness.report/internal/score"
)

// Catalog item names the mappings write to.
const (
	ItemFever         = "fever"
	ItemFatigue       = "fatigue"
	ItemMobility      = "mobility"
	ItemStoolQuantity = "stool_quantity"
	ItemStoolTexture  = "stool_texture"
	ItemSleep         = "sleep"
	ItemAppetite      = "appetite"
	ItemHydration     = "hydration"
)

// Source names an observation origin as persisted.
type Source string

const (
	SourceForm    Source = "form"
	SourceSensor  Source = "sensor"
	SourceJournal Source = "journal"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceForm, SourceSensor, SourceJournal:
		return true
	}
	return false
}

// Reading kinds as persisted.
const (
	KindSleepScore   = "sleep_score"
	KindSteps        = "steps"
	KindLyingSeconds = "lying_seconds"
	KindTemperature  = "temperature"
	KindStool        = "stool"
	KindMeal         = "meal"
	KindHydration    = "hydration"
)

// ValidKind reports whether kind is one of the known reading kinds.
func ValidKind(kind string) bool {
	switch kind {
	case KindSleepScore, KindSteps, KindLyingSeconds, KindTemperature, KindStool, KindMeal, KindHydration:
		return true
	}
	return false
}

// Reading is one stored measurement or journal entry. Label carries the
// stool texture; it is empty for every other kind.
type Reading struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

// Texture of a stool journal entry.
type Texture string

const (
	TextureNormal Texture = "normal"
	TextureHard   Texture = "hard"
	TextureLiquid Texture = "liquid"
)

// Stool is one stool journal entry. Quantity runs 0 to 3.
type Stool struct {
	Texture  Texture
	Quantity int
}

// Readings gathers everything measured or noted for a resident on one day.
// Nil pointers and empty slices mean nothing was recorded.
type Readings struct {
	// SleepScore of the previous night, 0 to 100.
	SleepScore *float64
	Steps      *int
	// LyingSeconds spent in bed during the day.
	LyingSeconds *float64
	// Temperatures in degrees Celsius.
	Temperatures []float64
	Stools       []Stool
	// Meals holds the fraction of each meal eaten, 0 to 1.
	Meals []float64
	// Hydration holds glasses drunk per entry, 25 cL each.
	Hydration []int
}

// FromReadings folds stored readings into a Readings. Unknown kinds are
// logged and ignored.
func FromReadings(rows []Reading) Readings {
	var r Readings
	for _, row := range rows {
		switch row.Kind {
		case KindSleepScore:
			v := row.Value
			r.SleepScore = &v
		case KindSteps:
			v := int(row.Value)
			r.Steps = &v
		case KindLyingSeconds:
			v := row.Value
			r.LyingSeconds = &v
		case KindTemperature:
			r.Temperatures = append(r.Temperatures, row.Value)
		case KindStool:
			r.Stools = append(r.Stools, Stool{Texture: Texture(strings.ToLower(row.Label)), Quantity: int(row.Value)})
		case KindMeal:
			r.Meals = append(r.Meals, row.Value)
		case KindHydration:
			r.Hydration = append(r.Hydration, int(row.Value))
		default:
			monitoring.Logf("sources: ignoring reading of unknown kind %q", row.Kind)
		}
	}
	return r
}

// mapper resolves item names against a catalog and drops scores the
// catalog does not accept.
type mapper struct {
	cat *catalog.Catalog
	out []score.Observation
}

func (m *mapper) emit(name string, s int) {
	def, ok := m.cat.ByName(name)
	if !ok {
		monitoring.Debugf("sources: item %q is not part of the questionnaire", name)
		return
	}
	if !m.cat.Valid(def.ID, s) {
		monitoring.Debugf("sources: score %d is not a category of item %q", s, name)
		return
	}
	m.out = append(m.out, score.Observation{ItemID: def.ID, Value: score.Value(float64(s))})
}

// Sensors maps the automatic measurements: sleep score, step count and
// daytime lying time.
func Sensors(cat *catalog.Catalog, r Readings) []score.Observation {
	m := &mapper{cat: cat}

	if r.SleepScore != nil {
		switch s := *r.SleepScore; {
		case s > 70:
			m.emit(ItemSleep, 3)
		case s > 50:
			m.emit(ItemSleep, 2)
		default:
			m.emit(ItemSleep, 1)
		}
	}

	if r.Steps != nil {
		switch n := *r.Steps; {
		case n > 1000:
			m.emit(ItemMobility, 3)
		case n > 0:
			m.emit(ItemMobility, 1)
		default:
			m.emit(ItemMobility, 0)
		}
	}

	if r.LyingSeconds != nil {
		switch h := *r.LyingSeconds / 3600; {
		case h > 6:
			m.emit(ItemFatigue, 0)
		case h > 4:
			m.emit(ItemFatigue, 2)
		case h > 3:
			m.emit(ItemFatigue, 3)
		default:
			m.emit(ItemFatigue, 4)
		}
	}

	return m.out
}

// Journal maps care-journal entries: temperature, stools, meals and
// hydration.
func Journal(cat *catalog.Catalog, r Readings) []score.Observation {
	m := &mapper{cat: cat}

	if len(r.Temperatures) > 0 {
		peak := math.Inf(-1)
		for _, t := range r.Temperatures {
			peak = math.Max(peak, t)
		}
		if peak > 38 {
			m.emit(ItemFever, 0)
		} else {
			m.emit(ItemFever, 4)
		}
	}

	if n := len(r.Stools); n > 0 {
		texture, quantity := 0, 0
		for _, s := range r.Stools {
			switch s.Texture {
			case TextureLiquid:
				texture--
			case TextureHard:
				texture++
			}
			quantity += s.Quantity
		}
		m.emit(ItemStoolQuantity, int(math.RoundToEven(float64(quantity)/float64(n))))
		if math.RoundToEven(float64(texture)/float64(n)) != 0 {
			m.emit(ItemStoolTexture, 0)
		} else {
			m.emit(ItemStoolTexture, 4)
		}
	}

	if n := len(r.Meals); n > 0 {
		var sum float64
		for _, f := range r.Meals {
			sum += f
		}
		quarters := int(math.RoundToEven(sum / float64(n) * 4))
		if quarters < 2 {
			quarters = 0
		}
		m.emit(ItemAppetite, quarters)
	}

	if len(r.Hydration) > 0 {
		cl := 0
		for _, g := range r.Hydration {
			cl += 25 * g
		}
		switch {
		case cl < 75:
			m.emit(ItemHydration, 0)
		case cl < 150:
			m.emit(ItemHydration, 1)
		case cl < 200:
			m.emit(ItemHydration, 3)
		default:
			m.emit(ItemHydration, 4)
		}
	}

	return m.out
}

// Combine merges observation sets by priority. The form comes first and
// its answered items are never overridden. Each later set only fills items
// that are still absent or missing-equivalent. The result is in first-seen
// item order.
func Combine(form []score.Observation, others ...[]score.Observation) []score.Observation {
	index := make(map[int]int, len(form))
	out := make([]score.Observation, 0, len(form))
	for _, set := range append([][]score.Observation{form}, others...) {
		for _, o := range set {
			i, seen := index[o.ItemID]
			switch {
			case !seen:
				index[o.ItemID] = len(out)
				out = append(out, o)
			case out[i].Missing() && !o.Missing():
				out[i] = o
			}
		}
	}
	return out
}
