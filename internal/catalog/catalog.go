// Package catalog holds the immutable registry of questionnaire and sensor
// items a resident is assessed on: their response categories, the integer
// score of each category, a relative weight and a prior distribution used
// when no history exists.
package catalog

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Kind tells whether an item is expected on every assessment. It is carried
// for the caregiver front end and never changes scoring.
type Kind string

const (
	KindMandatory Kind = "mandatory"
	KindOptional  Kind = "optional"
)

// Category is one discrete response option of an item.
type Category struct {
	Label string `json:"label" yaml:"label"`
	Score int    `json:"score" yaml:"score"`
}

// ItemDefinition describes one item of the catalog.
type ItemDefinition struct {
	ID          int        `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Categories  []Category `json:"categories" yaml:"categories"`
	Weight      float64    `json:"weight" yaml:"weight"`
	Prior       []float64  `json:"prior" yaml:"prior"`
	Kind        Kind       `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// priorTolerance bounds how far a prior distribution may sum away from 1.
const priorTolerance = 1e-6

// item is the validated, precomputed form of an ItemDefinition.
type item struct {
	def      ItemDefinition
	scores   []int
	valid    map[int]struct{}
	min, max int
}

// Catalog is a validated, read-only set of items. It is safe for concurrent
// use once built.
type Catalog struct {
	items       map[int]*item
	ids         []int
	byName      map[string]int
	totalWeight float64
}

// New validates items and builds a Catalog. Any malformed item is reported
// as a ConfigError; an item whose category scores are all equal cannot be
// normalized and is rejected here rather than at first use.
func New(items []ItemDefinition) (*Catalog, error) {
	if len(items) == 0 {
		return nil, configErrorf("items", "catalog has no items")
	}

	c := &Catalog{
		items:  make(map[int]*item, len(items)),
		byName: make(map[string]int, len(items)),
	}
	for _, def := range items {
		it, err := newItem(def)
		if err != nil {
			return nil, err
		}
		if _, dup := c.items[def.ID]; dup {
			return nil, configErrorf(fmt.Sprintf("item %d", def.ID), "duplicate item id")
		}
		c.items[def.ID] = it
		c.ids = append(c.ids, def.ID)
		if def.Name != "" {
			c.byName[def.Name] = def.ID
		}
		c.totalWeight += def.Weight
	}
	sort.Ints(c.ids)
	return c, nil
}

func newItem(def ItemDefinition) (*item, error) {
	field := fmt.Sprintf("item %d", def.ID)
	if len(def.Categories) == 0 {
		return nil, configErrorf(field, "empty category list")
	}
	if def.Weight <= 0 || math.IsNaN(def.Weight) || math.IsInf(def.Weight, 0) {
		return nil, configErrorf(field, "weight must be positive, got %v", def.Weight)
	}
	if len(def.Prior) != len(def.Categories) {
		return nil, configErrorf(field, "prior has %d entries for %d categories", len(def.Prior), len(def.Categories))
	}
	var sum float64
	for _, p := range def.Prior {
		if p < 0 || math.IsNaN(p) {
			return nil, configErrorf(field, "prior probabilities must be non-negative, got %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > priorTolerance {
		return nil, configErrorf(field, "prior sums to %v, want 1", sum)
	}
	switch def.Kind {
	case "", KindMandatory, KindOptional:
	default:
		return nil, configErrorf(field, "unknown kind %q", def.Kind)
	}

	it := &item{
		def:    def,
		scores: make([]int, len(def.Categories)),
		valid:  make(map[int]struct{}, len(def.Categories)),
		min:    def.Categories[0].Score,
		max:    def.Categories[0].Score,
	}
	for i, cat := range def.Categories {
		it.scores[i] = cat.Score
		it.valid[cat.Score] = struct{}{}
		if cat.Score < it.min {
			it.min = cat.Score
		}
		if cat.Score > it.max {
			it.max = cat.Score
		}
	}
	if it.min == it.max {
		return nil, fmt.Errorf("%w: %w", ErrConfig, &DomainError{
			ItemID: def.ID,
			Value:  float64(it.min),
			Reason: "degenerate category range, all scores are equal",
		})
	}
	return it, nil
}

func (c *Catalog) lookup(id int) (*item, error) {
	it, ok := c.items[id]
	if !ok {
		return nil, &DomainError{ItemID: id, Value: math.NaN(), Reason: "unknown item"}
	}
	return it, nil
}

// Len returns the number of items.
func (c *Catalog) Len() int { return len(c.ids) }

// IDs returns the item ids in ascending order.
func (c *Catalog) IDs() []int {
	out := make([]int, len(c.ids))
	copy(out, c.ids)
	return out
}

// Item returns the definition for id.
func (c *Catalog) Item(id int) (ItemDefinition, bool) {
	it, ok := c.items[id]
	if !ok {
		return ItemDefinition{}, false
	}
	return it.def, true
}

// ByName returns the definition of the item called name.
func (c *Catalog) ByName(name string) (ItemDefinition, bool) {
	id, ok := c.byName[name]
	if !ok {
		return ItemDefinition{}, false
	}
	return c.Item(id)
}

// Items returns every definition in ascending id order.
func (c *Catalog) Items() []ItemDefinition {
	out := make([]ItemDefinition, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.items[id].def)
	}
	return out
}

// Scores returns the item's category scores in catalog order. Repeated
// scores are kept so callers can break ties by first occurrence.
func (c *Catalog) Scores(id int) []int {
	it, ok := c.items[id]
	if !ok {
		return nil
	}
	out := make([]int, len(it.scores))
	copy(out, it.scores)
	return out
}

// Valid reports whether score is one of the item's category scores.
func (c *Catalog) Valid(id, score int) bool {
	it, ok := c.items[id]
	if !ok {
		return false
	}
	_, ok = it.valid[score]
	return ok
}

// Normalize maps a category score onto [0,1]: the lowest category score of
// the item maps to 0 and the highest to 1.
func (c *Catalog) Normalize(id, score int) (float64, error) {
	it, err := c.lookup(id)
	if err != nil {
		return 0, err
	}
	if _, ok := it.valid[score]; !ok {
		return 0, &DomainError{
			ItemID: id,
			Value:  float64(score),
			Reason: fmt.Sprintf("not a category score of %q, want one of %v", it.def.Name, it.scores),
		}
	}
	if it.max == it.min {
		return 0, &DomainError{ItemID: id, Value: float64(score), Reason: "degenerate category range"}
	}
	return float64(score-it.min) / float64(it.max-it.min), nil
}

// Weight returns the unnormalized weight of the item, or 0 if unknown.
func (c *Catalog) Weight(id int) float64 {
	it, ok := c.items[id]
	if !ok {
		return 0
	}
	return it.def.Weight
}

// TotalWeight returns the sum of all item weights.
func (c *Catalog) TotalWeight() float64 { return c.totalWeight }

// NormalizedWeight returns the item weight divided by the total weight.
func (c *Catalog) NormalizedWeight(id int) float64 {
	return c.Weight(id) / c.totalWeight
}

// PriorSample draws a category score from the item's prior distribution.
func (c *Catalog) PriorSample(id int, rng *rand.Rand) (int, error) {
	it, err := c.lookup(id)
	if err != nil {
		return 0, err
	}
	u := rng.Float64()
	var cum float64
	last := -1
	for i, p := range it.def.Prior {
		if p == 0 {
			continue
		}
		last = i
		cum += p
		if u < cum {
			return it.scores[i], nil
		}
	}
	// Rounding can leave cum a hair under 1.
	return it.scores[last], nil
}
