package loader

import (
	"slideshow/internal/cache"
)

// Neighbors resolves the image that follows sourceID in folder order
type Neighbors interface {
	Adjacent(sourceID string) (string, bool)
}

// Hint carries what the navigation layer knows about the next step.
// An empty PredictedNext means the next target is unknown.
type Hint struct {
	PredictedNext string
	Sequential    bool
}

// PlannedTask is one entry of the warm set
type PlannedTask struct {
	Key  cache.RequestKey
	Tier cache.QualityTier
}

// Planner computes the ordered warm set for a newly requested key
type Planner struct {
	neighbors Neighbors
}

func NewPlanner(neighbors Neighbors) *Planner {
	return &Planner{neighbors: neighbors}
}

// Plan returns the warm set for key, highest priority first:
//
//  1. predicted next target, draft
//  2. predicted next target, final
//  3. current target in magnify mode, final
//  4. adjacent sibling, final, unless it is the predicted next
//  5. current target in every other fit mode, final
//
// Keys for other images use rotation 0 since navigation resets rotation.
// The requested key itself and duplicates are never planned.
func (p *Planner) Plan(key cache.RequestKey, hint Hint) []PlannedTask {
	seen := map[PlannedTask]bool{
		{Key: key, Tier: cache.TierDraft}: true,
		{Key: key, Tier: cache.TierFinal}: true,
	}
	var plan []PlannedTask
	add := func(k cache.RequestKey, tier cache.QualityTier) {
		t := PlannedTask{Key: k, Tier: tier}
		if seen[t] {
			return
		}
		seen[t] = true
		plan = append(plan, t)
	}
	other := func(sourceID string) cache.RequestKey {
		k := key.WithSource(sourceID)
		k.Rotation = 0
		return k
	}

	var adjacent string
	if p.neighbors != nil {
		if id, ok := p.neighbors.Adjacent(key.SourceID); ok && id != key.SourceID {
			adjacent = id
		}
	}

	next := hint.PredictedNext
	if next == "" && hint.Sequential {
		next = adjacent
	}
	if next != "" && next != key.SourceID {
		add(other(next), cache.TierDraft)
		add(other(next), cache.TierFinal)
	}

	add(key.WithFitMode(cache.FitModeMagnify), cache.TierFinal)

	if adjacent != "" && adjacent != next {
		add(other(adjacent), cache.TierFinal)
	}

	for _, mode := range cache.FitModes {
		add(key.WithFitMode(mode), cache.TierFinal)
	}
	return plan
}
