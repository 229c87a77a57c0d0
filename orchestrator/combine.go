package orchestrator

import (
	"sort"

	"github.com/contextcache/hybridmemory/fusion"
	"github.com/contextcache/hybridmemory/types"
)

// namedList is one weighted candidate list feeding combine: either a
// canonical Hybrid Fusion signal (keyword/semantic/graph) or the
// Orchestrator's own Immediate/Session merge (spec §4.7 step 3: "treating
// each as an additional normalized list with weight equal to the keyword
// weight divided by 2").
type namedList struct {
	name       string
	weight     float64
	candidates []fusion.Candidate
}

// combinedResult is one deduplicated, weighted-combine output entry, ready
// to be resolved into a ContextItem.
type combinedResult struct {
	id         string
	score      float64
	present    int
	components types.ComponentScores
}

// combine generalizes fusion.Fuse's normalize/weight-redistribute/combine/
// dedup/filter/sort/truncate pipeline to an arbitrary number of named lists,
// since the Orchestrator folds in Immediate/Session alongside the three
// canonical Hybrid Fusion signals (spec §4.7 step 3) where fusion.Fuse's
// contract is fixed at exactly keyword/semantic/graph (spec §4.6). Reuses
// fusion.Normalize for the per-list min-max step so both entry points share
// one normalization rule.
func combine(lists []namedList, minScore float64, maxResults int) []combinedResult {
	type active struct {
		name       string
		weight     float64
		normalized map[string]float64
	}

	var actives []active
	var totalWeight float64
	for _, l := range lists {
		if len(l.candidates) == 0 {
			continue
		}
		actives = append(actives, active{name: l.name, weight: l.weight, normalized: fusion.Normalize(l.candidates)})
		totalWeight += l.weight
	}
	if totalWeight <= 0 {
		return nil
	}

	agg := make(map[string]*combinedResult)
	order := make([]string, 0)
	for _, a := range actives {
		effective := a.weight / totalWeight
		for id, norm := range a.normalized {
			r, ok := agg[id]
			if !ok {
				r = &combinedResult{id: id}
				agg[id] = r
				order = append(order, id)
			}
			r.score += effective * norm
			r.present++
			v := norm
			switch a.name {
			case "keyword":
				r.components.Keyword = &v
			case "semantic":
				r.components.Semantic = &v
			case "graph":
				r.components.Graph = &v
			case "recency":
				r.components.Recency = &v
			}
		}
	}

	out := make([]combinedResult, 0, len(order))
	for _, id := range order {
		r := *agg[id]
		if r.score < minScore {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].present != out[j].present {
			return out[i].present > out[j].present
		}
		return out[i].id < out[j].id
	})

	cap := maxResults * 2
	if maxResults > 0 && len(out) > cap {
		out = out[:cap]
	}
	return out
}
