// Package fusion implements Hybrid Fusion (spec §4.6): per-list min-max
// normalization, proportional weight redistribution for absent lists,
// weighted combination, dedup, filtering, and deterministic tie-breaking.
package fusion

import (
	"sort"

	"github.com/contextcache/hybridmemory/types"
)

// Candidate is one (id, raw_score) entry in a candidate list.
type Candidate struct {
	ID    string
	Score float64
}

// Weights are the default per-signal fusion weights (spec §6:
// fusion.semantic_weight, fusion.keyword_weight, fusion.graph_weight).
type Weights struct {
	Semantic float64
	Keyword  float64
	Graph    float64
}

// DefaultWeights returns the spec §6 defaults.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.5, Keyword: 0.3, Graph: 0.2}
}

// Input holds up to three candidate lists. A nil/empty list is absent.
type Input struct {
	Keyword  []Candidate
	Semantic []Candidate
	Graph    []Candidate
}

// Result is one fused, deduplicated output entry.
type Result struct {
	ID              string
	Score           float64
	ComponentScores types.ComponentScores
	PresentCount    int
}

// Normalize exposes the spec §4.6 step-1 min-max normalization for callers
// that need to fold an additional list (e.g. the Orchestrator's Immediate/
// Session results) into a weighted combine alongside Fuse's output.
func Normalize(list []Candidate) map[string]float64 {
	return normalize(list)
}

// normalize min-max scales scores into [0,1]; a single-entry or
// all-equal list maps every entry to 1.0 (spec §4.6 step 1).
func normalize(list []Candidate) map[string]float64 {
	out := make(map[string]float64, len(list))
	if len(list) == 0 {
		return out
	}
	min, max := list[0].Score, list[0].Score
	for _, c := range list {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	if len(list) <= 1 || min == max {
		for _, c := range list {
			out[c.ID] = 1.0
		}
		return out
	}
	span := max - min
	for _, c := range list {
		out[c.ID] = (c.Score - min) / span
	}
	return out
}

// Fuse implements spec §4.6 steps 1-6 over the canonical keyword/semantic/
// graph candidate lists.
func Fuse(input Input, weights Weights, minScore float64, maxResults int) []Result {
	type source struct {
		name       string
		weight     float64
		normalized map[string]float64
	}
	candidates := []source{
		{name: "keyword", weight: weights.Keyword, normalized: normalize(input.Keyword)},
		{name: "semantic", weight: weights.Semantic, normalized: normalize(input.Semantic)},
		{name: "graph", weight: weights.Graph, normalized: normalize(input.Graph)},
	}

	var totalActiveWeight float64
	var active []source
	for _, s := range candidates {
		if len(s.normalized) == 0 {
			continue
		}
		totalActiveWeight += s.weight
		active = append(active, s)
	}
	if totalActiveWeight == 0 {
		return nil
	}

	fused := make(map[string]*Result)
	order := make([]string, 0)
	for _, s := range active {
		effective := s.weight / totalActiveWeight
		for id, norm := range s.normalized {
			r, ok := fused[id]
			if !ok {
				r = &Result{ID: id}
				fused[id] = r
				order = append(order, id)
			}
			r.Score += effective * norm
			r.PresentCount++
			v := norm
			switch s.name {
			case "keyword":
				r.ComponentScores.Keyword = &v
			case "semantic":
				r.ComponentScores.Semantic = &v
			case "graph":
				r.ComponentScores.Graph = &v
			}
		}
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		r := *fused[id]
		if r.Score < minScore {
			continue
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].PresentCount != results[j].PresentCount {
			return results[i].PresentCount > results[j].PresentCount
		}
		return results[i].ID < results[j].ID
	})

	cap := maxResults * 2
	if maxResults > 0 && len(results) > cap {
		results = results[:cap]
	}
	return results
}
