package stitcher

import (
	"sort"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// Stitcher runs the rule pipeline over a graph in declared order and
// returns the new edges it discovered. The only state shared between
// rules is the token index built once up front.
type Stitcher struct {
	rules []Rule
	cfg   MatchConfig
}

// New builds a Stitcher with the four standard rules, filtered by
// cfg.EnableRules.
func New(cfg MatchConfig) *Stitcher {
	all := []Rule{
		EnvVarToInfraRule{},
		InfraToConfigRule{},
		InfraToInfraRule{},
		DataAssetAliasingRule{},
	}
	var enabled []Rule
	for _, r := range all {
		if cfg.EnableRules == nil || cfg.EnableRules[r.Name()] {
			enabled = append(enabled, r)
		}
	}
	return &Stitcher{rules: enabled, cfg: cfg}
}

// Stitch applies every enabled rule in declared order and returns the
// deduplicated, confidence-filtered set of new edges. It does
// not mutate g; callers add the returned edges via g.AddEdge, which applies
// the standard merge-by-(src,tgt,type) rule — a stitcher edge with the same
// key as an edge a parser already observed directly never replaces it,
// because the parser's edge has confidence 1.0; on a 1.0 tie only the
// stitcher's metadata is merged into the parser's edge.
func (s *Stitcher) Stitch(g *graphmodel.Graph) []graphmodel.Edge {
	index := BuildTokenIndex(g)

	var all []graphmodel.Edge
	for _, rule := range s.rules {
		edges := rule.Apply(index, s.cfg)
		all = append(all, edges...)
	}

	return dedupAndFilter(all, s.cfg.MinConfidence)
}

// dedupAndFilter drops edges below MinConfidence and collapses duplicate
// (source,target,type) triples emitted by different rules, keeping the
// highest-confidence one — same collision rule as the graph's edge merge.
func dedupAndFilter(edges []graphmodel.Edge, minConfidence float64) []graphmodel.Edge {
	best := make(map[graphmodel.EdgeKey]graphmodel.Edge)
	for _, e := range edges {
		if e.Confidence < minConfidence {
			continue
		}
		key := e.Key()
		if existing, ok := best[key]; !ok || e.Confidence > existing.Confidence {
			best[key] = e
		}
	}

	out := make([]graphmodel.Edge, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		if out[i].TargetID != out[j].TargetID {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].Type < out[j].Type
	})
	return out
}
