// Package stitcher discovers cross-domain edges no single parser can see:
// an infrastructure resource whose name tokens match an environment
// variable consumed by application code, an infrastructure resource behind
// a config key, two data assets aliasing the same table. Matching is token
// overlap with a weak-token penalty; every emitted edge carries the score
// as its confidence.
package stitcher

import (
	"math"
	"sort"
	"strings"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// Tokenize lowercases name, splits on any of [_-./], and drops tokens
// shorter than two characters.
func Tokenize(name string) []string {
	return graphmodel.Tokenize(name)
}

// Normalize lowercases name and strips the same separators without
// splitting into tokens, for exact-name comparisons (e.g. DataAssetAliasing).
func Normalize(name string) string {
	lower := strings.ToLower(name)
	var sb strings.Builder
	for _, r := range lower {
		switch r {
		case '_', '-', '.', '/':
			continue
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// defaultStopTokens are ignored entirely when computing overlap, distinct
// from weak tokens (which are allowed to match but get their score
// penalized). Kept small and closed.
var defaultStopTokens = map[string]struct{}{
	"the": {},
	"db":  {},
	"api": {},
}

// MatchConfig controls the stitcher's rule selection and scoring
// thresholds, populated from the config file's stitcher section.
type MatchConfig struct {
	MinConfidence    float64
	MinOverlapTokens int
	WeakTokens       map[string]struct{}
	WeakTokenPenalty float64
	EnableRules      map[string]bool
}

// DefaultMatchConfig mirrors config.Default()'s stitcher section: exact
// name matches land at 1.0, a single shared significant token lands
// around 0.5.
func DefaultMatchConfig() MatchConfig {
	weak := make(map[string]struct{})
	for _, t := range []string{"id", "name", "key", "value", "data", "config", "env", "var"} {
		weak[t] = struct{}{}
	}
	return MatchConfig{
		MinConfidence:    0.3,
		MinOverlapTokens: 1,
		WeakTokens:       weak,
		WeakTokenPenalty: 0.5,
		EnableRules: map[string]bool{
			"env_to_infra":    true,
			"infra_to_config": true,
			"infra_to_infra":  true,
			"data_alias":      true,
		},
	}
}

// SignificantTokenOverlap computes the cosine-like overlap score between
// two token sets:
//
//	common = set(a) ∩ set(b), stop-tokens removed
//	score  = |common| / sqrt(|distinct(a)| * |distinct(b)|)
//	penalized if |common| == 1 and that token is in the weak list
//
// Returns the matched tokens (for edge metadata) and the score.
func SignificantTokenOverlap(a, b []string, cfg MatchConfig) (matched []string, score float64) {
	setA := toSignificantSet(a)
	setB := toSignificantSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return nil, 0
	}

	var common []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			common = append(common, t)
		}
	}
	if len(common) == 0 {
		return nil, 0
	}
	// The matched tokens land in edge metadata; sort them so two stitching
	// runs emit byte-identical edges, not just an identical edge set.
	sort.Strings(common)

	score = float64(len(common)) / math.Sqrt(float64(len(setA))*float64(len(setB)))

	if len(common) == 1 {
		if _, weak := cfg.WeakTokens[common[0]]; weak {
			score *= cfg.WeakTokenPenalty
		}
	}

	return common, score
}

func toSignificantSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if len(t) < 2 {
			continue
		}
		if _, stop := defaultStopTokens[t]; stop {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}
