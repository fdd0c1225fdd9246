package engine

import (
	"sort"
	"strings"

	enginerrors "github.com/jnkn-io/jnkn/internal/errors"
	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// ResolveArtifact expands a user-supplied identifier to a node id. Matching
// is tiered: an exact id wins outright, then an exact name, then a unique
// prefix, then a unique substring. Multiple survivors are an ambiguity
// error that enumerates the candidates so the caller can requote.
func ResolveArtifact(g *graphmodel.Graph, input string) (string, error) {
	if _, ok := g.GetNode(input); ok {
		return input, nil
	}

	candidates := g.FindNodes(input)
	if len(candidates) == 0 {
		return "", enginerrors.New(enginerrors.KindAmbiguity, enginerrors.SeverityWarn,
			"no artifact matches "+input)
	}
	sort.Strings(candidates)
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	lower := strings.ToLower(input)

	var nameMatches []string
	for _, id := range candidates {
		if n, ok := g.GetNode(id); ok && strings.EqualFold(n.Name, input) {
			nameMatches = append(nameMatches, id)
		}
	}
	if len(nameMatches) == 1 {
		return nameMatches[0], nil
	}

	var prefixMatches []string
	for _, id := range candidates {
		if strings.HasPrefix(strings.ToLower(id), lower) {
			prefixMatches = append(prefixMatches, id)
		}
	}
	if len(prefixMatches) == 1 {
		return prefixMatches[0], nil
	}

	return "", enginerrors.AmbiguityError(input, candidates)
}
