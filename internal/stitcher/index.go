package stitcher

import (
	"sort"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// TokenIndex is a reverse index from token to node ids, rebuilt at the
// start of each stitching pass. It also keeps nodes bucketed by type so
// each rule only scans the node population it cares about.
type TokenIndex struct {
	byToken map[string][]string
	byType  map[graphmodel.NodeType][]graphmodel.Node
	byID    map[string]graphmodel.Node
}

// BuildTokenIndex scans every node in g and indexes its tokens.
func BuildTokenIndex(g *graphmodel.Graph) *TokenIndex {
	idx := &TokenIndex{
		byToken: make(map[string][]string),
		byType:  make(map[graphmodel.NodeType][]graphmodel.Node),
		byID:    make(map[string]graphmodel.Node),
	}
	for _, n := range g.AllNodes() {
		idx.byID[n.ID] = n
		idx.byType[n.Type] = append(idx.byType[n.Type], n)
		tokens := n.Tokens
		if len(tokens) == 0 {
			tokens = Tokenize(n.Name)
		}
		for _, tok := range tokens {
			idx.byToken[tok] = append(idx.byToken[tok], n.ID)
		}
	}
	return idx
}

// NodesOfType returns nodes of the given type in lexicographic id order,
// so rule output is identical across runs regardless of map iteration.
func (idx *TokenIndex) NodesOfType(t graphmodel.NodeType) []graphmodel.Node {
	nodes := append([]graphmodel.Node(nil), idx.byType[t]...)
	sortNodesByID(nodes)
	return nodes
}

// CandidatesForToken returns node ids that share the given token.
func (idx *TokenIndex) CandidatesForToken(token string) []string {
	return idx.byToken[token]
}

func sortNodesByID(nodes []graphmodel.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
