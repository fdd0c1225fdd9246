package graphmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodeMergesByID(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "env:DB_HOST", Name: "DB_HOST", Type: NodeEnvVar, Path: "a.py"})
	g.AddNode(Node{ID: "env:DB_HOST", Name: "DB_HOST", Type: NodeEnvVar, Path: "b.py", Metadata: map[string]interface{}{"line": 10}})

	n, ok := g.GetNode("env:DB_HOST")
	require.True(t, ok)
	assert.Equal(t, "b.py", n.Path, "later path should overwrite earlier")
	assert.Equal(t, 10, n.Metadata["line"])
	assert.Equal(t, 1, g.NodeCount())
}

func TestAddEdgeDangingTargetMaterializesUnknown(t *testing.T) {
	g := New()
	g.AddEdge(Edge{SourceID: "file://a.py", TargetID: "env:MISSING", Type: EdgeReads, Confidence: 1.0})

	n, ok := g.GetNode("env:MISSING")
	require.True(t, ok)
	assert.Equal(t, NodeUnknown, n.Type)
}

func TestAddEdgeHigherConfidenceWins(t *testing.T) {
	g := New()
	g.AddEdge(Edge{SourceID: "a", TargetID: "b", Type: EdgeDependsOn, Confidence: 0.4, Metadata: map[string]interface{}{"via": "stitcher"}})
	g.AddEdge(Edge{SourceID: "a", TargetID: "b", Type: EdgeDependsOn, Confidence: 0.9})

	edges := g.OutEdges("a").Collect()
	require.Len(t, edges, 1)
	assert.Equal(t, 0.9, edges[0].Confidence)
}

func TestDownstreamExcludesSelfAndRespectsDepth(t *testing.T) {
	g := New()
	// b imports a, c imports b: a change to a impacts b, then c. The
	// closing a->c import is a cycle the visited set must terminate.
	g.AddEdge(Edge{SourceID: "b", TargetID: "a", Type: EdgeImports, Confidence: 1})
	g.AddEdge(Edge{SourceID: "c", TargetID: "b", Type: EdgeImports, Confidence: 1})
	g.AddEdge(Edge{SourceID: "a", TargetID: "c", Type: EdgeImports, Confidence: 1})

	unbounded := g.Downstream("a", -1)
	assert.NotContains(t, unbounded, "a")
	assert.Contains(t, unbounded, "b")
	assert.Contains(t, unbounded, "c")

	bounded := g.Downstream("a", 1)
	assert.Contains(t, bounded, "b")
	assert.NotContains(t, bounded, "c")
}

func TestDownstreamFollowsProducerEdgesForward(t *testing.T) {
	g := New()
	// Infra provides the env var; a file reads it. Impact of the infra
	// resource flows through the env var into its reader.
	g.AddEdge(Edge{SourceID: "infra:aws_db_instance.payments", TargetID: "env:PAYMENTS_DB", Type: EdgeProvides, Confidence: 0.9})
	g.AddEdge(Edge{SourceID: "file://app.py", TargetID: "env:PAYMENTS_DB", Type: EdgeReads, Confidence: 1})

	impacted := g.Downstream("infra:aws_db_instance.payments", -1)
	assert.Contains(t, impacted, "env:PAYMENTS_DB")
	assert.Contains(t, impacted, "file://app.py")

	up := g.Upstream("file://app.py", -1)
	assert.Contains(t, up, "env:PAYMENTS_DB")
	assert.Contains(t, up, "infra:aws_db_instance.payments")
}

func TestMergeIdempotence(t *testing.T) {
	nodes := []Node{
		{ID: "file://a.py", Name: "a.py", Type: NodeCodeFile, Path: "a.py"},
		{ID: "env:X", Name: "X", Type: NodeEnvVar, Path: "a.py", Metadata: map[string]interface{}{"line": 3}},
	}
	edges := []Edge{
		{SourceID: "file://a.py", TargetID: "env:X", Type: EdgeReads, Confidence: 1},
	}

	apply := func(g *Graph) {
		for _, n := range nodes {
			g.AddNode(n)
		}
		for _, e := range edges {
			g.AddEdge(e)
		}
	}

	once := New()
	apply(once)
	twice := New()
	apply(twice)
	apply(twice)

	assert.Equal(t, once.ToDict(), twice.ToDict())
}

func TestRoundTripThroughDict(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "env:X", Name: "X", Type: NodeEnvVar, Tokens: []string{"x"}})
	g.AddEdge(Edge{SourceID: "file://a.py", TargetID: "env:X", Type: EdgeReads, Confidence: 1, Metadata: map[string]interface{}{"line": 1}})

	dict := g.ToDict()
	rebuilt := FromDict(dict["nodes"].([]Node), dict["edges"].([]Edge))

	assert.Equal(t, g.NodeCount(), rebuilt.NodeCount())
	assert.Equal(t, g.EdgeCount(), rebuilt.EdgeCount())
	n, ok := rebuilt.GetNode("env:X")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, n.Tokens)
}

func TestRemoveNodesByPathCascadesEdges(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "file://a.py", Type: NodeCodeFile, Path: "a.py"})
	g.AddNode(Node{ID: "entity:a.py:foo", Type: NodeCodeEntity, Path: "a.py"})
	g.AddEdge(Edge{SourceID: "file://a.py", TargetID: "entity:a.py:foo", Type: EdgeContains, Confidence: 1})
	g.AddEdge(Edge{SourceID: "entity:a.py:foo", TargetID: "env:X", Type: EdgeReads, Confidence: 1})

	g.RemoveNodesByPath("a.py")

	_, ok := g.GetNode("file://a.py")
	assert.False(t, ok)
	_, ok = g.GetNode("entity:a.py:foo")
	assert.False(t, ok)
	assert.Empty(t, g.InEdges("env:X").Collect())
}

func TestFindNodesSubstringSearch(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "data:model:warehouse.dim_users", Name: "dim_users", Type: NodeDataAsset})

	ids := g.FindNodes("dim_users")
	assert.Contains(t, ids, "data:model:warehouse.dim_users")
}
