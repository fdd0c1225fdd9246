package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

func newTestJSONStore(t *testing.T) *JSONStore {
	t.Helper()
	s, err := NewJSONStore(filepath.Join(t.TempDir(), "graph.json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONStore(t)

	require.NoError(t, s.SaveNodesBatch(ctx, []graphmodel.Node{
		{ID: "file://a.py", Name: "a.py", Type: graphmodel.NodeCodeFile, Path: "a.py"},
		{ID: "env:DB_HOST", Name: "DB_HOST", Type: graphmodel.NodeEnvVar, Path: "a.py", Tokens: []string{"db", "host"}},
	}))
	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "file://a.py", TargetID: "env:DB_HOST", Type: graphmodel.EdgeReads, Confidence: 1},
	}))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())

	n, ok := g.GetNode("env:DB_HOST")
	require.True(t, ok)
	assert.Equal(t, []string{"db", "host"}, n.Tokens)
}

func TestJSONStoreDanglingEdgeMaterializesPlaceholder(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONStore(t)

	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "file://a.py", TargetID: "env:NOT_YET", Type: graphmodel.EdgeReads, Confidence: 1},
	}))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	n, ok := g.GetNode("env:NOT_YET")
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeUnknown, n.Type)
}

func TestJSONStoreDeleteNodesByFileCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONStore(t)

	require.NoError(t, s.SaveNodesBatch(ctx, []graphmodel.Node{
		{ID: "file://a.py", Name: "a.py", Type: graphmodel.NodeCodeFile, Path: "a.py"},
		{ID: "env:X", Name: "X", Type: graphmodel.NodeEnvVar, Path: "a.py"},
		{ID: "file://b.py", Name: "b.py", Type: graphmodel.NodeCodeFile, Path: "b.py"},
	}))
	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "file://a.py", TargetID: "env:X", Type: graphmodel.EdgeReads, Confidence: 1},
		{SourceID: "file://b.py", TargetID: "env:X", Type: graphmodel.EdgeReads, Confidence: 1},
	}))

	require.NoError(t, s.DeleteNodesByFile(ctx, "a.py"))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	_, ok := g.GetNode("file://a.py")
	assert.False(t, ok)
	_, ok = g.GetNode("env:X")
	assert.False(t, ok, "env:X was produced by a.py and must go with it")

	// No surviving edge may touch a deleted node.
	for _, e := range g.AllEdges() {
		assert.NotEqual(t, "file://a.py", e.SourceID)
		assert.NotEqual(t, "env:X", e.TargetID)
	}
}

func TestJSONStoreQueryDescendantsImpactDirection(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONStore(t)

	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "infra:aws_db_instance.payments", TargetID: "env:PAYMENTS_DB", Type: graphmodel.EdgeProvides, Confidence: 0.9},
		{SourceID: "file://app.py", TargetID: "env:PAYMENTS_DB", Type: graphmodel.EdgeReads, Confidence: 1},
	}))

	impacted, err := s.QueryDescendants(ctx, "infra:aws_db_instance.payments", -1)
	require.NoError(t, err)
	assert.Contains(t, impacted, "env:PAYMENTS_DB")
	assert.Contains(t, impacted, "file://app.py")

	up, err := s.QueryAncestors(ctx, "file://app.py", -1)
	require.NoError(t, err)
	assert.Contains(t, up, "infra:aws_db_instance.payments")
}

func TestJSONStoreScanMetadataAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestJSONStore(t)

	require.NoError(t, s.SaveScanMetadata(ctx, ScanMetadata{Path: "a.py", FileHash: "abc", NodeCount: 2, EdgeCount: 1}))

	meta, err := s.GetAllScanMetadata(ctx)
	require.NoError(t, err)
	require.Contains(t, meta, "a.py")
	assert.Equal(t, "abc", meta["a.py"].FileHash)
	assert.False(t, meta["a.py"].LastScanned.IsZero())

	require.NoError(t, s.SaveNodesBatch(ctx, []graphmodel.Node{
		{ID: "env:X", Name: "X", Type: graphmodel.NodeEnvVar},
	}))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, stats.SchemaVersion)
	assert.Equal(t, 1, stats.TotalNodes)
	assert.Equal(t, 1, stats.TrackedFiles)
	assert.Equal(t, 1, stats.NodesByType["env_var"])

	require.NoError(t, s.Clear(ctx))
	stats, err = s.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalNodes)
	assert.Zero(t, stats.TrackedFiles)
}

func TestJSONStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.json")

	first, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, first.SaveNodesBatch(ctx, []graphmodel.Node{
		{ID: "env:X", Name: "X", Type: graphmodel.NodeEnvVar},
	}))
	require.NoError(t, first.Close())

	second, err := NewJSONStore(path)
	require.NoError(t, err)
	defer second.Close()

	g, err := second.LoadGraph(ctx)
	require.NoError(t, err)
	_, ok := g.GetNode("env:X")
	assert.True(t, ok)
}
