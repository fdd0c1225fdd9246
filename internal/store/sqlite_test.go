package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jnkn.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreNodeMergeOnUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.SaveNodesBatch(ctx, []graphmodel.Node{
		{ID: "env:DB_HOST", Name: "DB_HOST", Type: graphmodel.NodeEnvVar, Path: "a.py", Metadata: map[string]interface{}{"line": 3}},
	}))
	require.NoError(t, s.SaveNodesBatch(ctx, []graphmodel.Node{
		{ID: "env:DB_HOST", Name: "DB_HOST", Type: graphmodel.NodeEnvVar, Path: "b.py", Metadata: map[string]interface{}{"source": "dotenv"}},
	}))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	n, ok := g.GetNode("env:DB_HOST")
	require.True(t, ok)
	assert.Equal(t, "b.py", n.Path, "later path overwrites earlier")
	assert.Equal(t, "dotenv", n.Metadata["source"])
	assert.NotNil(t, n.Metadata["line"], "metadata merges shallowly")
}

func TestSQLiteStoreEdgeHigherConfidenceWins(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "infra:a", TargetID: "env:B", Type: graphmodel.EdgeProvides, Confidence: 0.5, Metadata: map[string]interface{}{"via": "stitcher"}},
	}))
	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "infra:a", TargetID: "env:B", Type: graphmodel.EdgeProvides, Confidence: 1.0},
	}))
	// A weaker resubmission must not downgrade.
	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "infra:a", TargetID: "env:B", Type: graphmodel.EdgeProvides, Confidence: 0.3},
	}))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	edges := g.OutEdges("infra:a").Collect()
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Confidence)
}

func TestSQLiteStoreDeleteCascadesToIncidentEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

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
	_, ok := g.GetNode("env:X")
	assert.False(t, ok)
	for _, e := range g.AllEdges() {
		assert.NotEqual(t, "env:X", e.TargetID)
		assert.NotEqual(t, "file://a.py", e.SourceID)
	}
}

func TestSQLiteStoreRecursiveDescendants(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	// config.py reads env:DB_HOST; app.py imports config.py; main.py
	// imports app.py. Impact of the env var climbs the import chain.
	require.NoError(t, s.SaveEdgesBatch(ctx, []graphmodel.Edge{
		{SourceID: "file://config.py", TargetID: "env:DB_HOST", Type: graphmodel.EdgeReads, Confidence: 1},
		{SourceID: "file://app.py", TargetID: "file://config.py", Type: graphmodel.EdgeImports, Confidence: 1},
		{SourceID: "file://main.py", TargetID: "file://app.py", Type: graphmodel.EdgeImports, Confidence: 1},
	}))

	impacted, err := s.QueryDescendants(ctx, "env:DB_HOST", -1)
	require.NoError(t, err)
	assert.Len(t, impacted, 3)
	assert.Contains(t, impacted, "file://config.py")
	assert.Contains(t, impacted, "file://app.py")
	assert.Contains(t, impacted, "file://main.py")

	bounded, err := s.QueryDescendants(ctx, "env:DB_HOST", 1)
	require.NoError(t, err)
	assert.Len(t, bounded, 1)
	assert.Contains(t, bounded, "file://config.py")

	up, err := s.QueryAncestors(ctx, "file://main.py", -1)
	require.NoError(t, err)
	assert.Contains(t, up, "env:DB_HOST")
}

func TestSQLiteStoreSchemaVersionStamped(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, stats.SchemaVersion)
	assert.Positive(t, stats.DBSizeBytes)
}
