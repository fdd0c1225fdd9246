package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnkn-io/jnkn/internal/config"
	"github.com/jnkn-io/jnkn/internal/diffimpact"
)

// newTestEngine runs against the JSON document backend so the end-to-end
// tests need no external services and no cgo.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Type = "json"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "graph.json")

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	e, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func TestBlastFromInfraReachesEnvConsumer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"app.py":  "import os\n\nhost = os.getenv(\"PAYMENT_DB_HOST\")\n",
		"main.tf": "resource \"aws_db_instance\" \"payment_db_host\" {\n  engine = \"postgres\"\n}\n",
	})

	stats, err := e.Scan(ctx, root, false)
	require.NoError(t, err)
	assert.Positive(t, stats.StitchedEdges, "token overlap should stitch infra to env")

	result, err := e.Blast(ctx, []string{"infra:aws_db_instance.payment_db_host"}, -1)
	require.NoError(t, err)
	assert.Contains(t, result.ImpactedArtifacts, "env:PAYMENT_DB_HOST")
	assert.Contains(t, result.ImpactedArtifacts, "file://app.py")

	// The stitched edge must carry a confident score for an exact name.
	g, err := e.store.LoadGraph(ctx)
	require.NoError(t, err)
	edges := g.OutEdges("infra:aws_db_instance.payment_db_host").Collect()
	require.NotEmpty(t, edges)
	assert.GreaterOrEqual(t, edges[0].Confidence, 0.8)
}

func TestBlastUnrelatedInfraStaysEmpty(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"app.py":  "import os\n\nhost = os.getenv(\"PAYMENT_DB_HOST\")\n",
		"main.tf": "resource \"aws_db_instance\" \"unrelated_name\" {}\n",
	})

	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	result, err := e.Blast(ctx, []string{"infra:aws_db_instance.unrelated_name"}, -1)
	require.NoError(t, err)
	assert.NotContains(t, result.ImpactedArtifacts, "env:PAYMENT_DB_HOST")
}

func TestBlastFromEnvClimbsImportChain(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"main.py":   "import app\n",
		"app.py":    "import config\n",
		"config.py": "import os\n\nDB = os.getenv(\"DB_HOST\")\n",
	})

	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	result, err := e.Blast(ctx, []string{"env:DB_HOST"}, -1)
	require.NoError(t, err)

	var files []string
	for _, id := range result.ImpactedArtifacts {
		if len(id) > 7 && id[:7] == "file://" {
			files = append(files, id)
		}
	}
	assert.ElementsMatch(t, []string{"file://config.py", "file://app.py", "file://main.py"}, files)
}

func TestBlastThroughDbtLineage(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"target/manifest.json": `{
			"nodes": {
				"model.shop.stg_customers": {
					"name": "stg_customers", "resource_type": "model",
					"depends_on": {"nodes": ["source.shop.raw.customers"]}
				},
				"model.shop.fct_orders": {
					"name": "fct_orders", "resource_type": "model",
					"depends_on": {"nodes": ["model.shop.stg_customers"]}
				}
			},
			"sources": {
				"source.shop.raw.customers": {"source_name": "raw", "name": "customers"}
			}
		}`,
	})

	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	result, err := e.Blast(ctx, []string{"data:source:raw.customers"}, -1)
	require.NoError(t, err)
	assert.Contains(t, result.ImpactedArtifacts, "data:model:stg_customers")
	assert.Contains(t, result.ImpactedArtifacts, "data:model:fct_orders")
	assert.Contains(t, result.Breakdown["data"], "data:model:fct_orders")
}

func TestUpstreamOfLineageOutput(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"events/etl.json": `{
			"eventType": "COMPLETE",
			"job": {"namespace": "default", "name": "etl"},
			"inputs": [{"namespace": "default", "name": "raw.orders"}],
			"outputs": [{"namespace": "default", "name": "curated.orders"}]
		}`,
	})

	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	result, err := e.Upstream(ctx, "data:default/curated.orders", -1)
	require.NoError(t, err)
	assert.Contains(t, result.ImpactedArtifacts, "job:default/etl")
	assert.Contains(t, result.ImpactedArtifacts, "data:default/raw.orders")
}

func TestIncrementalRescanDropsStaleEnvVar(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"app.py":  "import os\n\nflag = os.getenv(\"THE_FEATURE_FLAG\")\n",
		"util.py": "import os\n",
	})

	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	g, err := e.store.LoadGraph(ctx)
	require.NoError(t, err)
	_, ok := g.GetNode("env:THE_FEATURE_FLAG")
	require.True(t, ok)

	// Drop the env reference and rescan incrementally.
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("import os\n"), 0644))

	stats, err := e.Scan(ctx, root, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesSkipped, "util.py is unchanged")

	g, err = e.store.LoadGraph(ctx)
	require.NoError(t, err)
	_, ok = g.GetNode("env:THE_FEATURE_FLAG")
	assert.False(t, ok)
	for _, edge := range g.AllEdges() {
		assert.NotEqual(t, "env:THE_FEATURE_FLAG", edge.TargetID)
	}
}

func TestDiffReportsBlastAndRisk(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"main.py":   "import app\n",
		"app.py":    "import config\n",
		"config.py": "import os\n\nDB = os.getenv(\"DB_HOST\")\n",
	})

	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	report, err := e.Diff(ctx, "main", "feature", []diffimpact.ChangedFile{
		{Path: "config.py", Kind: diffimpact.ChangeModified},
	})
	require.NoError(t, err)

	assert.Equal(t, "main", report.Meta.BaseRef)
	assert.NotEmpty(t, report.Changes.ChangedArtifacts)
	assert.Contains(t, report.Changes.ImpactedArtifacts, "file://app.py")
	assert.Contains(t, report.Changes.ImpactedArtifacts, "file://main.py")
	assert.NotEmpty(t, report.ImpactedByCategory["code"])
}

func TestStatsAndClear(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{"app.py": "import os\n\nx = os.getenv(\"SOME_VALUE\")\n"})
	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.TotalNodes)

	require.NoError(t, e.Clear(ctx))
	stats, err = e.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalNodes)
}

func TestResolverExpandsSubstringsAndReportsAmbiguity(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := writeRepo(t, map[string]string{
		"app.py": "import os\n\na = os.getenv(\"WAREHOUSE_DIM_USERS\")\nb = os.getenv(\"WAREHOUSE_DIM_ORDERS\")\n",
	})
	_, err := e.Scan(ctx, root, false)
	require.NoError(t, err)

	// Unique substring resolves.
	result, err := e.Blast(ctx, []string{"DIM_USERS"}, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"env:WAREHOUSE_DIM_USERS"}, result.SourceArtifacts)

	// Shared prefix is ambiguous.
	_, err = e.Blast(ctx, []string{"WAREHOUSE_DIM"}, -1)
	require.Error(t, err)
}
