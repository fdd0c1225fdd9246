package stitcher

import (
	"testing"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeSplitsAndDropsShortTokens(t *testing.T) {
	assert.Equal(t, []string{"db", "host", "url"}, Tokenize("DB_HOST.url"))
	assert.Equal(t, []string{"warehouse", "dim", "users"}, Tokenize("warehouse/dim-users"))
}

func TestSignificantTokenOverlapExactMatchIsHigh(t *testing.T) {
	cfg := DefaultMatchConfig()
	matched, score := SignificantTokenOverlap(Tokenize("database_url"), Tokenize("database_url"), cfg)
	require.Len(t, matched, 2)
	assert.InDelta(t, 1.0, score, 0.001)
}

func TestSignificantTokenOverlapPenalizesWeakSingleToken(t *testing.T) {
	cfg := DefaultMatchConfig()
	_, weakScore := SignificantTokenOverlap([]string{"config"}, []string{"config"}, cfg)
	_, strongScore := SignificantTokenOverlap([]string{"warehouse"}, []string{"warehouse"}, cfg)
	assert.Less(t, weakScore, strongScore)
}

func TestEnvVarToInfraRuleDirectionIsInfraProvidesEnv(t *testing.T) {
	g := graphmodel.New()
	g.AddNode(graphmodel.Node{ID: "infra:aws_db_instance.primary", Name: "primary", Type: graphmodel.NodeInfraResource, Tokens: Tokenize("database_url_primary")})
	g.AddNode(graphmodel.Node{ID: "env:DATABASE_URL_PRIMARY", Name: "DATABASE_URL_PRIMARY", Type: graphmodel.NodeEnvVar, Tokens: Tokenize("DATABASE_URL_PRIMARY")})

	cfg := DefaultMatchConfig()
	s := New(cfg)
	edges := s.Stitch(g)

	require.Len(t, edges, 1)
	assert.Equal(t, "infra:aws_db_instance.primary", edges[0].SourceID)
	assert.Equal(t, "env:DATABASE_URL_PRIMARY", edges[0].TargetID)
	assert.Equal(t, graphmodel.EdgeProvides, edges[0].Type)
}

func TestInfraToInfraRuleHigherRankIsSource(t *testing.T) {
	g := graphmodel.New()
	g.AddNode(graphmodel.Node{
		ID: "infra:aws_vpc.main", Name: "main_network", Type: graphmodel.NodeInfraResource,
		Tokens:   Tokenize("main_network"),
		Metadata: map[string]interface{}{"resource_type": "vpc"},
	})
	g.AddNode(graphmodel.Node{
		ID: "infra:aws_subnet.main", Name: "main_network_subnet", Type: graphmodel.NodeInfraResource,
		Tokens:   Tokenize("main_network_subnet"),
		Metadata: map[string]interface{}{"resource_type": "subnet"},
	})

	cfg := DefaultMatchConfig()
	s := New(cfg)
	edges := s.Stitch(g)

	require.Len(t, edges, 1)
	assert.Equal(t, "infra:aws_vpc.main", edges[0].SourceID)
	assert.Equal(t, "infra:aws_subnet.main", edges[0].TargetID)
	assert.Equal(t, graphmodel.EdgeDependsOn, edges[0].Type)
}

func TestDataAssetAliasingAcrossNamespaces(t *testing.T) {
	g := graphmodel.New()
	g.AddNode(graphmodel.Node{ID: "data:raw/users", Name: "users", Type: graphmodel.NodeDataAsset})
	g.AddNode(graphmodel.Node{ID: "data:warehouse/users", Name: "users", Type: graphmodel.NodeDataAsset})

	cfg := DefaultMatchConfig()
	s := New(cfg)
	edges := s.Stitch(g)

	require.Len(t, edges, 1)
	assert.InDelta(t, 0.6, edges[0].Confidence, 0.001)
}

func TestStitchIsDeterministicAcrossRuns(t *testing.T) {
	build := func() *graphmodel.Graph {
		g := graphmodel.New()
		g.AddNode(graphmodel.Node{ID: "infra:aws_s3_bucket.logs", Name: "logs_bucket", Type: graphmodel.NodeInfraResource, Tokens: Tokenize("logs_bucket")})
		g.AddNode(graphmodel.Node{ID: "env:LOGS_BUCKET", Name: "LOGS_BUCKET", Type: graphmodel.NodeEnvVar, Tokens: Tokenize("LOGS_BUCKET")})
		return g
	}

	s := New(DefaultMatchConfig())
	first := s.Stitch(build())
	second := s.Stitch(build())
	assert.Equal(t, first, second)
}
