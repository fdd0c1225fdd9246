package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// parseFile runs one parser over an in-memory file and collects its stream.
func parseFile(t *testing.T, p pipeline.Parser, path, content string) ([]graphmodel.Node, []graphmodel.Edge) {
	t.Helper()
	require.True(t, p.CanParse(path), "%s should claim %s", p.Name(), path)

	ectx := pipeline.NewExtractionContext(path, []byte(content), pipeline.DetectLanguage(path), pipeline.HashContent([]byte(content)))
	var nodes []graphmodel.Node
	var edges []graphmodel.Edge
	p.Parse(context.Background(), ectx, func(em pipeline.Emission) bool {
		switch {
		case em.Node != nil:
			nodes = append(nodes, *em.Node)
		case em.Edge != nil:
			edges = append(edges, *em.Edge)
		}
		return true
	})
	return nodes, edges
}

func nodeByID(nodes []graphmodel.Node, id string) (graphmodel.Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return graphmodel.Node{}, false
}

func hasEdge(edges []graphmodel.Edge, source, target string, edgeType graphmodel.EdgeType) bool {
	for _, e := range edges {
		if e.SourceID == source && e.TargetID == target && e.Type == edgeType {
			return true
		}
	}
	return false
}

func TestPythonParserExtractsEnvVars(t *testing.T) {
	content := `import os
from dotenv import dotenv_values

DB_HOST = os.getenv("PAYMENT_DB_HOST")
TIMEOUT = os.environ.get("REQUEST_TIMEOUT", "30")
config = dotenv_values()
secret = config["API_SECRET"]
`
	nodes, edges := parseFile(t, NewPythonParser(), "app.py", content)

	file, ok := nodeByID(nodes, "file://app.py")
	require.True(t, ok, "file node must be emitted first")
	assert.Equal(t, graphmodel.NodeCodeFile, file.Type)
	assert.Equal(t, "python", file.Language)
	assert.NotEmpty(t, file.FileHash)

	env, ok := nodeByID(nodes, "env:PAYMENT_DB_HOST")
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeEnvVar, env.Type)
	assert.Equal(t, "app.py", env.Path)
	assert.Equal(t, []string{"payment", "db", "host"}, env.Tokens)

	_, ok = nodeByID(nodes, "env:REQUEST_TIMEOUT")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "env:API_SECRET")
	assert.True(t, ok)

	assert.True(t, hasEdge(edges, "file://app.py", "env:PAYMENT_DB_HOST", graphmodel.EdgeReads))
}

func TestPythonParserHeuristicOnlyClaimsUnseen(t *testing.T) {
	content := `import os

DATABASE_URL = os.getenv("DATABASE_URL")
CACHE_URL = settings.get("cache")
UNRELATED = compute()
`
	nodes, _ := parseFile(t, NewPythonParser(), "settings.py", content)

	// DATABASE_URL is claimed by the stdlib extractor at full strength.
	env, ok := nodeByID(nodes, "env:DATABASE_URL")
	require.True(t, ok)
	assert.NotEqual(t, "heuristic", env.Metadata["source"])

	// CACHE_URL only matches the env-like-assignment heuristic.
	heuristic, ok := nodeByID(nodes, "env:CACHE_URL")
	require.True(t, ok)
	assert.Equal(t, "heuristic", heuristic.Metadata["source"])
	assert.Equal(t, 0.7, heuristic.Metadata["confidence"])

	// UNRELATED has no env-like suffix and no env context.
	_, ok = nodeByID(nodes, "env:UNRELATED")
	assert.False(t, ok)
}

func TestGoParserExtractsDefinitionsImportsAndConfig(t *testing.T) {
	content := `package server

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Server struct{}

func (s *Server) Start() error {
	addr := os.Getenv("LISTEN_ADDR")
	timeout := viper.GetString("server.timeout")
	fmt.Println(addr, timeout)
	return nil
}

func New() *Server { return &Server{} }
`
	nodes, edges := parseFile(t, NewGoParser(), "server.go", content)

	_, ok := nodeByID(nodes, "entity:server.go:Server")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "entity:server.go:Server.Start")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "entity:server.go:New")
	assert.True(t, ok)

	_, ok = nodeByID(nodes, "env:LISTEN_ADDR")
	assert.True(t, ok)

	cfg, ok := nodeByID(nodes, "config:viper:server.timeout")
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeConfigKey, cfg.Type)

	assert.True(t, hasEdge(edges, "file://server.go", "file://github.com/spf13/viper", graphmodel.EdgeImports))
}

func TestJavaParserExtractsTypesAndEnvReads(t *testing.T) {
	content := `package com.example;

import com.example.util.Clock;

public class PaymentService {
    @Value("${payment.gateway.url}")
    private String gatewayUrl;

    public void charge() {
        String key = System.getenv("STRIPE_API_KEY");
    }
}
`
	nodes, edges := parseFile(t, NewJavaParser(), "PaymentService.java", content)

	_, ok := nodeByID(nodes, "entity:PaymentService.java:PaymentService")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "env:STRIPE_API_KEY")
	assert.True(t, ok)

	cfg, ok := nodeByID(nodes, "config:spring:payment.gateway.url")
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeConfigKey, cfg.Type)

	assert.True(t, hasEdge(edges, "file://PaymentService.java", "file://com/example/util/Clock.java", graphmodel.EdgeImports))
}

func TestTerraformParserExtractsBlocks(t *testing.T) {
	content := `resource "aws_db_instance" "payment_db_host" {
  engine = "postgres"
}

data "aws_ami" "base_image" {
  most_recent = true
}

output "db_endpoint" {
  value = aws_db_instance.payment_db_host.endpoint
}

locals {
  env_name = "prod"
}

module "networking" {
  source = "./modules/networking"
}
`
	nodes, edges := parseFile(t, NewTerraformParser(), "main.tf", content)

	infra, ok := nodeByID(nodes, "infra:aws_db_instance.payment_db_host")
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeInfraResource, infra.Type)
	assert.Equal(t, "aws_db_instance", infra.Metadata["resource_type"])
	assert.Equal(t, []string{"payment", "db", "host"}, infra.Tokens)

	_, ok = nodeByID(nodes, "infra:data.aws_ami.base_image")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "infra:output:db_endpoint")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "infra:local.env_name")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "infra:module.networking")
	assert.True(t, ok)

	assert.True(t, hasEdge(edges, "file://main.tf", "infra:aws_db_instance.payment_db_host", graphmodel.EdgeProvisions))
	assert.True(t, hasEdge(edges, "file://main.tf", "infra:output:db_endpoint", graphmodel.EdgeProvides))
}

func TestTerraformPlanParserWalksChildModules(t *testing.T) {
	content := `{
  "planned_values": {
    "root_module": {
      "resources": [
        {"address": "aws_s3_bucket.logs", "mode": "managed", "type": "aws_s3_bucket", "name": "logs"}
      ],
      "child_modules": [
        {"resources": [
          {"address": "module.net.aws_vpc.main", "mode": "managed", "type": "aws_vpc", "name": "main"}
        ]}
      ]
    }
  }
}`
	nodes, edges := parseFile(t, NewTerraformPlanParser(), "tfplan.json", content)

	_, ok := nodeByID(nodes, "infra:aws_s3_bucket.logs")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "infra:aws_vpc.main")
	assert.True(t, ok)
	assert.True(t, hasEdge(edges, "file://tfplan.json", "infra:aws_vpc.main", graphmodel.EdgeProvisions))
}

func TestDbtSQLParserRefsAndSources(t *testing.T) {
	content := `{{ config(materialized='table') }}

select *
from {{ ref('stg_customers') }}
join {{ source('raw', 'orders') }} using (customer_id)
`
	nodes, edges := parseFile(t, NewDbtSQLParser(), "models/fct_orders.sql", content)

	model, ok := nodeByID(nodes, "data:model:fct_orders")
	require.True(t, ok)
	assert.Equal(t, "table", model.Metadata["materialized"])

	assert.True(t, hasEdge(edges, "data:model:fct_orders", "data:model:stg_customers", graphmodel.EdgeDependsOn))
	assert.True(t, hasEdge(edges, "data:model:fct_orders", "data:source:raw.orders", graphmodel.EdgeReads))
	assert.True(t, hasEdge(edges, "file://models/fct_orders.sql", "data:model:fct_orders", graphmodel.EdgeContains))
}

func TestDbtManifestParserBuildsLineage(t *testing.T) {
	content := `{
  "nodes": {
    "model.shop.stg_customers": {
      "name": "stg_customers", "resource_type": "model",
      "depends_on": {"nodes": ["source.shop.raw.customers"]}
    },
    "model.shop.fct_orders": {
      "name": "fct_orders", "resource_type": "model",
      "config": {"materialized": "table"},
      "depends_on": {"nodes": ["model.shop.stg_customers"]}
    }
  },
  "sources": {
    "source.shop.raw.customers": {"source_name": "raw", "name": "customers"}
  }
}`
	nodes, edges := parseFile(t, NewDbtManifestParser(), "target/manifest.json", content)

	_, ok := nodeByID(nodes, "data:model:stg_customers")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "data:source:raw.customers")
	assert.True(t, ok)

	assert.True(t, hasEdge(edges, "data:model:stg_customers", "data:source:raw.customers", graphmodel.EdgeDependsOn))
	assert.True(t, hasEdge(edges, "data:model:fct_orders", "data:model:stg_customers", graphmodel.EdgeDependsOn))
}

func TestOpenLineageParserJobsAndDatasets(t *testing.T) {
	content := `{
  "eventType": "COMPLETE",
  "eventTime": "2024-04-01T00:00:00Z",
  "run": {"runId": "r-1"},
  "job": {"namespace": "default", "name": "etl"},
  "inputs": [{"namespace": "default", "name": "raw.orders"}],
  "outputs": [{"namespace": "default", "name": "curated.orders"}]
}`
	nodes, edges := parseFile(t, NewOpenLineageParser(), "events/etl.json", content)

	job, ok := nodeByID(nodes, "job:default/etl")
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeJob, job.Type)

	_, ok = nodeByID(nodes, "data:default/raw.orders")
	assert.True(t, ok)
	_, ok = nodeByID(nodes, "data:default/curated.orders")
	assert.True(t, ok)

	assert.True(t, hasEdge(edges, "job:default/etl", "data:default/raw.orders", graphmodel.EdgeReads))
	assert.True(t, hasEdge(edges, "job:default/etl", "data:default/curated.orders", graphmodel.EdgeWrites))
}

func TestOpenLineageParserIgnoresNonLineageJSON(t *testing.T) {
	nodes, edges := parseFile(t, NewOpenLineageParser(), "package.json", `{"name": "web", "version": "1.0.0"}`)
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
}

func TestKubernetesParserEnvAndEnvFrom(t *testing.T) {
	content := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: checkout
spec:
  template:
    spec:
      containers:
        - name: api
          env:
            - name: PAYMENT_DB_HOST
              value: pg.internal
          envFrom:
            - configMapRef:
                name: checkout-config
            - secretRef:
                name: checkout-secrets
`
	nodes, edges := parseFile(t, NewKubernetesParser(), "deploy/checkout.yaml", content)

	env, ok := nodeByID(nodes, "env:PAYMENT_DB_HOST")
	require.True(t, ok)
	assert.Equal(t, "kubernetes", env.Metadata["source"])

	assert.True(t, hasEdge(edges, "file://deploy/checkout.yaml", "env:PAYMENT_DB_HOST", graphmodel.EdgeProvides))
	assert.True(t, hasEdge(edges, "file://deploy/checkout.yaml", "config:configmap:checkout-config", graphmodel.EdgeReads))
	assert.True(t, hasEdge(edges, "file://deploy/checkout.yaml", "config:secret:checkout-secrets", graphmodel.EdgeReads))
}

func TestPySparkParserConfAndDelta(t *testing.T) {
	content := `from delta.tables import DeltaTable

warehouse = spark.conf.get("spark.sql.warehouse.dir")
spark.conf.set("spark.databricks.delta.retentionDurationCheck.enabled", "false")

users = DeltaTable.forPath(spark, "s3://lake/users")
users.alias("t").merge(updates, "t.id = s.id")
`
	nodes, edges := parseFile(t, NewPySparkParser(), "jobs/compact.py", content)

	_, ok := nodeByID(nodes, "config:spark:spark.sql.warehouse.dir")
	assert.True(t, ok)

	delta, ok := nodeByID(nodes, "data:delta:s3://lake/users")
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeDataAsset, delta.Type)

	assert.True(t, hasEdge(edges, "file://jobs/compact.py", "config:spark:spark.sql.warehouse.dir", graphmodel.EdgeReads))
	assert.True(t, hasEdge(edges, "file://jobs/compact.py", "config:spark:spark.databricks.delta.retentionDurationCheck.enabled", graphmodel.EdgeWrites))
	assert.True(t, hasEdge(edges, "file://jobs/compact.py", "data:delta:s3://lake/users", graphmodel.EdgeReads))
}

func TestJavaScriptParserImportsAndEnv(t *testing.T) {
	content := `const config = require('./config');
const express = require('express');

const port = process.env.SERVICE_PORT;
`
	nodes, edges := parseFile(t, NewJavaScriptParser(), "src/server.js", content)

	_, ok := nodeByID(nodes, "env:SERVICE_PORT")
	assert.True(t, ok)
	assert.True(t, hasEdge(edges, "file://src/server.js", "file://src/config.js", graphmodel.EdgeImports))
	assert.True(t, hasEdge(edges, "file://src/server.js", "file://node_modules/express", graphmodel.EdgeImports))
}
