package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// Neo4jStore keeps the graph in a property graph database, where
// descendant/ancestor queries expand hop by hop with typed relationship
// patterns instead of recursive SQL expansion. Artifacts are :Artifact nodes keyed
// by id; edges are typed relationships carrying confidence and metadata.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

// relationshipTypes is the closed edge-type -> relationship-type table.
// Cypher cannot parameterize relationship types, so every interpolated type
// must come from this map — never from caller input.
var relationshipTypes = map[graphmodel.EdgeType]string{
	graphmodel.EdgeImports:    "IMPORTS",
	graphmodel.EdgeReads:      "READS",
	graphmodel.EdgeWrites:     "WRITES",
	graphmodel.EdgeProvides:   "PROVIDES",
	graphmodel.EdgeProvisions: "PROVISIONS",
	graphmodel.EdgeContains:   "CONTAINS",
	graphmodel.EdgeDependsOn:  "DEPENDS_ON",
}

var edgeTypeForRelationship = func() map[string]graphmodel.EdgeType {
	out := make(map[string]graphmodel.EdgeType, len(relationshipTypes))
	for et, rel := range relationshipTypes {
		out[rel] = et
	}
	return out
}()

// NewNeo4jStore connects, verifies connectivity, installs the uniqueness
// constraint on Artifact ids, and checks the stored schema version.
func NewNeo4jStore(ctx context.Context, uri, username, password, database string, logger *logrus.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}

	s := &Neo4jStore{driver: driver, database: database, logger: logger}

	if _, err := s.run(ctx, `CREATE CONSTRAINT artifact_id IF NOT EXISTS FOR (a:Artifact) REQUIRE a.id IS UNIQUE`, nil); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("create constraint: %w", err)
	}
	if err := s.checkSchemaVersion(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return s, nil
}

func (s *Neo4jStore) run(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
}

func (s *Neo4jStore) checkSchemaVersion(ctx context.Context) error {
	result, err := s.run(ctx, `MATCH (v:SchemaVersion) RETURN v.version AS version LIMIT 1`, nil)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if len(result.Records) == 0 {
		_, err := s.run(ctx, `MERGE (v:SchemaVersion) SET v.version = $version`,
			map[string]any{"version": SchemaVersion})
		return err
	}
	raw, _ := result.Records[0].Get("version")
	if version, ok := raw.(int64); ok && int(version) != SchemaVersion {
		return fmt.Errorf("%w: store has v%d, engine expects v%d", ErrSchemaMismatch, version, SchemaVersion)
	}
	return nil
}

// Close closes the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// SaveNodesBatch merges nodes by id. The merge rule runs client-side (read
// the existing properties, merge, write back) so all backends share one
// implementation of the semantics; the write itself is a single UNWIND
// statement in one transaction.
func (s *Neo4jStore) SaveNodesBatch(ctx context.Context, nodes []graphmodel.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	existing, err := s.fetchNodes(ctx, ids)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, 0, len(nodes))
	merged := make(map[string]graphmodel.Node, len(nodes))
	for _, n := range nodes {
		if prev, ok := merged[n.ID]; ok {
			n = graphmodel.MergeNodes(prev, n)
		} else if prev, ok := existing[n.ID]; ok {
			n = graphmodel.MergeNodes(prev, n)
		}
		merged[n.ID] = n
	}
	for _, n := range merged {
		row, err := nodeProperties(n)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	_, err = s.run(ctx, `
		UNWIND $rows AS row
		MERGE (a:Artifact {id: row.id})
		SET a.type = row.type, a.name = row.name, a.path = row.path,
		    a.language = row.language, a.file_hash = row.file_hash,
		    a.tokens = row.tokens, a.metadata = row.metadata`,
		map[string]any{"rows": rows})
	return err
}

// SaveEdgesBatch merges edges by (source, target, type). Placeholder
// endpoints fall out of MERGE on the Artifact id, which creates the node
// when no parser has produced it yet.
func (s *Neo4jStore) SaveEdgesBatch(ctx context.Context, edges []graphmodel.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	byType := make(map[graphmodel.EdgeType][]graphmodel.Edge)
	for _, e := range edges {
		byType[e.Type] = append(byType[e.Type], e)
	}

	for edgeType, group := range byType {
		rel, ok := relationshipTypes[edgeType]
		if !ok {
			return fmt.Errorf("unknown edge type %q", edgeType)
		}

		rows := make([]map[string]any, 0, len(group))
		for _, e := range group {
			metadata, err := metadataString(e.Metadata)
			if err != nil {
				return err
			}
			rows = append(rows, map[string]any{
				"source":     e.SourceID,
				"target":     e.TargetID,
				"confidence": e.Confidence,
				"metadata":   metadata,
			})
		}

		// Higher confidence wins on collision; a placeholder endpoint is
		// created as an unknown Artifact so the dangling reference stays
		// queryable at full confidence.
		cypher := fmt.Sprintf(`
			UNWIND $rows AS row
			MERGE (src:Artifact {id: row.source})
			ON CREATE SET src.type = 'unknown', src.name = row.source
			MERGE (tgt:Artifact {id: row.target})
			ON CREATE SET tgt.type = 'unknown', tgt.name = row.target
			MERGE (src)-[r:%s]->(tgt)
			ON CREATE SET r.confidence = row.confidence, r.metadata = row.metadata
			ON MATCH SET
				r.metadata = CASE WHEN row.confidence >= r.confidence THEN row.metadata ELSE r.metadata END,
				r.confidence = CASE WHEN row.confidence > r.confidence THEN row.confidence ELSE r.confidence END`, rel)

		if _, err := s.run(ctx, cypher, map[string]any{"rows": rows}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteNodesByFile detaches and deletes every node produced from path,
// which removes incident relationships in the same operation.
func (s *Neo4jStore) DeleteNodesByFile(ctx context.Context, path string) error {
	if _, err := s.run(ctx, `MATCH (a:Artifact {path: $path}) DETACH DELETE a`,
		map[string]any{"path": path}); err != nil {
		return err
	}
	_, err := s.run(ctx, `MATCH (f:ScanFile {path: $path}) DELETE f`,
		map[string]any{"path": path})
	return err
}

// GetAllScanMetadata returns the scan bookkeeping keyed by path.
func (s *Neo4jStore) GetAllScanMetadata(ctx context.Context) (map[string]ScanMetadata, error) {
	result, err := s.run(ctx, `
		MATCH (f:ScanFile)
		RETURN f.path AS path, f.file_hash AS file_hash, f.last_scanned AS last_scanned,
		       f.node_count AS node_count, f.edge_count AS edge_count`, nil)
	if err != nil {
		return nil, err
	}

	out := make(map[string]ScanMetadata, len(result.Records))
	for _, record := range result.Records {
		meta := ScanMetadata{
			Path:     stringValue(record, "path"),
			FileHash: stringValue(record, "file_hash"),
		}
		if raw, ok := record.Get("last_scanned"); ok {
			if ts, ok := raw.(time.Time); ok {
				meta.LastScanned = ts
			}
		}
		meta.NodeCount = intValue(record, "node_count")
		meta.EdgeCount = intValue(record, "edge_count")
		out[meta.Path] = meta
	}
	return out, nil
}

// SaveScanMetadata upserts one file's scan row.
func (s *Neo4jStore) SaveScanMetadata(ctx context.Context, meta ScanMetadata) error {
	if meta.LastScanned.IsZero() {
		meta.LastScanned = time.Now().UTC()
	}
	_, err := s.run(ctx, `
		MERGE (f:ScanFile {path: $path})
		SET f.file_hash = $file_hash, f.last_scanned = $last_scanned,
		    f.node_count = $node_count, f.edge_count = $edge_count`,
		map[string]any{
			"path":         meta.Path,
			"file_hash":    meta.FileHash,
			"last_scanned": meta.LastScanned,
			"node_count":   meta.NodeCount,
			"edge_count":   meta.EdgeCount,
		})
	return err
}

// QueryDescendants expands the impacted set of id. Impact follows
// producer-shaped relationships (PROVIDES, PROVISIONS, CONTAINS, WRITES)
// along their direction and consumer-shaped ones (READS, IMPORTS,
// DEPENDS_ON) against it; a single variable-length pattern cannot mix
// directions per type, so the walk expands frontier by frontier with one
// two-pattern query per hop.
func (s *Neo4jStore) QueryDescendants(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	return s.queryReachable(ctx, id, maxDepth, false)
}

// QueryAncestors expands the mirror traversal.
func (s *Neo4jStore) QueryAncestors(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	return s.queryReachable(ctx, id, maxDepth, true)
}

const (
	forwardRelTypes  = "PROVIDES|PROVISIONS|CONTAINS|WRITES"
	backwardRelTypes = "READS|IMPORTS|DEPENDS_ON"
)

func (s *Neo4jStore) queryReachable(ctx context.Context, id string, maxDepth int, reverse bool) (map[string]struct{}, error) {
	withFlow, againstFlow := forwardRelTypes, backwardRelTypes
	if reverse {
		withFlow, againstFlow = againstFlow, withFlow
	}
	cypher := fmt.Sprintf(`
		MATCH (n:Artifact)-[:%s]->(m:Artifact) WHERE n.id IN $frontier
		RETURN DISTINCT m.id AS id
		UNION
		MATCH (n:Artifact)<-[:%s]-(m:Artifact) WHERE n.id IN $frontier
		RETURN DISTINCT m.id AS id`, withFlow, againstFlow)

	visited := make(map[string]struct{})
	frontier := []string{id}
	for depth := 0; len(frontier) > 0 && (maxDepth < 0 || depth < maxDepth); depth++ {
		result, err := s.run(ctx, cypher, map[string]any{"frontier": frontier})
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, record := range result.Records {
			reached := stringValue(record, "id")
			if reached == id {
				continue
			}
			if _, seen := visited[reached]; seen {
				continue
			}
			visited[reached] = struct{}{}
			frontier = append(frontier, reached)
		}
	}
	return visited, nil
}

// LoadGraph hydrates the full in-memory graph.
func (s *Neo4jStore) LoadGraph(ctx context.Context) (*graphmodel.Graph, error) {
	g := graphmodel.New()

	nodeResult, err := s.run(ctx, `
		MATCH (a:Artifact)
		RETURN a.id AS id, a.type AS type, a.name AS name, a.path AS path,
		       a.language AS language, a.file_hash AS file_hash,
		       a.tokens AS tokens, a.metadata AS metadata`, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range nodeResult.Records {
		n, err := recordToNode(record)
		if err != nil {
			return nil, err
		}
		g.AddNode(n)
	}

	edgeResult, err := s.run(ctx, `
		MATCH (src:Artifact)-[r]->(tgt:Artifact)
		RETURN src.id AS source, tgt.id AS target, type(r) AS type,
		       r.confidence AS confidence, r.metadata AS metadata`, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range edgeResult.Records {
		edgeType, ok := edgeTypeForRelationship[stringValue(record, "type")]
		if !ok {
			continue
		}
		e := graphmodel.Edge{
			SourceID:   stringValue(record, "source"),
			TargetID:   stringValue(record, "target"),
			Type:       edgeType,
			Confidence: floatValue(record, "confidence"),
		}
		if raw := stringValue(record, "metadata"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode edge metadata %s->%s: %w", e.SourceID, e.TargetID, err)
			}
		}
		g.AddEdge(e)
	}

	return g, nil
}

// GetStats summarizes the store contents.
func (s *Neo4jStore) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		SchemaVersion: SchemaVersion,
		NodesByType:   make(map[string]int),
		EdgesByType:   make(map[string]int),
	}

	nodeResult, err := s.run(ctx, `MATCH (a:Artifact) RETURN a.type AS type, count(*) AS count`, nil)
	if err != nil {
		return stats, err
	}
	for _, record := range nodeResult.Records {
		count := intValue(record, "count")
		stats.NodesByType[stringValue(record, "type")] = count
		stats.TotalNodes += count
	}

	edgeResult, err := s.run(ctx, `MATCH (:Artifact)-[r]->(:Artifact) RETURN type(r) AS type, count(*) AS count`, nil)
	if err != nil {
		return stats, err
	}
	for _, record := range edgeResult.Records {
		rel := stringValue(record, "type")
		edgeType, ok := edgeTypeForRelationship[rel]
		if !ok {
			continue
		}
		count := intValue(record, "count")
		stats.EdgesByType[string(edgeType)] = count
		stats.TotalEdges += count
	}

	fileResult, err := s.run(ctx, `MATCH (f:ScanFile) RETURN count(*) AS count`, nil)
	if err != nil {
		return stats, err
	}
	if len(fileResult.Records) > 0 {
		stats.TrackedFiles = intValue(fileResult.Records[0], "count")
	}

	return stats, nil
}

// Clear removes every artifact and scan row; the schema stamp is kept.
func (s *Neo4jStore) Clear(ctx context.Context) error {
	for _, cypher := range []string{
		`MATCH (a:Artifact) DETACH DELETE a`,
		`MATCH (f:ScanFile) DELETE f`,
	} {
		if _, err := s.run(ctx, cypher, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Neo4jStore) fetchNodes(ctx context.Context, ids []string) (map[string]graphmodel.Node, error) {
	result, err := s.run(ctx, `
		MATCH (a:Artifact) WHERE a.id IN $ids
		RETURN a.id AS id, a.type AS type, a.name AS name, a.path AS path,
		       a.language AS language, a.file_hash AS file_hash,
		       a.tokens AS tokens, a.metadata AS metadata`,
		map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	out := make(map[string]graphmodel.Node, len(result.Records))
	for _, record := range result.Records {
		n, err := recordToNode(record)
		if err != nil {
			return nil, err
		}
		out[n.ID] = n
	}
	return out, nil
}

func nodeProperties(n graphmodel.Node) (map[string]any, error) {
	metadata, err := metadataString(n.Metadata)
	if err != nil {
		return nil, err
	}
	tokens := make([]any, 0, len(n.Tokens))
	for _, t := range n.Tokens {
		tokens = append(tokens, t)
	}
	return map[string]any{
		"id":        n.ID,
		"type":      string(n.Type),
		"name":      n.Name,
		"path":      n.Path,
		"language":  n.Language,
		"file_hash": n.FileHash,
		"tokens":    tokens,
		"metadata":  metadata,
	}, nil
}

func metadataString(meta map[string]interface{}) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func recordToNode(record *neo4j.Record) (graphmodel.Node, error) {
	n := graphmodel.Node{
		ID:       stringValue(record, "id"),
		Type:     graphmodel.NodeType(stringValue(record, "type")),
		Name:     stringValue(record, "name"),
		Path:     stringValue(record, "path"),
		Language: stringValue(record, "language"),
		FileHash: stringValue(record, "file_hash"),
	}
	if raw, ok := record.Get("tokens"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if tok, ok := item.(string); ok {
					n.Tokens = append(n.Tokens, tok)
				}
			}
		}
	}
	if raw := stringValue(record, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Metadata); err != nil {
			return n, fmt.Errorf("decode node metadata %s: %w", n.ID, err)
		}
	}
	return n, nil
}

func stringValue(record *neo4j.Record, key string) string {
	raw, ok := record.Get(key)
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprintf("%v", raw))
}

func intValue(record *neo4j.Record, key string) int {
	raw, ok := record.Get(key)
	if !ok || raw == nil {
		return 0
	}
	if v, ok := raw.(int64); ok {
		return int(v)
	}
	return 0
}

func floatValue(record *neo4j.Record, key string) float64 {
	raw, ok := record.Get(key)
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}
