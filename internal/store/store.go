// Package store provides the persistent, content-addressed graph
// store behind interchangeable backends. The primary backend is an embedded
// SQLite database; Postgres serves the same schema for large repositories,
// Neo4j answers reachability with per-hop Cypher expansion, and a
// single-file JSON document backend covers development and CI debugging.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// SchemaVersion is bumped whenever the persisted relations change shape.
// Backends compare it on open and refuse to run against a store stamped
// with any other version.
const SchemaVersion = 1

// Common errors
var (
	ErrNotFound       = errors.New("not found")
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

// ScanMetadata is the per-file bookkeeping row used by incremental scans to
// decide "unchanged, skip" vs "changed, delete and rescan".
type ScanMetadata struct {
	Path        string    `json:"path" db:"path"`
	FileHash    string    `json:"file_hash" db:"file_hash"`
	LastScanned time.Time `json:"last_scanned" db:"last_scanned"`
	NodeCount   int       `json:"node_count" db:"node_count"`
	EdgeCount   int       `json:"edge_count" db:"edge_count"`
}

// Stats summarizes the store contents.
type Stats struct {
	SchemaVersion int            `json:"schema_version"`
	TotalNodes    int            `json:"total_nodes"`
	TotalEdges    int            `json:"total_edges"`
	TrackedFiles  int            `json:"tracked_files"`
	NodesByType   map[string]int `json:"nodes_by_type"`
	EdgesByType   map[string]int `json:"edges_by_type"`
	DBSizeBytes   int64          `json:"db_size_bytes"`
}

// Store is the backend contract. Every implementation applies the same
// merge semantics as the in-memory graph: nodes upsert by id, edges upsert
// by (source_id, target_id, type) with higher confidence winning. Batch
// saves are atomic per call; DeleteNodesByFile cascades to incident edges.
type Store interface {
	SaveNodesBatch(ctx context.Context, nodes []graphmodel.Node) error
	SaveEdgesBatch(ctx context.Context, edges []graphmodel.Edge) error

	// DeleteNodesByFile removes every node whose path equals the argument
	// and every edge incident to those nodes.
	DeleteNodesByFile(ctx context.Context, path string) error

	GetAllScanMetadata(ctx context.Context) (map[string]ScanMetadata, error)
	SaveScanMetadata(ctx context.Context, meta ScanMetadata) error

	// QueryDescendants returns the forward-reachable id set from id,
	// excluding id itself. maxDepth < 0 means unbounded.
	QueryDescendants(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error)
	// QueryAncestors is the reverse-direction analogue.
	QueryAncestors(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error)

	// LoadGraph hydrates the full in-memory graph, O(nodes + edges).
	LoadGraph(ctx context.Context) (*graphmodel.Graph, error)

	GetStats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*Neo4jStore)(nil)
	_ Store = (*JSONStore)(nil)
)

// reachableStepSQL renders the recursive step of the reachability CTE for
// the SQL backends. Impact follows producer-shaped edges (provides,
// provisions, contains, writes) along their stored direction and
// consumer-shaped edges (reads, imports, depends_on) against it; reverse
// swaps both, yielding the ancestor traversal. depthPlaceholder, when
// non-empty, bounds the walk (the surrounding CTE then carries a depth
// column).
func reachableStepSQL(reverse bool, depthPlaceholder string) string {
	const forwardTypes = "('provides','provisions','contains','writes')"
	const backwardTypes = "('reads','imports','depends_on')"

	nearCol, farCol := "source_id", "target_id"
	if reverse {
		nearCol, farCol = farCol, nearCol
	}

	selectCols := fmt.Sprintf(
		"SELECT CASE WHEN e.%s = r.id AND e.type IN %s THEN e.%s ELSE e.%s END",
		nearCol, forwardTypes, farCol, nearCol)
	if depthPlaceholder != "" {
		selectCols += ", r.depth + 1"
	}

	step := fmt.Sprintf(
		"%s FROM edges e JOIN reach r ON (e.%s = r.id AND e.type IN %s) OR (e.%s = r.id AND e.type IN %s)",
		selectCols, nearCol, forwardTypes, farCol, backwardTypes)
	if depthPlaceholder != "" {
		step += " WHERE r.depth < " + depthPlaceholder
	}
	return step
}

// placeholderNodes returns the unknown-typed nodes that must exist before
// edges referencing undiscovered artifacts can be persisted. Dangling
// references are not errors: the target is materialized as a placeholder
// and the edge kept at full confidence.
func placeholderNodes(edges []graphmodel.Edge, exists func(id string) bool) []graphmodel.Node {
	var out []graphmodel.Node
	seen := make(map[string]struct{})
	for _, e := range edges {
		for _, id := range []string{e.SourceID, e.TargetID} {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if !exists(id) {
				out = append(out, graphmodel.Node{ID: id, Name: id, Type: graphmodel.NodeUnknown})
			}
		}
	}
	return out
}
