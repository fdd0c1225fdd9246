package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// PostgresStore serves the same four relations as SQLiteStore for
// repositories that outgrow an embedded file — past roughly 10^5 edges the
// recursive expansion benefits from a real planner and server-side memory.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore connects with the pgx stdlib driver and verifies the
// schema version.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db, logger: logger}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.checkSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT,
		language TEXT,
		file_hash TEXT,
		tokens JSONB,
		metadata JSONB
	);

	CREATE TABLE IF NOT EXISTS edges (
		source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		metadata JSONB,
		PRIMARY KEY (source_id, target_id, type)
	);

	CREATE TABLE IF NOT EXISTS scan_metadata (
		path TEXT PRIMARY KEY,
		file_hash TEXT NOT NULL,
		last_scanned TIMESTAMPTZ,
		node_count INTEGER DEFAULT 0,
		edge_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path);
	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) checkSchemaVersion() error {
	var version int
	err := s.db.Get(&version, `SELECT version FROM schema_version LIMIT 1`)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, SchemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("%w: store has v%d, engine expects v%d", ErrSchemaMismatch, version, SchemaVersion)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveNodesBatch upserts nodes in one transaction, merging by id.
func (s *PostgresStore) SaveNodesBatch(ctx context.Context, nodes []graphmodel.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.saveNodesTx(ctx, tx, nodes); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) saveNodesTx(ctx context.Context, tx *sqlx.Tx, nodes []graphmodel.Node) error {
	for _, n := range nodes {
		var row nodeRow
		err := tx.GetContext(ctx, &row, `SELECT id, type, name, path, language, file_hash, tokens::text AS tokens, metadata::text AS metadata FROM nodes WHERE id = $1 FOR UPDATE`, n.ID)
		switch {
		case err == sql.ErrNoRows:
			// fresh insert
		case err != nil:
			return err
		default:
			existing, decodeErr := row.toNode()
			if decodeErr != nil {
				return decodeErr
			}
			n = graphmodel.MergeNodes(existing, n)
		}

		tokens, metadata, encErr := encodeNodeBlobs(n)
		if encErr != nil {
			return encErr
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (id, type, name, path, language, file_hash, tokens, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				type = EXCLUDED.type, name = EXCLUDED.name, path = EXCLUDED.path,
				language = EXCLUDED.language, file_hash = EXCLUDED.file_hash,
				tokens = EXCLUDED.tokens, metadata = EXCLUDED.metadata`,
			n.ID, string(n.Type), n.Name, nullable(n.Path), nullable(n.Language), nullable(n.FileHash), tokens, metadata)
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveEdgesBatch upserts edges in one transaction, backfilling unknown
// placeholder endpoints the foreign keys require.
func (s *PostgresStore) SaveEdgesBatch(ctx context.Context, edges []graphmodel.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := placeholderNodes(edges, func(id string) bool {
		var one int
		return tx.GetContext(ctx, &one, `SELECT 1 FROM nodes WHERE id = $1`, id) == nil
	})
	if len(placeholders) > 0 {
		for _, n := range placeholders {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO nodes (id, type, name) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO NOTHING`,
				n.ID, string(n.Type), n.Name); err != nil {
				return err
			}
		}
	}

	for _, e := range edges {
		var row edgeRow
		err := tx.GetContext(ctx, &row, `SELECT source_id, target_id, type, confidence, metadata::text AS metadata FROM edges WHERE source_id = $1 AND target_id = $2 AND type = $3 FOR UPDATE`,
			e.SourceID, e.TargetID, string(e.Type))
		switch {
		case err == sql.ErrNoRows:
			// fresh insert
		case err != nil:
			return err
		default:
			existing, decodeErr := row.toEdge()
			if decodeErr != nil {
				return decodeErr
			}
			e = graphmodel.MergeEdges(existing, e)
		}

		metadata, encErr := encodeMetadata(e.Metadata)
		if encErr != nil {
			return encErr
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges (source_id, target_id, type, confidence, metadata)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (source_id, target_id, type) DO UPDATE SET
				confidence = EXCLUDED.confidence, metadata = EXCLUDED.metadata`,
			e.SourceID, e.TargetID, string(e.Type), e.Confidence, metadata)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteNodesByFile removes path's nodes; the cascade removes incident edges.
func (s *PostgresStore) DeleteNodesByFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = $1`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_metadata WHERE path = $1`, path); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAllScanMetadata returns the scan bookkeeping keyed by path.
func (s *PostgresStore) GetAllScanMetadata(ctx context.Context) (map[string]ScanMetadata, error) {
	var rows []ScanMetadata
	if err := s.db.SelectContext(ctx, &rows, `SELECT path, file_hash, last_scanned, node_count, edge_count FROM scan_metadata`); err != nil {
		return nil, err
	}
	out := make(map[string]ScanMetadata, len(rows))
	for _, m := range rows {
		out[m.Path] = m
	}
	return out, nil
}

// SaveScanMetadata upserts one file's scan row.
func (s *PostgresStore) SaveScanMetadata(ctx context.Context, meta ScanMetadata) error {
	if meta.LastScanned.IsZero() {
		meta.LastScanned = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_metadata (path, file_hash, last_scanned, node_count, edge_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (path) DO UPDATE SET
			file_hash = EXCLUDED.file_hash, last_scanned = EXCLUDED.last_scanned,
			node_count = EXCLUDED.node_count, edge_count = EXCLUDED.edge_count`,
		meta.Path, meta.FileHash, meta.LastScanned, meta.NodeCount, meta.EdgeCount)
	return err
}

// QueryDescendants expands the impacted set server-side; same direction
// semantics as the in-memory traversal.
func (s *PostgresStore) QueryDescendants(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	return s.queryReachable(ctx, id, maxDepth, false)
}

// QueryAncestors expands the mirror traversal.
func (s *PostgresStore) QueryAncestors(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	return s.queryReachable(ctx, id, maxDepth, true)
}

func (s *PostgresStore) queryReachable(ctx context.Context, id string, maxDepth int, reverse bool) (map[string]struct{}, error) {
	var query string
	var args []interface{}
	if maxDepth < 0 {
		query = fmt.Sprintf(`
			WITH RECURSIVE reach(id) AS (
				SELECT $1::text
				UNION
				%s
			)
			SELECT id FROM reach WHERE id != $2`, reachableStepSQL(reverse, ""))
		args = []interface{}{id, id}
	} else {
		query = fmt.Sprintf(`
			WITH RECURSIVE reach(id, depth) AS (
				SELECT $1::text, 0
				UNION
				%s
			)
			SELECT DISTINCT id FROM reach WHERE id != $3`, reachableStepSQL(reverse, "$2"))
		args = []interface{}{id, maxDepth, id}
	}

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, reached := range ids {
		out[reached] = struct{}{}
	}
	return out, nil
}

// LoadGraph hydrates the full in-memory graph.
func (s *PostgresStore) LoadGraph(ctx context.Context) (*graphmodel.Graph, error) {
	g := graphmodel.New()

	var nodeRows []nodeRow
	if err := s.db.SelectContext(ctx, &nodeRows, `SELECT id, type, name, path, language, file_hash, tokens::text AS tokens, metadata::text AS metadata FROM nodes`); err != nil {
		return nil, err
	}
	for _, row := range nodeRows {
		n, err := row.toNode()
		if err != nil {
			return nil, err
		}
		g.AddNode(n)
	}

	var edgeRows []edgeRow
	if err := s.db.SelectContext(ctx, &edgeRows, `SELECT source_id, target_id, type, confidence, metadata::text AS metadata FROM edges`); err != nil {
		return nil, err
	}
	for _, row := range edgeRows {
		e, err := row.toEdge()
		if err != nil {
			return nil, err
		}
		g.AddEdge(e)
	}

	return g, nil
}

// GetStats summarizes the store contents, including the on-disk relation size.
func (s *PostgresStore) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		SchemaVersion: SchemaVersion,
		NodesByType:   make(map[string]int),
		EdgesByType:   make(map[string]int),
	}

	if err := s.db.GetContext(ctx, &stats.TotalNodes, `SELECT COUNT(*) FROM nodes`); err != nil {
		return stats, err
	}
	if err := s.db.GetContext(ctx, &stats.TotalEdges, `SELECT COUNT(*) FROM edges`); err != nil {
		return stats, err
	}
	if err := s.db.GetContext(ctx, &stats.TrackedFiles, `SELECT COUNT(*) FROM scan_metadata`); err != nil {
		return stats, err
	}

	if err := countByType(ctx, s.db, `SELECT type, COUNT(*) FROM nodes GROUP BY type`, stats.NodesByType); err != nil {
		return stats, err
	}
	if err := countByType(ctx, s.db, `SELECT type, COUNT(*) FROM edges GROUP BY type`, stats.EdgesByType); err != nil {
		return stats, err
	}

	var size sql.NullInt64
	if err := s.db.GetContext(ctx, &size, `SELECT pg_total_relation_size('nodes') + pg_total_relation_size('edges')`); err == nil && size.Valid {
		stats.DBSizeBytes = size.Int64
	}

	return stats, nil
}

// Clear truncates all data, keeping the schema.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE nodes, edges, scan_metadata`)
	return err
}

func nullable(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
