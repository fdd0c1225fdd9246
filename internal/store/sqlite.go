package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// SQLiteStore is the primary embedded backend, one file per repository
// (conventionally <repo>/.jnkn/jnkn.db).
type SQLiteStore struct {
	db     *sqlx.DB
	path   string
	logger *logrus.Logger
}

// NewSQLiteStore opens (or creates) the database at path and verifies the
// schema version.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Foreign keys drive the delete cascade from nodes to incident edges;
	// setting them in the DSN applies to every pooled connection, where a
	// one-off PRAGMA would only reach the connection that served it.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}

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

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT,
		language TEXT,
		file_hash TEXT,
		tokens TEXT,
		metadata TEXT
	);

	CREATE TABLE IF NOT EXISTS edges (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 1.0,
		metadata TEXT,
		PRIMARY KEY (source_id, target_id, type),
		FOREIGN KEY (source_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (target_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS scan_metadata (
		path TEXT PRIMARY KEY,
		file_hash TEXT NOT NULL,
		last_scanned DATETIME,
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

// checkSchemaVersion stamps a fresh store and rejects one stamped with any
// other version, older or newer; no migrations are applied.
func (s *SQLiteStore) checkSchemaVersion() error {
	var version int
	err := s.db.Get(&version, `SELECT version FROM schema_version LIMIT 1`)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion)
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveNodesBatch upserts nodes in a single transaction, merging with any
// stored row by id.
func (s *SQLiteStore) SaveNodesBatch(ctx context.Context, nodes []graphmodel.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveNodesTx(ctx, tx, nodes); err != nil {
		return err
	}
	return tx.Commit()
}

func saveNodesTx(ctx context.Context, tx *sqlx.Tx, nodes []graphmodel.Node) error {
	selectStmt, err := tx.PreparexContext(ctx, `SELECT id, type, name, path, language, file_hash, tokens, metadata FROM nodes WHERE id = ?`)
	if err != nil {
		return err
	}
	defer selectStmt.Close()

	insertStmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO nodes (id, type, name, path, language, file_hash, tokens, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertStmt.Close()

	for _, n := range nodes {
		var row nodeRow
		err := selectStmt.GetContext(ctx, &row, n.ID)
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
		if _, err := insertStmt.ExecContext(ctx, n.ID, string(n.Type), n.Name, n.Path, n.Language, n.FileHash, tokens, metadata); err != nil {
			return err
		}
	}
	return nil
}

// SaveEdgesBatch upserts edges in a single transaction. Endpoints no parser
// has produced yet are materialized as unknown placeholder nodes first, so
// the foreign keys hold and the dangling dependency stays queryable.
func (s *SQLiteStore) SaveEdgesBatch(ctx context.Context, edges []graphmodel.Edge) error {
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
		return tx.GetContext(ctx, &one, `SELECT 1 FROM nodes WHERE id = ?`, id) == nil
	})
	if len(placeholders) > 0 {
		if err := saveNodesTx(ctx, tx, placeholders); err != nil {
			return err
		}
	}

	selectStmt, err := tx.PreparexContext(ctx, `SELECT source_id, target_id, type, confidence, metadata FROM edges WHERE source_id = ? AND target_id = ? AND type = ?`)
	if err != nil {
		return err
	}
	defer selectStmt.Close()

	insertStmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO edges (source_id, target_id, type, confidence, metadata)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertStmt.Close()

	for _, e := range edges {
		var row edgeRow
		err := selectStmt.GetContext(ctx, &row, e.SourceID, e.TargetID, string(e.Type))
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
		if _, err := insertStmt.ExecContext(ctx, e.SourceID, e.TargetID, string(e.Type), e.Confidence, metadata); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteNodesByFile removes every node produced from path; the foreign-key
// cascade removes incident edges in the same statement.
func (s *SQLiteStore) DeleteNodesByFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_metadata WHERE path = ?`, path); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAllScanMetadata returns the scan bookkeeping keyed by path.
func (s *SQLiteStore) GetAllScanMetadata(ctx context.Context) (map[string]ScanMetadata, error) {
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
func (s *SQLiteStore) SaveScanMetadata(ctx context.Context, meta ScanMetadata) error {
	if meta.LastScanned.IsZero() {
		meta.LastScanned = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scan_metadata (path, file_hash, last_scanned, node_count, edge_count)
		VALUES (?, ?, ?, ?, ?)`,
		meta.Path, meta.FileHash, meta.LastScanned, meta.NodeCount, meta.EdgeCount)
	return err
}

// QueryDescendants expands the impacted set of id with a recursive CTE, so
// reachability never requires hydrating the whole graph. Impact follows
// producer-shaped edges forward and consumer-shaped edges in reverse; see
// graphmodel.FlowsForward.
func (s *SQLiteStore) QueryDescendants(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	return s.queryReachable(ctx, id, maxDepth, false)
}

// QueryAncestors expands the mirror traversal of QueryDescendants.
func (s *SQLiteStore) QueryAncestors(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	return s.queryReachable(ctx, id, maxDepth, true)
}

func (s *SQLiteStore) queryReachable(ctx context.Context, id string, maxDepth int, reverse bool) (map[string]struct{}, error) {
	// Unbounded traversal drops the depth column entirely: UNION dedups on
	// id alone, which is what terminates cycles.
	var query string
	var args []interface{}
	if maxDepth < 0 {
		query = fmt.Sprintf(`
			WITH RECURSIVE reach(id) AS (
				SELECT ?
				UNION
				%s
			)
			SELECT id FROM reach WHERE id != ?`, reachableStepSQL(reverse, ""))
		args = []interface{}{id, id}
	} else {
		query = fmt.Sprintf(`
			WITH RECURSIVE reach(id, depth) AS (
				SELECT ?, 0
				UNION
				%s
			)
			SELECT DISTINCT id FROM reach WHERE id != ?`, reachableStepSQL(reverse, "?"))
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
func (s *SQLiteStore) LoadGraph(ctx context.Context) (*graphmodel.Graph, error) {
	g := graphmodel.New()

	var nodeRows []nodeRow
	if err := s.db.SelectContext(ctx, &nodeRows, `SELECT id, type, name, path, language, file_hash, tokens, metadata FROM nodes`); err != nil {
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
	if err := s.db.SelectContext(ctx, &edgeRows, `SELECT source_id, target_id, type, confidence, metadata FROM edges`); err != nil {
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

// GetStats summarizes the store contents.
func (s *SQLiteStore) GetStats(ctx context.Context) (Stats, error) {
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

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// Clear drops all data but keeps the schema and its version stamp.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"edges", "nodes", "scan_metadata"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func countByType(ctx context.Context, db *sqlx.DB, query string, dest map[string]int) error {
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return err
		}
		dest[typ] = count
	}
	return rows.Err()
}

// nodeRow is the sqlx scan target for the nodes relation; tokens and
// metadata are JSON blobs.
type nodeRow struct {
	ID       string         `db:"id"`
	Type     string         `db:"type"`
	Name     string         `db:"name"`
	Path     sql.NullString `db:"path"`
	Language sql.NullString `db:"language"`
	FileHash sql.NullString `db:"file_hash"`
	Tokens   sql.NullString `db:"tokens"`
	Metadata sql.NullString `db:"metadata"`
}

func (r nodeRow) toNode() (graphmodel.Node, error) {
	n := graphmodel.Node{
		ID:       r.ID,
		Type:     graphmodel.NodeType(r.Type),
		Name:     r.Name,
		Path:     r.Path.String,
		Language: r.Language.String,
		FileHash: r.FileHash.String,
	}
	if r.Tokens.Valid && r.Tokens.String != "" {
		if err := json.Unmarshal([]byte(r.Tokens.String), &n.Tokens); err != nil {
			return n, fmt.Errorf("decode tokens for %s: %w", r.ID, err)
		}
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &n.Metadata); err != nil {
			return n, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
	}
	return n, nil
}

type edgeRow struct {
	SourceID   string         `db:"source_id"`
	TargetID   string         `db:"target_id"`
	Type       string         `db:"type"`
	Confidence float64        `db:"confidence"`
	Metadata   sql.NullString `db:"metadata"`
}

func (r edgeRow) toEdge() (graphmodel.Edge, error) {
	e := graphmodel.Edge{
		SourceID:   r.SourceID,
		TargetID:   r.TargetID,
		Type:       graphmodel.EdgeType(r.Type),
		Confidence: r.Confidence,
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &e.Metadata); err != nil {
			return e, fmt.Errorf("decode metadata for %s->%s: %w", r.SourceID, r.TargetID, err)
		}
	}
	return e, nil
}

func encodeNodeBlobs(n graphmodel.Node) (tokens, metadata sql.NullString, err error) {
	if len(n.Tokens) > 0 {
		raw, marshalErr := json.Marshal(n.Tokens)
		if marshalErr != nil {
			return tokens, metadata, marshalErr
		}
		tokens = sql.NullString{String: string(raw), Valid: true}
	}
	metadata, err = encodeMetadata(n.Metadata)
	return tokens, metadata, err
}

func encodeMetadata(meta map[string]interface{}) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
