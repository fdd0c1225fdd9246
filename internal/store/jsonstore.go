package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// JSONStore is the document backend: one graph.json file encoding the same
// four relations the SQL backends keep. Intended for development, small
// repositories, and CI debugging dumps; every mutating call rewrites the
// file atomically (temp file + rename).
type JSONStore struct {
	mu   sync.Mutex
	path string
	doc  jsonDocument
}

type jsonDocument struct {
	SchemaVersion int                     `json:"schema_version"`
	Nodes         []graphmodel.Node       `json:"nodes"`
	Edges         []graphmodel.Edge       `json:"edges"`
	ScanMetadata  map[string]ScanMetadata `json:"scan_metadata"`
}

// NewJSONStore loads (or initializes) the document at path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		doc: jsonDocument{
			SchemaVersion: SchemaVersion,
			ScanMetadata:  make(map[string]ScanMetadata),
		},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if s.doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: store has v%d, engine expects v%d", ErrSchemaMismatch, s.doc.SchemaVersion, SchemaVersion)
	}
	if s.doc.ScanMetadata == nil {
		s.doc.ScanMetadata = make(map[string]ScanMetadata)
	}
	return s, nil
}

// graph rebuilds the in-memory graph from the document. The graph type
// already implements the merge rules, so the document's node/edge lists are
// simply replayed through it.
func (s *JSONStore) graph() *graphmodel.Graph {
	return graphmodel.FromDict(s.doc.Nodes, s.doc.Edges)
}

func (s *JSONStore) setFromGraph(g *graphmodel.Graph) {
	dict := g.ToDict()
	s.doc.Nodes = dict["nodes"].([]graphmodel.Node)
	s.doc.Edges = dict["edges"].([]graphmodel.Edge)
}

// flush writes the document atomically.
func (s *JSONStore) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// SaveNodesBatch merges nodes and rewrites the document.
func (s *JSONStore) SaveNodesBatch(ctx context.Context, nodes []graphmodel.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.graph()
	for _, n := range nodes {
		g.AddNode(n)
	}
	s.setFromGraph(g)
	return s.flush()
}

// SaveEdgesBatch merges edges and rewrites the document. Placeholder nodes
// for dangling endpoints come out of the graph's AddEdge.
func (s *JSONStore) SaveEdgesBatch(ctx context.Context, edges []graphmodel.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.graph()
	for _, e := range edges {
		g.AddEdge(e)
	}
	s.setFromGraph(g)
	return s.flush()
}

// DeleteNodesByFile removes every node whose path matches and every edge
// incident to those nodes, as a two-step delete over the document.
func (s *JSONStore) DeleteNodesByFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.graph()
	g.RemoveNodesByPath(path)
	s.setFromGraph(g)
	delete(s.doc.ScanMetadata, path)
	return s.flush()
}

// GetAllScanMetadata returns a copy of the scan bookkeeping.
func (s *JSONStore) GetAllScanMetadata(ctx context.Context) (map[string]ScanMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ScanMetadata, len(s.doc.ScanMetadata))
	for k, v := range s.doc.ScanMetadata {
		out[k] = v
	}
	return out, nil
}

// SaveScanMetadata upserts one file's scan row.
func (s *JSONStore) SaveScanMetadata(ctx context.Context, meta ScanMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.LastScanned.IsZero() {
		meta.LastScanned = time.Now().UTC()
	}
	s.doc.ScanMetadata[meta.Path] = meta
	return s.flush()
}

// QueryDescendants loads the graph and traverses in memory; for the
// document backend's intended scale that is the iterative form.
func (s *JSONStore) QueryDescendants(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph().Downstream(id, maxDepth), nil
}

// QueryAncestors is the reverse-direction analogue.
func (s *JSONStore) QueryAncestors(ctx context.Context, id string, maxDepth int) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph().Upstream(id, maxDepth), nil
}

// LoadGraph hydrates the in-memory graph.
func (s *JSONStore) LoadGraph(ctx context.Context) (*graphmodel.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph(), nil
}

// GetStats summarizes the document contents.
func (s *JSONStore) GetStats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		SchemaVersion: s.doc.SchemaVersion,
		TotalNodes:    len(s.doc.Nodes),
		TotalEdges:    len(s.doc.Edges),
		TrackedFiles:  len(s.doc.ScanMetadata),
		NodesByType:   make(map[string]int),
		EdgesByType:   make(map[string]int),
	}
	for _, n := range s.doc.Nodes {
		stats.NodesByType[string(n.Type)]++
	}
	for _, e := range s.doc.Edges {
		stats.EdgesByType[string(e.Type)]++
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}
	return stats, nil
}

// Clear resets the document to empty and rewrites it.
func (s *JSONStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = jsonDocument{
		SchemaVersion: SchemaVersion,
		ScanMetadata:  make(map[string]ScanMetadata),
	}
	return s.flush()
}

// Close is a no-op: every mutating call already rewrote the document.
func (s *JSONStore) Close() error {
	return nil
}
