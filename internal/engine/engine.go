// Package engine wires the scan/stitch/store/analyze components behind the
// language-neutral query surface: Scan, Blast, Diff, Stats, Clear. A CLI or
// RPC layer sits on top of this package; nothing here formats for humans.
package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jnkn-io/jnkn/internal/config"
	"github.com/jnkn-io/jnkn/internal/diffimpact"
	enginerrors "github.com/jnkn-io/jnkn/internal/errors"
	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/logging"
	"github.com/jnkn-io/jnkn/internal/parsers"
	"github.com/jnkn-io/jnkn/internal/pipeline"
	"github.com/jnkn-io/jnkn/internal/stitcher"
	"github.com/jnkn-io/jnkn/internal/store"
)

// Engine owns one repository's store handle and configuration.
type Engine struct {
	cfg    *config.Config
	store  store.Store
	logger *logrus.Logger
}

// New opens the configured store backend and returns a ready engine. The
// application log is installed next to the store (<store dir>/logs); when
// no logrus logger is supplied, the structured store/pipeline logging is
// routed into the same sink.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if err := logging.Initialize(logging.DefaultConfig(logDir(cfg.Storage))); err != nil {
		return nil, enginerrors.ConfigErrorf("initialize logging: %v", err)
	}

	if logger == nil {
		logger = logrus.New()
		if w := logging.Writer(); w != nil {
			logger.SetOutput(w)
		}
	}

	st, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, enginerrors.StoreError(err, "open store")
	}

	logging.Info("engine ready", "storage", cfg.Storage.Type)
	return &Engine{cfg: cfg, store: st, logger: logger}, nil
}

// logDir places logs beside the store file for the embedded backends, and
// under the conventional .jnkn directory for the server-backed ones.
func logDir(cfg config.StorageConfig) string {
	switch cfg.Type {
	case "", "sqlite", "json":
		if cfg.Path != "" {
			return filepath.Join(filepath.Dir(cfg.Path), "logs")
		}
	}
	return filepath.Join(".jnkn", "logs")
}

// openStore selects the backend from config. SQLite is the default and the
// only one needing no external service.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (store.Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = ".jnkn/jnkn.db"
		}
		return store.NewSQLiteStore(path, logger)
	case "postgres":
		return store.NewPostgresStore(cfg.PostgresDSN, logger)
	case "neo4j":
		return store.NewNeo4jStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass, "neo4j", logger)
	case "json":
		path := cfg.Path
		if path == "" {
			path = ".jnkn/graph.json"
		}
		return store.NewJSONStore(path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// ScanStats is the Scan result surface.
type ScanStats struct {
	pipeline.ScanResult
	StitchedEdges int `json:"stitched_edges"`
}

// Scan walks root, extracts, stitches, and persists. Incremental mode
// re-parses only files whose content hash changed since the last scan.
func (e *Engine) Scan(ctx context.Context, root string, incremental bool) (*ScanStats, error) {
	walker := pipeline.NewWalker(e.cfg.Scan.Include, e.cfg.Scan.Exclude)
	dispatcher := pipeline.NewDispatcher(parsers.All())

	opts := pipeline.DefaultScannerOptions()
	opts.Incremental = incremental
	scanner := pipeline.NewScanner(walker, dispatcher, e.store, e.logger, opts)

	g := graphmodel.New()
	result, err := scanner.Scan(ctx, root, g)
	if err != nil {
		return nil, err
	}

	// Stitching runs over the full graph, including files the incremental
	// walk skipped — their nodes are already in the store.
	if incremental && result.FilesSkipped > 0 {
		g, err = e.store.LoadGraph(ctx)
		if err != nil {
			return nil, enginerrors.StoreError(err, "load graph for stitching")
		}
	}

	st := stitcher.New(e.matchConfig())
	newEdges := st.Stitch(g)
	if len(newEdges) > 0 {
		if err := e.store.SaveEdgesBatch(ctx, newEdges); err != nil {
			return nil, enginerrors.StoreError(err, "save stitched edges")
		}
		for _, edge := range newEdges {
			g.AddEdge(edge)
		}
	}
	e.logger.WithField("stitched_edges", len(newEdges)).Info("stitching complete")
	logging.Info("scan complete",
		"scan_id", result.ScanID,
		"files_scanned", result.FilesScanned,
		"files_skipped", result.FilesSkipped,
		"stitched_edges", len(newEdges))

	return &ScanStats{ScanResult: *result, StitchedEdges: len(newEdges)}, nil
}

// matchConfig translates the config file's stitcher section.
func (e *Engine) matchConfig() stitcher.MatchConfig {
	mc := stitcher.DefaultMatchConfig()
	if e.cfg.Scan.MinConfidence > 0 {
		mc.MinConfidence = e.cfg.Scan.MinConfidence
	}
	if e.cfg.Stitcher.MinOverlapTokens > 0 {
		mc.MinOverlapTokens = e.cfg.Stitcher.MinOverlapTokens
	}
	if e.cfg.Stitcher.WeakTokenPenalty > 0 {
		mc.WeakTokenPenalty = e.cfg.Stitcher.WeakTokenPenalty
	}
	if len(e.cfg.Stitcher.WeakTokens) > 0 {
		mc.WeakTokens = make(map[string]struct{}, len(e.cfg.Stitcher.WeakTokens))
		for _, t := range e.cfg.Stitcher.WeakTokens {
			mc.WeakTokens[strings.ToLower(t)] = struct{}{}
		}
	}
	if len(e.cfg.Stitcher.Rules) > 0 {
		mc.EnableRules = make(map[string]bool, len(e.cfg.Stitcher.Rules))
		for _, r := range e.cfg.Stitcher.Rules {
			mc.EnableRules[r] = true
		}
	}
	return mc
}

// BlastResult is the Blast query's stable shape.
type BlastResult struct {
	SourceArtifacts   []string            `json:"source_artifacts"`
	ImpactedCount     int                 `json:"total_impacted_count"`
	ImpactedArtifacts []string            `json:"impacted_artifacts"`
	Breakdown         map[string][]string `json:"breakdown"`
}

// Blast resolves each artifact (full id or substring) and unions their
// downstream impact. maxDepth < 0 means unbounded.
func (e *Engine) Blast(ctx context.Context, artifacts []string, maxDepth int) (*BlastResult, error) {
	g, err := e.store.LoadGraph(ctx)
	if err != nil {
		return nil, enginerrors.StoreError(err, "load graph")
	}

	var resolved []string
	impacted := make(map[string]struct{})
	for _, artifact := range artifacts {
		id, err := ResolveArtifact(g, artifact)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, id)
		for reached := range g.Downstream(id, maxDepth) {
			impacted[reached] = struct{}{}
		}
	}
	for _, id := range resolved {
		delete(impacted, id)
	}

	ids := make([]string, 0, len(impacted))
	for id := range impacted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &BlastResult{
		SourceArtifacts:   resolved,
		ImpactedCount:     len(ids),
		ImpactedArtifacts: ids,
		Breakdown:         breakdownByPrefix(ids),
	}, nil
}

// Upstream is Blast's mirror: what the artifact is impacted by.
func (e *Engine) Upstream(ctx context.Context, artifact string, maxDepth int) (*BlastResult, error) {
	g, err := e.store.LoadGraph(ctx)
	if err != nil {
		return nil, enginerrors.StoreError(err, "load graph")
	}

	id, err := ResolveArtifact(g, artifact)
	if err != nil {
		return nil, err
	}

	upstream := g.Upstream(id, maxDepth)
	ids := make([]string, 0, len(upstream))
	for reached := range upstream {
		ids = append(ids, reached)
	}
	sort.Strings(ids)

	return &BlastResult{
		SourceArtifacts:   []string{id},
		ImpactedCount:     len(ids),
		ImpactedArtifacts: ids,
		Breakdown:         breakdownByPrefix(ids),
	}, nil
}

func breakdownByPrefix(ids []string) map[string][]string {
	out := map[string][]string{}
	for _, id := range ids {
		var category string
		switch {
		case strings.HasPrefix(id, "data:"), strings.HasPrefix(id, "job:"):
			category = "data"
		case strings.HasPrefix(id, "file://"), strings.HasPrefix(id, "entity:"):
			category = "code"
		case strings.HasPrefix(id, "env:"), strings.HasPrefix(id, "config:"):
			category = "config"
		case strings.HasPrefix(id, "infra:"):
			category = "infra"
		default:
			category = "other"
		}
		out[category] = append(out[category], id)
	}
	return out
}

// Diff analyzes the blast radius of a revision pair, given the changed
// paths the VCS adapter computed. The head graph must be current (run Scan
// first); the same graph serves as the base snapshot for removed paths,
// which is exact as long as the removal has not been scanned over yet.
func (e *Engine) Diff(ctx context.Context, baseRef, headRef string, changed []diffimpact.ChangedFile) (*diffimpact.Report, error) {
	g, err := e.store.LoadGraph(ctx)
	if err != nil {
		return nil, enginerrors.StoreError(err, "load graph")
	}

	analyzer := diffimpact.NewAnalyzer(g, g, e.cfg.Risk.CriticalPaths, log.Default())
	return analyzer.Analyze(baseRef, headRef, changed), nil
}

// Stats reports store counts.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	return e.store.GetStats(ctx)
}

// Clear wipes the store. This is also the documented recovery path for a
// schema-version mismatch.
func (e *Engine) Clear(ctx context.Context) error {
	return e.store.Clear(ctx)
}

// Close releases the store handle.
func (e *Engine) Close() error {
	logging.Debug("engine closing")
	return e.store.Close()
}
