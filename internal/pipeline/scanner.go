package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	enginerrors "github.com/jnkn-io/jnkn/internal/errors"
	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/store"
)

// ScannerOptions tunes the parallel scan.
type ScannerOptions struct {
	// Workers is the number of parser goroutines. Zero means runtime.NumCPU().
	Workers int
	// QueueSize bounds the walker->worker and worker->merger channels so a
	// lagging merger backpressures the walk instead of buffering the repo.
	QueueSize int
	// FlushEdges triggers a store flush once this many pending edges
	// accumulate. FlushInterval flushes earlier on slow streams.
	FlushEdges    int
	FlushInterval time.Duration
	// Incremental consults stored scan metadata and skips files whose
	// content hash is unchanged.
	Incremental bool
}

// DefaultScannerOptions returns the documented defaults: batch writes of
// 1000 edges or 50ms, whichever comes first.
func DefaultScannerOptions() ScannerOptions {
	return ScannerOptions{
		Workers:       runtime.NumCPU(),
		QueueSize:     64,
		FlushEdges:    1000,
		FlushInterval: 50 * time.Millisecond,
	}
}

// ScanResult summarizes one scan run.
type ScanResult struct {
	ScanID       string        `json:"scan_id"`
	FilesScanned int           `json:"files_scanned"`
	FilesSkipped int           `json:"files_skipped"`
	FilesFailed  int           `json:"files_failed"`
	NodeCount    int           `json:"node_count"`
	EdgeCount    int           `json:"edge_count"`
	Duration     time.Duration `json:"duration"`
}

// Scanner drives walker -> dispatcher -> parser workers -> merger. Workers
// parse distinct files in parallel and emit complete per-file batches; a
// single merger goroutine owns the graph and the store writer, so neither
// ever observes concurrent mutation. Determinism across arrival orders
// falls out of the merge rules being commutative and idempotent.
type Scanner struct {
	walker     *Walker
	dispatcher *Dispatcher
	store      store.Store
	logger     *logrus.Logger
	opts       ScannerOptions
}

// NewScanner assembles a scanner. store may be nil, in which case results
// live only in the returned graph (used heavily by tests).
func NewScanner(walker *Walker, dispatcher *Dispatcher, st store.Store, logger *logrus.Logger, opts ScannerOptions) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.FlushEdges <= 0 {
		opts.FlushEdges = 1000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 50 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{walker: walker, dispatcher: dispatcher, store: st, logger: logger, opts: opts}
}

// fileResult is one file's complete parse output. Emissions keep the
// per-extractor order of the producing file.
type fileResult struct {
	Path      string
	Hash      string
	Emissions []Emission
	Failed    bool
}

// Scan walks root, parses every claimed file, merges the stream into g,
// and flushes to the store in transactional batches. It returns the scan
// summary; g is mutated in place so callers can stitch afterwards.
func (s *Scanner) Scan(ctx context.Context, root string, g *graphmodel.Graph) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{ScanID: uuid.New().String()}

	var previous map[string]store.ScanMetadata
	if s.opts.Incremental && s.store != nil {
		var err error
		previous, err = s.store.GetAllScanMetadata(ctx)
		if err != nil {
			return nil, enginerrors.StoreError(err, "load scan metadata")
		}
	}

	tasks := make(chan FileTask, s.opts.QueueSize)
	results := make(chan fileResult, s.opts.QueueSize)

	eg, egCtx := errgroup.WithContext(ctx)

	// Walker feed.
	eg.Go(func() error {
		defer close(tasks)
		for task := range s.walker.Walk(root) {
			select {
			case tasks <- task:
			case <-egCtx.Done():
				return enginerrors.Cancelled(egCtx.Err())
			}
		}
		return nil
	})

	// Parser workers.
	workers, workerCtx := errgroup.WithContext(egCtx)
	for i := 0; i < s.opts.Workers; i++ {
		workers.Go(func() error {
			for task := range tasks {
				if prev, ok := previous[task.Path]; ok && prev.FileHash == task.Hash {
					select {
					case results <- fileResult{Path: task.Path, Hash: task.Hash}:
					case <-workerCtx.Done():
						return enginerrors.Cancelled(workerCtx.Err())
					}
					continue
				}
				fr := s.parseFile(workerCtx, task)
				select {
				case results <- fr:
				case <-workerCtx.Done():
					return enginerrors.Cancelled(workerCtx.Err())
				}
			}
			return nil
		})
	}
	eg.Go(func() error {
		defer close(results)
		return workers.Wait()
	})

	// Single merger: the only writer of g and the store.
	eg.Go(func() error {
		return s.merge(egCtx, results, g, previous, result)
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result.NodeCount = g.NodeCount()
	result.EdgeCount = g.EdgeCount()
	result.Duration = time.Since(start)

	s.logger.WithFields(logrus.Fields{
		"files_scanned": result.FilesScanned,
		"files_skipped": result.FilesSkipped,
		"files_failed":  result.FilesFailed,
		"nodes":         result.NodeCount,
		"edges":         result.EdgeCount,
		"duration":      result.Duration.String(),
	}).Info("scan complete")

	return result, nil
}

// parseFile runs every claiming parser over one file and collects the
// emissions. Parsers must not panic, but a misbehaving plug-in is contained
// here: the file is reported failed, its file node is still emitted with a
// parse_error flag, and the scan continues.
func (s *Scanner) parseFile(ctx context.Context, task FileTask) (fr fileResult) {
	fr = fileResult{Path: task.Path, Hash: task.Hash}

	parsers := s.dispatcher.ParsersFor(task.Path)
	if len(parsers) == 0 {
		return fr
	}

	ectx := NewExtractionContext(task.Path, task.Content, DetectLanguage(task.Path), task.Hash)

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{"path": task.Path, "panic": r}).Warn("parser panic recovered")
			fr.Failed = true
			fileNode := ectx.FileNode(map[string]interface{}{"parse_error": true})
			fr.Emissions = []Emission{{Node: &fileNode}}
		}
	}()

	for _, p := range parsers {
		p.Parse(ctx, ectx, func(e Emission) bool {
			fr.Emissions = append(fr.Emissions, e)
			return true
		})
	}
	return fr
}

// merge drains per-file batches into the graph and the store. For a changed
// file in incremental mode, the file's previous nodes (and their incident
// edges) are deleted before its fresh output lands, sequenced so the
// delete/insert pair stays within this file's turn.
func (s *Scanner) merge(ctx context.Context, results <-chan fileResult, g *graphmodel.Graph, previous map[string]store.ScanMetadata, result *ScanResult) error {
	var pendingNodes []graphmodel.Node
	var pendingEdges []graphmodel.Edge
	lastFlush := time.Now()

	flush := func() error {
		if s.store == nil {
			pendingNodes, pendingEdges = nil, nil
			return nil
		}
		if len(pendingNodes) > 0 {
			if err := s.store.SaveNodesBatch(ctx, pendingNodes); err != nil {
				return enginerrors.StoreError(err, "save nodes batch")
			}
		}
		if len(pendingEdges) > 0 {
			if err := s.store.SaveEdgesBatch(ctx, pendingEdges); err != nil {
				return enginerrors.StoreError(err, "save edges batch")
			}
		}
		pendingNodes, pendingEdges = nil, nil
		lastFlush = time.Now()
		return nil
	}

	for fr := range results {
		select {
		case <-ctx.Done():
			return enginerrors.Cancelled(ctx.Err())
		default:
		}

		prev, known := previous[fr.Path]
		if known && prev.FileHash == fr.Hash {
			result.FilesSkipped++
			continue
		}
		if len(fr.Emissions) == 0 && !fr.Failed && !known {
			// Nothing extracted and nothing tracked: no parser claims this
			// file's content, so there is nothing to record or invalidate.
			continue
		}

		// A tracked file changed: its previous nodes (and incident edges)
		// go first, even when the fresh parse now yields nothing.
		if known && s.store != nil {
			if err := flush(); err != nil {
				return err
			}
			if err := s.store.DeleteNodesByFile(ctx, fr.Path); err != nil {
				return enginerrors.StoreError(err, fmt.Sprintf("delete stale nodes for %s", fr.Path))
			}
			g.RemoveNodesByPath(fr.Path)
		}

		nodeCount, edgeCount := 0, 0
		for _, em := range fr.Emissions {
			switch {
			case em.Node != nil:
				g.AddNode(*em.Node)
				pendingNodes = append(pendingNodes, *em.Node)
				nodeCount++
			case em.Edge != nil:
				g.AddEdge(*em.Edge)
				pendingEdges = append(pendingEdges, *em.Edge)
				edgeCount++
			}
		}

		if fr.Failed {
			result.FilesFailed++
		} else {
			result.FilesScanned++
		}

		if len(pendingEdges) >= s.opts.FlushEdges || time.Since(lastFlush) >= s.opts.FlushInterval {
			if err := flush(); err != nil {
				return err
			}
		}

		if s.store != nil {
			meta := store.ScanMetadata{
				Path:      fr.Path,
				FileHash:  fr.Hash,
				NodeCount: nodeCount,
				EdgeCount: edgeCount,
			}
			if err := s.store.SaveScanMetadata(ctx, meta); err != nil {
				return enginerrors.StoreError(err, fmt.Sprintf("save scan metadata for %s", fr.Path))
			}
		}
	}

	return flush()
}
