package diffimpact

import (
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// Analyzer computes blast radius over a head-revision graph, falling back
// to the base-revision graph for artifacts the change removed (a deleted
// node's dependents only exist in the graph that still contains it).
type Analyzer struct {
	head          *graphmodel.Graph
	base          *graphmodel.Graph
	criticalGlobs []string
	logger        *log.Logger
}

// NewAnalyzer builds an analyzer. base may be nil when no base snapshot is
// available; removed files then contribute no blast of their own.
// criticalGlobs are the config's risk.critical_paths patterns.
func NewAnalyzer(head, base *graphmodel.Graph, criticalGlobs []string, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{head: head, base: base, criticalGlobs: criticalGlobs, logger: logger}
}

// Analyze runs the full pipeline: changed-artifact set, blast radius,
// category breakdown, risk level.
func (a *Analyzer) Analyze(baseRef, headRef string, changedFiles []ChangedFile) *Report {
	start := time.Now()
	a.logger.Printf("=== Starting Diff Analysis %s..%s ===", baseRef, headRef)
	a.logger.Printf("Changed files: %d", len(changedFiles))

	// STEP 1: collect the changed artifacts from both revisions.
	a.logger.Println("[STEP 1] Resolving changed files to graph nodes...")
	changed := a.changedArtifacts(changedFiles)
	a.logger.Printf("[STEP 1] SUCCESS: %d changed artifacts", len(changed))

	// STEP 2: union the blast radius of every changed artifact.
	a.logger.Println("[STEP 2] Computing blast radius...")
	impacted, lowestConfidence := a.blastRadius(changed)
	a.logger.Printf("[STEP 2] SUCCESS: %d impacted artifacts", len(impacted))

	// STEP 3: bucket the impacted set for reporting.
	a.logger.Println("[STEP 3] Categorizing impacted artifacts...")
	byCategory := categorize(impacted)

	// STEP 4: grade the blast.
	a.logger.Println("[STEP 4] Calculating risk level...")
	risk := a.calculateRisk(changed, impacted, lowestConfidence)
	a.logger.Printf("[STEP 4] SUCCESS: risk = %s (score %.0f)", risk.Level, risk.Score)

	impactedIDs := make([]string, 0, len(impacted))
	for id := range impacted {
		impactedIDs = append(impactedIDs, id)
	}
	sort.Strings(impactedIDs)

	a.logger.Println("=== Diff Analysis Complete ===")
	return &Report{
		Meta: Meta{
			BaseRef:    baseRef,
			HeadRef:    headRef,
			Duration:   time.Since(start),
			FilesInput: len(changedFiles),
		},
		Risk: risk,
		Changes: Changes{
			ChangedArtifacts:  changed,
			ImpactedCount:     len(impactedIDs),
			ImpactedArtifacts: impactedIDs,
		},
		ImpactedByCategory: byCategory,
	}
}

// changedArtifacts maps the changed-path list to nodes. Removed paths are
// resolved against the base graph; everything else against head. Each
// artifact is stamped with its change type.
func (a *Analyzer) changedArtifacts(changedFiles []ChangedFile) []ChangedArtifact {
	var out []ChangedArtifact
	seen := make(map[string]struct{})

	appendNodes := func(g *graphmodel.Graph, path string, kind ChangeKind) {
		if g == nil {
			return
		}
		for _, n := range g.AllNodes() {
			if n.Path != path {
				continue
			}
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, ChangedArtifact{
				ID:         n.ID,
				Name:       n.Name,
				Type:       string(n.Type),
				Path:       n.Path,
				ChangeType: kind,
			})
		}
	}

	for _, cf := range changedFiles {
		switch cf.Kind {
		case ChangeRemoved:
			appendNodes(a.base, cf.Path, ChangeRemoved)
		default:
			appendNodes(a.head, cf.Path, cf.Kind)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// blastRadius unions each changed artifact's impacted set. Removed
// artifacts traverse the base graph; the walk also tracks the weakest edge
// used anywhere, which feeds the risk grade's confidence input.
func (a *Analyzer) blastRadius(changed []ChangedArtifact) (map[string]struct{}, float64) {
	impacted := make(map[string]struct{})
	lowest := 1.0

	for _, art := range changed {
		g := a.head
		if art.ChangeType == ChangeRemoved {
			g = a.base
		}
		if g == nil {
			continue
		}
		reached, minConf := impactWalk(g, art.ID)
		for id := range reached {
			impacted[id] = struct{}{}
		}
		if len(reached) > 0 && minConf < lowest {
			lowest = minConf
		}
	}

	// Changed artifacts themselves are reported separately, not as impact.
	for _, art := range changed {
		delete(impacted, art.ID)
	}
	return impacted, lowest
}

// impactWalk is Downstream plus bookkeeping: it returns the impacted set
// and the lowest edge confidence crossed while discovering it.
func impactWalk(g *graphmodel.Graph, id string) (map[string]struct{}, float64) {
	visited := make(map[string]struct{})
	lowest := 1.0
	queue := []string{id}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		step := func(next string, confidence float64) {
			if next == id {
				return
			}
			if confidence < lowest {
				lowest = confidence
			}
			if _, seen := visited[next]; seen {
				return
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}

		for it := g.OutEdges(cur); it.Next(); {
			e := it.Edge()
			if graphmodel.FlowsForward(e.Type) {
				step(e.TargetID, e.Confidence)
			}
		}
		for it := g.InEdges(cur); it.Next(); {
			e := it.Edge()
			if !graphmodel.FlowsForward(e.Type) {
				step(e.SourceID, e.Confidence)
			}
		}
	}
	return visited, lowest
}

// categorize buckets impacted ids by prefix for the report breakdown.
func categorize(impacted map[string]struct{}) map[string][]string {
	out := map[string][]string{}
	for id := range impacted {
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
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// calculateRisk grades the blast: raw size, data assets in the blast,
// critical paths touched, and how well-evidenced the impact paths are.
func (a *Analyzer) calculateRisk(changed []ChangedArtifact, impacted map[string]struct{}, lowestConfidence float64) RiskAssessment {
	score := 0.0
	var reasons []string

	switch {
	case len(impacted) >= 50:
		score += 40
		reasons = append(reasons, "very large blast radius")
	case len(impacted) >= 20:
		score += 30
		reasons = append(reasons, "large blast radius")
	case len(impacted) >= 5:
		score += 15
		reasons = append(reasons, "moderate blast radius")
	}

	for id := range impacted {
		if strings.HasPrefix(id, "data:") {
			score += 25
			reasons = append(reasons, "data assets impacted")
			break
		}
	}

	if a.touchesCriticalPath(changed, impacted) {
		score += 30
		reasons = append(reasons, "critical path impacted")
	}

	// A blast reached only over low-confidence stitched edges is a
	// hypothesis, not an observation; it still raises attention, just not
	// as sharply as observed impact does.
	if len(impacted) > 0 && lowestConfidence >= 0.8 {
		score += 10
		reasons = append(reasons, "impact paths directly observed")
	}

	level := RiskLow
	switch {
	case score >= 70:
		level = RiskCritical
	case score >= 50:
		level = RiskHigh
	case score >= 30:
		level = RiskMedium
	}

	return RiskAssessment{
		Level:                level,
		Score:                score,
		Reasons:              reasons,
		LowestEdgeConfidence: lowestConfidence,
	}
}

// touchesCriticalPath matches changed and impacted artifact paths against
// the configured critical globs.
func (a *Analyzer) touchesCriticalPath(changed []ChangedArtifact, impacted map[string]struct{}) bool {
	if len(a.criticalGlobs) == 0 {
		return false
	}

	match := func(path string) bool {
		if path == "" {
			return false
		}
		for _, glob := range a.criticalGlobs {
			if ok, _ := filepath.Match(glob, path); ok {
				return true
			}
			if strings.HasPrefix(glob, "**/") {
				if ok, _ := filepath.Match(strings.TrimPrefix(glob, "**/"), filepath.Base(path)); ok {
					return true
				}
			}
			if strings.HasSuffix(glob, "/**") && strings.HasPrefix(path, strings.TrimSuffix(glob, "/**")+"/") {
				return true
			}
		}
		return false
	}

	for _, art := range changed {
		if match(art.Path) {
			return true
		}
	}
	for id := range impacted {
		if n, ok := a.head.GetNode(id); ok && match(n.Path) {
			return true
		}
	}
	return false
}
