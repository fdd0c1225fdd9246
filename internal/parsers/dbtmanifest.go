package parsers

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// DbtManifestParser reads dbt's manifest.json: models become data assets,
// sources become data assets, and each model's depends_on list becomes
// edges. Manifest unique_ids look like "model.project.stg_customers" and
// "source.project.raw.customers"; the graph keys them by the bare model
// name and source.table pair so SQL-file refs resolve to the same nodes.
type DbtManifestParser struct{}

func NewDbtManifestParser() *DbtManifestParser { return &DbtManifestParser{} }

func (p *DbtManifestParser) Name() string { return "dbt_manifest" }

func (p *DbtManifestParser) CanParse(path string) bool {
	return hasSuffix(path, "manifest.json")
}

type dbtManifest struct {
	Nodes   map[string]dbtManifestNode   `json:"nodes"`
	Sources map[string]dbtManifestSource `json:"sources"`
}

type dbtManifestNode struct {
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
	Config       struct {
		Materialized string `json:"materialized"`
	} `json:"config"`
	DependsOn struct {
		Nodes []string `json:"nodes"`
	} `json:"depends_on"`
}

type dbtManifestSource struct {
	SourceName string `json:"source_name"`
	Name       string `json:"name"`
}

func (p *DbtManifestParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	var manifest dbtManifest
	if err := json.Unmarshal(ectx.Bytes, &manifest); err != nil {
		return
	}
	if len(manifest.Nodes) == 0 && len(manifest.Sources) == 0 {
		return
	}

	// Map manifest unique_ids to graph ids up front, so depends_on entries
	// resolve even when they precede their target's definition.
	idFor := make(map[string]string, len(manifest.Nodes)+len(manifest.Sources))
	for uid, node := range manifest.Nodes {
		if node.ResourceType == "model" && node.Name != "" {
			idFor[uid] = graphmodel.DataModelID(node.Name)
		}
	}
	for uid, src := range manifest.Sources {
		if src.SourceName != "" && src.Name != "" {
			idFor[uid] = graphmodel.DataSourceID(src.SourceName, src.Name)
		}
	}

	for _, uid := range sortedKeys(manifest.Sources) {
		src := manifest.Sources[uid]
		id, ok := idFor[uid]
		if !ok || !ectx.MarkSeen(id) {
			continue
		}
		node := ectx.DataAssetNode(id, src.SourceName+"."+src.Name, 0, "source", map[string]interface{}{
			"dbt_unique_id": uid,
		})
		if !yield(pipeline.EmitNode(node)) {
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ContainsEdge(id))) {
			return
		}
	}

	for _, uid := range sortedKeys(manifest.Nodes) {
		model := manifest.Nodes[uid]
		id, ok := idFor[uid]
		if !ok {
			continue
		}
		if ectx.MarkSeen(id) {
			meta := map[string]interface{}{"dbt_unique_id": uid, "resource_type": "model"}
			if model.Config.Materialized != "" {
				meta["materialized"] = model.Config.Materialized
			}
			node := ectx.DataAssetNode(id, model.Name, 0, "model", meta)
			if !yield(pipeline.EmitNode(node)) {
				return
			}
			if !yield(pipeline.EmitEdge(ectx.ContainsEdge(id))) {
				return
			}
		}

		for _, dep := range model.DependsOn.Nodes {
			target, ok := idFor[dep]
			if !ok {
				// A dependency outside this manifest still gets an edge to
				// its inferred id; the store backfills the placeholder.
				target = manifestFallbackID(dep)
				if target == "" {
					continue
				}
			}
			if !yield(pipeline.EmitEdge(graphmodel.Edge{
				SourceID:   id,
				TargetID:   target,
				Type:       graphmodel.EdgeDependsOn,
				Confidence: 1.0,
				Metadata:   map[string]interface{}{"source": "dbt_manifest"},
			})) {
				return
			}
		}
	}
}

// manifestFallbackID derives a graph id from a manifest unique_id when the
// referenced node is absent from the manifest.
func manifestFallbackID(uid string) string {
	parts := strings.Split(uid, ".")
	switch {
	case strings.HasPrefix(uid, "model.") && len(parts) >= 3:
		return graphmodel.DataModelID(parts[len(parts)-1])
	case strings.HasPrefix(uid, "source.") && len(parts) >= 4:
		return graphmodel.DataSourceID(parts[len(parts)-2], parts[len(parts)-1])
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
