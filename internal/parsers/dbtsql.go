package parsers

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// DbtSQLParser handles dbt model SQL: the file defines the model named
// after it, {{ ref(...) }} pulls in upstream models, {{ source(...) }}
// reads warehouse sources, and {{ config(...) }} carries materialization
// metadata.
type DbtSQLParser struct{}

func NewDbtSQLParser() *DbtSQLParser { return &DbtSQLParser{} }

func (p *DbtSQLParser) Name() string { return "dbt_sql" }

func (p *DbtSQLParser) CanParse(filePath string) bool {
	return hasSuffix(filePath, ".sql")
}

var (
	dbtRefPattern    = regexp.MustCompile(`\{\{\s*ref\s*\(\s*['"]([^'"]+)['"]\s*\)\s*\}\}`)
	dbtSourcePattern = regexp.MustCompile(`\{\{\s*source\s*\(\s*['"]([^'"]+)['"]\s*,\s*['"]([^'"]+)['"]\s*\)\s*\}\}`)
	dbtConfigPattern = regexp.MustCompile(`\{\{\s*config\s*\(([^)]*)\)\s*\}\}`)
	dbtMaterialized  = regexp.MustCompile(`materialized\s*=\s*['"]([^'"]+)['"]`)
)

func (p *DbtSQLParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	text := ectx.Text()
	if !strings.Contains(text, "{{") {
		return
	}

	modelName := strings.TrimSuffix(path.Base(ectx.Path), ".sql")
	modelID := graphmodel.DataModelID(modelName)

	meta := map[string]interface{}{"resource_type": "model", "from_sql": true}
	if cm := dbtConfigPattern.FindStringSubmatch(text); cm != nil {
		if mm := dbtMaterialized.FindStringSubmatch(cm[1]); mm != nil {
			meta["materialized"] = mm[1]
		}
	}

	if ectx.MarkSeen(modelID) {
		node := ectx.DataAssetNode(modelID, modelName, 0, "model", meta)
		if !yield(pipeline.EmitNode(node)) {
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ContainsEdge(modelID))) {
			return
		}
	}

	stop := false
	matchAll(dbtRefPattern, text, func(refName string, offset int) {
		if stop || refName == modelName {
			return
		}
		if !yield(pipeline.EmitEdge(graphmodel.Edge{
			SourceID:   modelID,
			TargetID:   graphmodel.DataModelID(refName),
			Type:       graphmodel.EdgeDependsOn,
			Confidence: 1.0,
			Metadata:   map[string]interface{}{"line": ectx.LineNumber(offset), "pattern": "ref"},
		})) {
			stop = true
		}
	})
	if stop {
		return
	}

	for _, m := range dbtSourcePattern.FindAllStringSubmatchIndex(text, -1) {
		sourceName := text[m[2]:m[3]]
		tableName := text[m[4]:m[5]]
		if !yield(pipeline.EmitEdge(graphmodel.Edge{
			SourceID:   modelID,
			TargetID:   graphmodel.DataSourceID(sourceName, tableName),
			Type:       graphmodel.EdgeReads,
			Confidence: 1.0,
			Metadata:   map[string]interface{}{"line": ectx.LineNumber(m[0]), "pattern": "source"},
		})) {
			return
		}
	}
}
