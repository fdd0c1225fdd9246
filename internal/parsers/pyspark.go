package parsers

import (
	"context"
	"regexp"
	"strings"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// PySparkParser covers the data-pipeline side of Python scripts: Spark
// configuration reads/writes and Delta Lake table references. It runs on
// the same .py files as the Python parser, which emits the file node; this
// parser emits only the Spark and Delta nodes and edges, and the graph
// merges both streams by id.
type PySparkParser struct{}

func NewPySparkParser() *PySparkParser { return &PySparkParser{} }

func (p *PySparkParser) Name() string { return "pyspark" }

func (p *PySparkParser) CanParse(path string) bool {
	return hasSuffix(path, ".py")
}

var (
	sparkConfGet = regexp.MustCompile(`spark\.conf\.get\s*\(\s*["']([^"']+)["']`)
	sparkConfSet = regexp.MustCompile(`spark\.conf\.set\s*\(\s*["']([^"']+)["']\s*,`)

	deltaForPath = regexp.MustCompile(`DeltaTable\.forPath\s*\([^,]+,\s*["']([^"']+)["']`)
	deltaForName = regexp.MustCompile(`DeltaTable\.forName\s*\([^,]+,\s*["']([^"']+)["']`)
	deltaMerge   = regexp.MustCompile(`\.merge\s*\([^,]+,\s*["']([^"']+)["']\s*\)`)
)

func (p *PySparkParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	text := ectx.Text()
	if !strings.Contains(text, "spark") && !strings.Contains(text, "DeltaTable") {
		return
	}

	if !p.emitSparkConf(ectx, sparkConfGet, "spark.conf.get", graphmodel.EdgeReads, yield) {
		return
	}
	if !p.emitSparkConf(ectx, sparkConfSet, "spark.conf.set", graphmodel.EdgeWrites, yield) {
		return
	}

	for _, d := range []struct {
		re      *regexp.Regexp
		pattern string
	}{
		{deltaForPath, "DeltaTable.forPath"},
		{deltaForName, "DeltaTable.forName"},
		{deltaMerge, "merge"},
	} {
		if !p.emitDeltaTable(ectx, d.re, d.pattern, yield) {
			return
		}
	}
}

func (p *PySparkParser) emitSparkConf(ectx *pipeline.ExtractionContext, re *regexp.Regexp, pattern string, edgeType graphmodel.EdgeType, yield func(pipeline.Emission) bool) bool {
	ok := true
	matchAll(re, ectx.Text(), func(key string, offset int) {
		if !ok || key == "" {
			return
		}
		id := graphmodel.ConfigKeyID("spark", key)
		line := ectx.LineNumber(offset)
		if ectx.MarkSeen(id) {
			node := ectx.ConfigNode(id, key, line, "spark", nil)
			if !yield(pipeline.EmitNode(node)) {
				ok = false
				return
			}
		}
		if !yield(pipeline.EmitEdge(graphmodel.Edge{
			SourceID:   ectx.FileID,
			TargetID:   id,
			Type:       edgeType,
			Confidence: 1.0,
			Metadata:   map[string]interface{}{"line": line, "pattern": pattern},
		})) {
			ok = false
		}
	})
	return ok
}

// emitDeltaTable records Delta references as data assets. forPath and
// merge name the table by storage location, forName by catalog name;
// either way the asset id carries the delta format tag.
func (p *PySparkParser) emitDeltaTable(ectx *pipeline.ExtractionContext, re *regexp.Regexp, pattern string, yield func(pipeline.Emission) bool) bool {
	ok := true
	matchAll(re, ectx.Text(), func(ref string, offset int) {
		if !ok || ref == "" {
			return
		}
		id := graphmodel.DataFormatID("delta", ref)
		line := ectx.LineNumber(offset)
		if ectx.MarkSeen(id) {
			node := ectx.DataAssetNode(id, ref, line, "delta_table", map[string]interface{}{
				"pattern": pattern,
			})
			if !yield(pipeline.EmitNode(node)) {
				ok = false
				return
			}
		}
		edgeType := graphmodel.EdgeReads
		if pattern == "merge" {
			edgeType = graphmodel.EdgeWrites
		}
		if !yield(pipeline.EmitEdge(graphmodel.Edge{
			SourceID:   ectx.FileID,
			TargetID:   id,
			Type:       edgeType,
			Confidence: 1.0,
			Metadata:   map[string]interface{}{"line": line, "pattern": pattern},
		})) {
			ok = false
		}
	})
	return ok
}
