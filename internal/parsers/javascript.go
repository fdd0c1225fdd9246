package parsers

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/jnkn-io/jnkn/internal/pipeline"
	"github.com/jnkn-io/jnkn/internal/treesitter"
)

// JavaScriptParser handles JavaScript and TypeScript, including JSX/TSX.
// Entities come from the tree-sitter grammars; require() and dynamic
// import() edges, which the import-statement walk doesn't cover, plus
// process.env reads come from regexes.
type JavaScriptParser struct{}

func NewJavaScriptParser() *JavaScriptParser { return &JavaScriptParser{} }

func (p *JavaScriptParser) Name() string { return "javascript" }

func (p *JavaScriptParser) CanParse(filePath string) bool {
	return hasSuffix(filePath, ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts")
}

var (
	jsEnvPatterns = []struct {
		re      *regexp.Regexp
		pattern string
	}{
		{regexp.MustCompile(`process\.env\.([A-Z][A-Z0-9_]*)`), "process.env"},
		{regexp.MustCompile(`process\.env\s*\[\s*["']([^"']+)["']`), "process.env[]"},
		{regexp.MustCompile(`import\.meta\.env\.([A-Z][A-Z0-9_]*)`), "import.meta.env"},
	}

	jsRequirePattern       = regexp.MustCompile(`require\s*\(\s*["']([^"']+)["']\s*\)`)
	jsDynamicImportPattern = regexp.MustCompile(`import\s*\(\s*["']([^"']+)["']\s*\)`)
	jsExportFromPattern    = regexp.MustCompile(`export\s+.*\s+from\s+["']([^"']+)["']`)
)

func (p *JavaScriptParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	p.emitEntities(ectx, yield)

	text := ectx.Text()
	for _, re := range []struct {
		re   *regexp.Regexp
		kind string
	}{
		{jsRequirePattern, "commonjs"},
		{jsDynamicImportPattern, "dynamic"},
		{jsExportFromPattern, "esm"},
	} {
		stop := false
		matchAll(re.re, text, func(spec string, offset int) {
			if stop {
				return
			}
			if !p.emitImport(ectx, spec, ectx.LineNumber(offset), re.kind, yield) {
				stop = true
			}
		})
		if stop {
			return
		}
	}

	for _, pat := range jsEnvPatterns {
		emitEnvVarMatches(ectx, pat.re, pat.pattern, yield)
	}
}

func (p *JavaScriptParser) emitEntities(ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	entities, err := treesitter.Extract(grammarFor(ectx.Path), ectx.Bytes)
	if err != nil {
		return
	}

	for _, e := range entities {
		switch e.Kind {
		case treesitter.EntityImport:
			if !p.emitImport(ectx, e.ImportPath, e.StartLine, "esm", yield) {
				return
			}
		default:
			if !ectx.MarkSeen(entityKey(e.Name)) {
				continue
			}
			node := ectx.EntityNode(e.Name, string(e.Kind), e.StartLine, e.EndLine, map[string]interface{}{
				"signature": e.Signature,
			})
			if !yield(pipeline.EmitNode(node)) {
				return
			}
			if !yield(pipeline.EmitEdge(ectx.ContainsEdge(node.ID))) {
				return
			}
		}
	}
}

// grammarFor picks the tree-sitter grammar variant: JSX/TSX files need the
// JSX-aware grammars even though their language tag stays javascript/
// typescript.
func grammarFor(filePath string) string {
	switch {
	case hasSuffix(filePath, ".tsx"):
		return "tsx"
	case hasSuffix(filePath, ".ts", ".mts", ".cts"):
		return "typescript"
	case hasSuffix(filePath, ".jsx"):
		return "jsx"
	default:
		return "javascript"
	}
}

// emitImport resolves a module specifier to a file id. Relative specifiers
// resolve against the importing file's directory; bare specifiers are
// packages under node_modules.
func (p *JavaScriptParser) emitImport(ectx *pipeline.ExtractionContext, spec string, line int, kind string, yield func(pipeline.Emission) bool) bool {
	if spec == "" {
		return true
	}
	if !ectx.MarkSeen("import:" + spec) {
		return true
	}

	var targetPath string
	if strings.HasPrefix(spec, ".") {
		targetPath = path.Join(path.Dir(ectx.Path), spec)
		if path.Ext(targetPath) == "" {
			targetPath += ".js"
		}
	} else {
		targetPath = "node_modules/" + spec
	}

	virtual := pipeline.VirtualFileNode(targetPath, spec, ectx.Language)
	virtual.Metadata["import_type"] = kind
	if !yield(pipeline.EmitNode(virtual)) {
		return false
	}
	return yield(pipeline.EmitEdge(ectx.ImportsEdge(virtual.ID, line)))
}
