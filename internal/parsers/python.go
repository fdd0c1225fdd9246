package parsers

import (
	"context"
	"regexp"
	"strings"

	"github.com/jnkn-io/jnkn/internal/pipeline"
	"github.com/jnkn-io/jnkn/internal/treesitter"
)

// PythonParser extracts entities via the tree-sitter grammar and
// environment-variable reads via a stack of prioritized regex extractors.
// Higher-priority extractors claim a variable first; the heuristic extractor
// only reports names nothing else recognized.
type PythonParser struct {
	extractors []pipeline.Extractor
}

// NewPythonParser wires the extractor stack: stdlib patterns first, then
// the library-specific ones, with the env-like-assignment heuristic last.
func NewPythonParser() *PythonParser {
	return &PythonParser{
		extractors: []pipeline.Extractor{
			&pythonStdlibEnvExtractor{},
			&pythonDotenvExtractor{},
			&pythonEnvironsExtractor{},
			&pythonPydanticExtractor{},
			&pythonHeuristicExtractor{},
		},
	}
}

func (p *PythonParser) Name() string { return "python" }

func (p *PythonParser) CanParse(path string) bool {
	return hasSuffix(path, ".py", ".pyi", ".pyw")
}

func (p *PythonParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	emitPythonEntities(ectx, yield)
	pipeline.RunExtractors(p.extractors, ectx, yield)
}

// emitPythonEntities turns the syntax tree's declarations into code_entity
// nodes and its imports into edges targeting the imported module's file id.
// A grammar failure degrades to the regex extractors alone.
func emitPythonEntities(ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	entities, err := treesitter.Extract("python", ectx.Bytes)
	if err != nil {
		return
	}

	for _, e := range entities {
		switch e.Kind {
		case treesitter.EntityImport:
			// import a.b resolves to a/b.py relative to the scan root;
			// unresolvable third-party modules stay as virtual files.
			targetPath := strings.ReplaceAll(e.ImportPath, ".", "/") + ".py"
			if !yield(pipeline.EmitNode(pipeline.VirtualFileNode(targetPath, e.ImportPath, "python"))) {
				return
			}
			if !yield(pipeline.EmitEdge(ectx.ImportsEdge(pipeline.FileTargetID(targetPath), e.StartLine))) {
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

func entityKey(name string) string { return "entity:" + name }

// pythonStdlibEnvExtractor covers os.getenv / os.environ access, including
// the bare getenv/environ forms after a from-import.
type pythonStdlibEnvExtractor struct{}

var pythonStdlibPatterns = []struct {
	re      *regexp.Regexp
	pattern string
}{
	{regexp.MustCompile(`os\.getenv\s*\(\s*["']([^"']+)["']`), "os.getenv"},
	{regexp.MustCompile(`os\.environ\.get\s*\(\s*["']([^"']+)["']`), "os.environ.get"},
	{regexp.MustCompile(`os\.environ\s*\[\s*["']([^"']+)["']`), "os.environ[]"},
	{regexp.MustCompile(`[^.\w]getenv\s*\(\s*["']([^"']+)["']`), "getenv"},
	{regexp.MustCompile(`[^.\w]environ\.get\s*\(\s*["']([^"']+)["']`), "environ.get"},
	{regexp.MustCompile(`[^.\w]environ\s*\[\s*["']([^"']+)["']`), "environ[]"},
}

func (pythonStdlibEnvExtractor) Name() string  { return "python_stdlib_env" }
func (pythonStdlibEnvExtractor) Priority() int { return 100 }

func (pythonStdlibEnvExtractor) CanExtract(ectx *pipeline.ExtractionContext) bool {
	text := ectx.Text()
	return strings.Contains(text, "getenv") || strings.Contains(text, "environ")
}

func (pythonStdlibEnvExtractor) Extract(ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	for _, p := range pythonStdlibPatterns {
		emitEnvVarMatches(ectx, p.re, p.pattern, yield)
	}
}

// pythonDotenvExtractor covers python-dotenv: inline dotenv_values()
// subscripts plus access through a variable the values were assigned to.
type pythonDotenvExtractor struct{}

var (
	dotenvInline     = regexp.MustCompile(`dotenv_values\s*\([^)]*\)\s*\[\s*["']([^"']+)["']`)
	dotenvAssignment = regexp.MustCompile(`(\w+)\s*=\s*dotenv_values\s*\(`)
)

func (pythonDotenvExtractor) Name() string  { return "python_dotenv" }
func (pythonDotenvExtractor) Priority() int { return 70 }

func (pythonDotenvExtractor) CanExtract(ectx *pipeline.ExtractionContext) bool {
	return strings.Contains(ectx.Text(), "dotenv")
}

func (pythonDotenvExtractor) Extract(ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	text := ectx.Text()
	emitEnvVarMatches(ectx, dotenvInline, "dotenv_values", yield)

	// Track config = dotenv_values(); config["VAR"] / config.get("VAR").
	for _, m := range dotenvAssignment.FindAllStringSubmatch(text, -1) {
		varName := regexp.QuoteMeta(m[1])
		subscript := regexp.MustCompile(varName + `\s*\[\s*["']([^"']+)["']`)
		getter := regexp.MustCompile(varName + `\.get\s*\(\s*["']([^"']+)["']`)
		emitEnvVarMatches(ectx, subscript, "dotenv_values", yield)
		emitEnvVarMatches(ectx, getter, "dotenv_values", yield)
	}
}

// pythonEnvironsExtractor covers the environs library's typed accessors.
type pythonEnvironsExtractor struct{}

var environsPattern = regexp.MustCompile(`env\.(?:str|int|bool|float|list|dict|json|url|path)\s*\(\s*["']([^"']+)["']`)

func (pythonEnvironsExtractor) Name() string  { return "python_environs" }
func (pythonEnvironsExtractor) Priority() int { return 60 }

func (pythonEnvironsExtractor) CanExtract(ectx *pipeline.ExtractionContext) bool {
	return strings.Contains(ectx.Text(), "env.")
}

func (pythonEnvironsExtractor) Extract(ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	emitEnvVarMatches(ectx, environsPattern, "environs", yield)
}

// pythonPydanticExtractor covers pydantic settings fields declared with an
// explicit env name.
type pythonPydanticExtractor struct{}

var pydanticFieldPattern = regexp.MustCompile(`Field\s*\([^)]*env\s*=\s*["']([^"']+)["']`)

func (pythonPydanticExtractor) Name() string  { return "python_pydantic" }
func (pythonPydanticExtractor) Priority() int { return 50 }

func (pythonPydanticExtractor) CanExtract(ectx *pipeline.ExtractionContext) bool {
	return strings.Contains(ectx.Text(), "Field")
}

func (pythonPydanticExtractor) Extract(ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	emitEnvVarMatches(ectx, pydanticFieldPattern, "pydantic_field", yield)
}

// pythonHeuristicExtractor flags UPPER_CASE assignments whose name ends in
// an env-like suffix and whose right-hand side mentions env machinery. The
// lowest priority means everything a specific extractor recognized is
// already in seen_ids and gets skipped here.
type pythonHeuristicExtractor struct{}

var envLikeAssignment = regexp.MustCompile(`(?m)^([A-Z][A-Z0-9_]*(?:_URL|_HOST|_PORT|_KEY|_SECRET|_TOKEN|_PASSWORD|_USER|_PATH|_DIR|_ENDPOINT|_URI|_DSN|_CONN))\s*=`)

var envIndicators = []string{"os.getenv", "os.environ", "getenv", "environ", "config", "settings", "env", "ENV"}

func (pythonHeuristicExtractor) Name() string  { return "python_heuristic" }
func (pythonHeuristicExtractor) Priority() int { return 10 }

func (pythonHeuristicExtractor) CanExtract(ectx *pipeline.ExtractionContext) bool {
	return true
}

func (pythonHeuristicExtractor) Extract(ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	text := ectx.Text()
	for _, m := range envLikeAssignment.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if !ectx.MarkSeen("env:" + name) {
			continue
		}

		lineStart := strings.LastIndexByte(text[:m[0]], '\n') + 1
		lineEnd := strings.IndexByte(text[m[1]:], '\n')
		if lineEnd == -1 {
			lineEnd = len(text)
		} else {
			lineEnd += m[1]
		}
		lineContent := text[lineStart:lineEnd]

		indicated := false
		for _, ind := range envIndicators {
			if strings.Contains(lineContent, ind) {
				indicated = true
				break
			}
		}
		if !indicated {
			continue
		}

		line := ectx.LineNumber(m[0])
		node := ectx.EnvVarNode(name, line, "heuristic", map[string]interface{}{"confidence": 0.7})
		if !yield(pipeline.EmitNode(node)) {
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ReadsEdge(node.ID, line, "heuristic"))) {
			return
		}
	}
}

// emitEnvVarMatches is the shared env-var emission loop: validate the name,
// dedup through the context, emit the node and its reads edge.
func emitEnvVarMatches(ectx *pipeline.ExtractionContext, re *regexp.Regexp, pattern string, yield func(pipeline.Emission) bool) {
	text := ectx.Text()
	stop := false
	matchAll(re, text, func(name string, offset int) {
		if stop || !isValidEnvVarName(name) {
			return
		}
		if !ectx.MarkSeen("env:" + name) {
			return
		}
		line := ectx.LineNumber(offset)
		node := ectx.EnvVarNode(name, line, pattern, nil)
		if !yield(pipeline.EmitNode(node)) {
			stop = true
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ReadsEdge(node.ID, line, pattern))) {
			stop = true
		}
	})
}
