package parsers

import (
	"context"
	"regexp"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// GoParser extracts Go declarations and configuration reads with line-
// anchored regexes. os.Getenv/LookupEnv produce env_var nodes; viper reads
// produce config_key nodes, which feed the config stitching rules rather
// than the env one.
type GoParser struct{}

func NewGoParser() *GoParser { return &GoParser{} }

func (p *GoParser) Name() string { return "go" }

func (p *GoParser) CanParse(path string) bool {
	return hasSuffix(path, ".go")
}

var (
	goFuncDef   = regexp.MustCompile(`(?m)^func\s+(\w+)\s*\(`)
	goMethodDef = regexp.MustCompile(`(?m)^func\s+\(\s*\w+\s+\*?(\w+)\s*\)\s+(\w+)\s*\(`)
	goTypeDef   = regexp.MustCompile(`(?m)^type\s+(\w+)\s+(struct|interface)`)

	goImportBlock  = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
	goImportSingle = regexp.MustCompile(`(?m)^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportLine   = regexp.MustCompile(`"([^"]+)"`)

	goGetenv    = regexp.MustCompile(`(?:os|syscall)\.Getenv\s*\(\s*"([^"]+)"\s*\)`)
	goLookupEnv = regexp.MustCompile(`os\.LookupEnv\s*\(\s*"([^"]+)"\s*\)`)
	goViperGet  = regexp.MustCompile(`viper\.Get(?:String|Int|Bool|Float64|Duration|StringSlice)\s*\(\s*"([^"]+)"\s*\)`)
)

func (p *GoParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	text := ectx.Text()

	if !p.emitDefinitions(ectx, text, yield) {
		return
	}
	if !p.emitImports(ectx, text, yield) {
		return
	}

	emitEnvVarMatches(ectx, goGetenv, "os.Getenv", yield)
	emitEnvVarMatches(ectx, goLookupEnv, "os.LookupEnv", yield)
	p.emitViperKeys(ectx, text, yield)
}

func (p *GoParser) emitDefinitions(ectx *pipeline.ExtractionContext, text string, yield func(pipeline.Emission) bool) bool {
	emit := func(name, kind string, offset int) bool {
		if !ectx.MarkSeen(entityKey(name)) {
			return true
		}
		line := ectx.LineNumber(offset)
		node := ectx.EntityNode(name, kind, line, 0, nil)
		if !yield(pipeline.EmitNode(node)) {
			return false
		}
		return yield(pipeline.EmitEdge(ectx.ContainsEdge(node.ID)))
	}

	ok := true
	matchAll(goFuncDef, text, func(name string, offset int) {
		if ok {
			ok = emit(name, "function", offset)
		}
	})
	if !ok {
		return false
	}

	for _, m := range goMethodDef.FindAllStringSubmatchIndex(text, -1) {
		receiver := text[m[2]:m[3]]
		method := text[m[4]:m[5]]
		if !emit(receiver+"."+method, "function", m[0]) {
			return false
		}
	}

	matchAll(goTypeDef, text, func(name string, offset int) {
		if ok {
			ok = emit(name, "class", offset)
		}
	})
	return ok
}

// emitImports handles both the grouped import block and single import
// lines. Import paths are kept verbatim as virtual file ids; resolving
// them against a module root is beyond what a heuristic scan needs.
func (p *GoParser) emitImports(ectx *pipeline.ExtractionContext, text string, yield func(pipeline.Emission) bool) bool {
	emit := func(importPath string, offset int) bool {
		if importPath == "" || !ectx.MarkSeen("import:"+importPath) {
			return true
		}
		virtual := pipeline.VirtualFileNode(importPath, importPath, "go")
		if !yield(pipeline.EmitNode(virtual)) {
			return false
		}
		return yield(pipeline.EmitEdge(ectx.ImportsEdge(virtual.ID, ectx.LineNumber(offset))))
	}

	if block := goImportBlock.FindStringSubmatchIndex(text); block != nil {
		body := text[block[2]:block[3]]
		for _, m := range goImportLine.FindAllStringSubmatchIndex(body, -1) {
			if !emit(body[m[2]:m[3]], block[2]+m[0]) {
				return false
			}
		}
	}

	ok := true
	matchAll(goImportSingle, text, func(importPath string, offset int) {
		if ok {
			ok = emit(importPath, offset)
		}
	})
	return ok
}

// emitViperKeys records viper.Get* calls as config_key reads; the keys are
// dotted lowercase names, so they tokenize well for stitching.
func (p *GoParser) emitViperKeys(ectx *pipeline.ExtractionContext, text string, yield func(pipeline.Emission) bool) {
	stop := false
	matchAll(goViperGet, text, func(key string, offset int) {
		if stop || key == "" {
			return
		}
		id := graphmodel.ConfigKeyID("viper", key)
		if !ectx.MarkSeen(id) {
			return
		}
		line := ectx.LineNumber(offset)
		node := ectx.ConfigNode(id, key, line, "viper", nil)
		if !yield(pipeline.EmitNode(node)) {
			stop = true
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ReadsEdge(id, line, "viper.Get"))) {
			stop = true
		}
	})
}
