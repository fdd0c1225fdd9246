package parsers

import (
	"context"
	"regexp"
	"strings"

	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// JavaParser extracts Java type and method declarations plus the usual
// configuration surfaces: System.getenv/getProperty and Spring's @Value
// placeholders and environment accessor.
type JavaParser struct{}

func NewJavaParser() *JavaParser { return &JavaParser{} }

func (p *JavaParser) Name() string { return "java" }

func (p *JavaParser) CanParse(path string) bool {
	return hasSuffix(path, ".java")
}

var (
	javaTypeDef = regexp.MustCompile(`(?m)^\s*(?:public|protected|private|abstract|final|static|\s)*(class|interface|enum|record)\s+(\w+)`)
	// Method declarations: a visibility modifier followed by a return type
	// and a name with a parameter list, excluding control-flow keywords.
	javaMethodDef = regexp.MustCompile(`(?m)^\s*(?:public|protected|private)[\w\s<>\[\],.]*?\s(\w+)\s*\([^;{]*\)\s*(?:throws [\w\s,.]+)?\{`)
	javaImport    = regexp.MustCompile(`(?m)^import\s+(?:static\s+)?([\w.]+)\s*;`)

	javaGetenv      = regexp.MustCompile(`System\.getenv\s*\(\s*"([^"]+)"\s*\)`)
	javaGetProperty = regexp.MustCompile(`System\.getProperty\s*\(\s*"([^"]+)"\s*\)`)
	javaSpringValue = regexp.MustCompile(`@Value\s*\(\s*"\$\{\s*([^}:]+?)\s*(?::[^}]*)?\}"\s*\)`)
	javaSpringEnv   = regexp.MustCompile(`(?:env|environment)\.getProperty\s*\(\s*"([^"]+)"\s*\)`)
)

func (p *JavaParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	text := ectx.Text()

	for _, m := range javaTypeDef.FindAllStringSubmatchIndex(text, -1) {
		kind := text[m[2]:m[3]]
		name := text[m[4]:m[5]]
		if !ectx.MarkSeen(entityKey(name)) {
			continue
		}
		line := ectx.LineNumber(m[0])
		node := ectx.EntityNode(name, "class", line, 0, map[string]interface{}{"java_kind": kind})
		if !yield(pipeline.EmitNode(node)) {
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ContainsEdge(node.ID))) {
			return
		}
	}

	stop := false
	matchAll(javaMethodDef, text, func(name string, offset int) {
		if stop || isJavaKeyword(name) || !ectx.MarkSeen(entityKey(name)) {
			return
		}
		line := ectx.LineNumber(offset)
		node := ectx.EntityNode(name, "function", line, 0, nil)
		if !yield(pipeline.EmitNode(node)) {
			stop = true
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ContainsEdge(node.ID))) {
			stop = true
		}
	})
	if stop {
		return
	}

	matchAll(javaImport, text, func(importPath string, offset int) {
		if stop || !ectx.MarkSeen("import:"+importPath) {
			return
		}
		targetPath := strings.ReplaceAll(importPath, ".", "/") + ".java"
		virtual := pipeline.VirtualFileNode(targetPath, importPath, "java")
		if !yield(pipeline.EmitNode(virtual)) {
			stop = true
			return
		}
		if !yield(pipeline.EmitEdge(ectx.ImportsEdge(virtual.ID, ectx.LineNumber(offset)))) {
			stop = true
		}
	})
	if stop {
		return
	}

	emitEnvVarMatches(ectx, javaGetenv, "System.getenv", yield)
	emitEnvVarMatches(ectx, javaGetProperty, "System.getProperty", yield)
	p.emitSpringProperties(ectx, text, yield)
}

// emitSpringProperties records Spring property placeholders. Property keys
// are dotted lowercase names, not env vars, so they become config_key
// nodes; an ALL_CAPS placeholder is treated as an env var instead.
func (p *JavaParser) emitSpringProperties(ectx *pipeline.ExtractionContext, text string, yield func(pipeline.Emission) bool) {
	for _, re := range []*regexp.Regexp{javaSpringValue, javaSpringEnv} {
		stop := false
		matchAll(re, text, func(key string, offset int) {
			if stop || key == "" {
				return
			}
			line := ectx.LineNumber(offset)
			if isValidEnvVarName(key) {
				if !ectx.MarkSeen("env:" + key) {
					return
				}
				node := ectx.EnvVarNode(key, line, "spring", nil)
				if !yield(pipeline.EmitNode(node)) || !yield(pipeline.EmitEdge(ectx.ReadsEdge(node.ID, line, "spring"))) {
					stop = true
				}
				return
			}
			id := "config:spring:" + key
			if !ectx.MarkSeen(id) {
				return
			}
			node := ectx.ConfigNode(id, key, line, "spring", nil)
			if !yield(pipeline.EmitNode(node)) || !yield(pipeline.EmitEdge(ectx.ReadsEdge(id, line, "spring"))) {
				stop = true
			}
		})
		if stop {
			return
		}
	}
}

func isJavaKeyword(name string) bool {
	switch name {
	case "if", "for", "while", "switch", "catch", "return", "new", "super", "this":
		return true
	}
	return false
}
