package parsers

import (
	"context"
	"regexp"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// TerraformParser extracts the block structure of .tf files: resources,
// data sources, locals, outputs, modules, and variables. Apart from the
// entry names inside locals blocks, block bodies are not interpreted — the
// stitcher connects these nodes to their consumers by name tokens.
type TerraformParser struct{}

func NewTerraformParser() *TerraformParser { return &TerraformParser{} }

func (p *TerraformParser) Name() string { return "terraform" }

func (p *TerraformParser) CanParse(path string) bool {
	return hasSuffix(path, ".tf")
}

var (
	tfResourceBlock = regexp.MustCompile(`resource\s+"([^"]+)"\s+"([^"]+)"\s*\{`)
	tfDataBlock     = regexp.MustCompile(`data\s+"([^"]+)"\s+"([^"]+)"\s*\{`)
	tfOutputBlock   = regexp.MustCompile(`output\s+"([^"]+)"\s*\{`)
	tfModuleBlock   = regexp.MustCompile(`module\s+"([^"]+)"\s*\{`)
	tfVariableBlock = regexp.MustCompile(`variable\s+"([^"]+)"\s*\{`)
	tfLocalsBlock   = regexp.MustCompile(`(?s)locals\s*\{(.*?)\n\}`)
	tfLocalEntry    = regexp.MustCompile(`(?m)^\s*(\w+)\s*=`)
)

func (p *TerraformParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	text := ectx.Text()

	for _, m := range tfResourceBlock.FindAllStringSubmatchIndex(text, -1) {
		resType := text[m[2]:m[3]]
		resName := text[m[4]:m[5]]
		id := graphmodel.InfraResourceID(resType, resName)
		if !p.emitInfra(ectx, id, resName, resType, ectx.LineNumber(m[0]), yield) {
			return
		}
	}

	for _, m := range tfDataBlock.FindAllStringSubmatchIndex(text, -1) {
		dataType := text[m[2]:m[3]]
		dataName := text[m[4]:m[5]]
		id := graphmodel.InfraDataID(dataType, dataName)
		if !p.emitInfra(ectx, id, dataName, dataType, ectx.LineNumber(m[0]), yield) {
			return
		}
	}

	ok := true
	matchAll(tfOutputBlock, text, func(name string, offset int) {
		if ok {
			ok = p.emitConfigProducer(ectx, graphmodel.InfraOutputID(name), name, "output", ectx.LineNumber(offset), yield)
		}
	})
	if !ok {
		return
	}

	matchAll(tfModuleBlock, text, func(name string, offset int) {
		if ok {
			ok = p.emitInfra(ectx, graphmodel.InfraModuleID(name), name, "module", ectx.LineNumber(offset), yield)
		}
	})
	if !ok {
		return
	}

	matchAll(tfVariableBlock, text, func(name string, offset int) {
		if ok {
			ok = p.emitConfigProducer(ectx, "infra:variable."+name, name, "variable", ectx.LineNumber(offset), yield)
		}
	})
	if !ok {
		return
	}

	// locals {} bodies: each top-level assignment is a named value other
	// configuration can consume.
	for _, block := range tfLocalsBlock.FindAllStringSubmatchIndex(text, -1) {
		body := text[block[2]:block[3]]
		for _, m := range tfLocalEntry.FindAllStringSubmatchIndex(body, -1) {
			name := body[m[2]:m[3]]
			if !p.emitConfigProducer(ectx, graphmodel.InfraLocalID(name), name, "local", ectx.LineNumber(block[2]+m[0]), yield) {
				return
			}
		}
	}
}

func (p *TerraformParser) emitInfra(ectx *pipeline.ExtractionContext, id, name, infraType string, line int, yield func(pipeline.Emission) bool) bool {
	if !ectx.MarkSeen(id) {
		return true
	}
	node := ectx.InfraNode(id, name, line, infraType, map[string]interface{}{"terraform_type": infraType})
	if !yield(pipeline.EmitNode(node)) {
		return false
	}
	return yield(pipeline.EmitEdge(graphmodel.Edge{
		SourceID:   ectx.FileID,
		TargetID:   id,
		Type:       graphmodel.EdgeProvisions,
		Confidence: 1.0,
		Metadata:   map[string]interface{}{"line": line},
	}))
}

// emitConfigProducer covers outputs, variables, and locals: values the
// rest of the stack consumes as configuration, so they stitch through the
// config rule rather than the resource hierarchy.
func (p *TerraformParser) emitConfigProducer(ectx *pipeline.ExtractionContext, id, name, kind string, line int, yield func(pipeline.Emission) bool) bool {
	if !ectx.MarkSeen(id) {
		return true
	}
	node := ectx.ConfigNode(id, name, line, "terraform", map[string]interface{}{"terraform_kind": kind})
	if !yield(pipeline.EmitNode(node)) {
		return false
	}
	return yield(pipeline.EmitEdge(graphmodel.Edge{
		SourceID:   ectx.FileID,
		TargetID:   id,
		Type:       graphmodel.EdgeProvides,
		Confidence: 1.0,
		Metadata:   map[string]interface{}{"line": line},
	}))
}
