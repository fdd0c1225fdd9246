package parsers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// TerraformPlanParser reads `terraform show -json` plan output and emits
// the same infra_resource nodes the HCL parser would, so a repository that
// checks in plan files instead of (or alongside) .tf sources still lands in
// the graph. Both parsers can claim the same scan; the graph's merge rules
// collapse the duplicates.
type TerraformPlanParser struct{}

func NewTerraformPlanParser() *TerraformPlanParser { return &TerraformPlanParser{} }

func (p *TerraformPlanParser) Name() string { return "terraform_plan" }

func (p *TerraformPlanParser) CanParse(path string) bool {
	if !hasSuffix(path, ".json") {
		return false
	}
	lower := strings.ToLower(path)
	return strings.Contains(lower, "tfplan") || strings.Contains(lower, "plan")
}

// tfPlan mirrors the fragment of the plan format the graph cares about.
type tfPlan struct {
	PlannedValues struct {
		RootModule tfPlanModule `json:"root_module"`
	} `json:"planned_values"`
}

type tfPlanModule struct {
	Resources    []tfPlanResource `json:"resources"`
	ChildModules []tfPlanModule   `json:"child_modules"`
}

type tfPlanResource struct {
	Address string `json:"address"`
	Mode    string `json:"mode"`
	Type    string `json:"type"`
	Name    string `json:"name"`
}

func (p *TerraformPlanParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	var plan tfPlan
	if err := json.Unmarshal(ectx.Bytes, &plan); err != nil {
		return
	}

	p.emitModule(ectx, plan.PlannedValues.RootModule, yield)
}

func (p *TerraformPlanParser) emitModule(ectx *pipeline.ExtractionContext, mod tfPlanModule, yield func(pipeline.Emission) bool) bool {
	for _, res := range mod.Resources {
		if res.Type == "" || res.Name == "" {
			continue
		}
		var id string
		if res.Mode == "data" {
			id = graphmodel.InfraDataID(res.Type, res.Name)
		} else {
			id = graphmodel.InfraResourceID(res.Type, res.Name)
		}
		if !ectx.MarkSeen(id) {
			continue
		}
		node := ectx.InfraNode(id, res.Name, 0, res.Type, map[string]interface{}{
			"terraform_type": res.Type,
			"address":        res.Address,
			"source":         "tfplan",
		})
		if !yield(pipeline.EmitNode(node)) {
			return false
		}
		if !yield(pipeline.EmitEdge(graphmodel.Edge{
			SourceID:   ectx.FileID,
			TargetID:   id,
			Type:       graphmodel.EdgeProvisions,
			Confidence: 1.0,
			Metadata:   map[string]interface{}{"source": "tfplan"},
		})) {
			return false
		}
	}

	for _, child := range mod.ChildModules {
		if !p.emitModule(ectx, child, yield) {
			return false
		}
	}
	return true
}
