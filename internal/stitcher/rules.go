package stitcher

import (
	"sort"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// Rule is a polymorphic value over {name, apply -> new edges}. Rules
// never mutate the graph directly; the stitcher adds their output edges
// under the standard merge rule.
type Rule interface {
	Name() string
	Apply(index *TokenIndex, cfg MatchConfig) []graphmodel.Edge
}

// infraHierarchyRank orders infrastructure resource types from most to
// least containing (vpc > subnet > instance).
var infraHierarchyRank = map[string]int{
	"vpc":             5,
	"subnet":          4,
	"security_group":  3,
	"instance":        2,
	"container":       1,
}

// EnvVarToInfraRule links infra_resource --provides--> env_var by token
// overlap.
type EnvVarToInfraRule struct{}

func (EnvVarToInfraRule) Name() string { return "env_to_infra" }

func (EnvVarToInfraRule) Apply(index *TokenIndex, cfg MatchConfig) []graphmodel.Edge {
	var edges []graphmodel.Edge
	envNodes := index.NodesOfType(graphmodel.NodeEnvVar)
	infraNodes := index.NodesOfType(graphmodel.NodeInfraResource)

	for _, env := range envNodes {
		for _, infra := range infraNodes {
			matched, score := SignificantTokenOverlap(env.Tokens, infra.Tokens, cfg)
			if len(matched) < cfg.MinOverlapTokens || score < cfg.MinConfidence {
				continue
			}
			edges = append(edges, graphmodel.Edge{
				SourceID:   infra.ID,
				TargetID:   env.ID,
				Type:       graphmodel.EdgeProvides,
				Confidence: score,
				Metadata: map[string]interface{}{
					"via":            "env_to_infra",
					"matched_tokens": matched,
				},
			})
		}
	}
	return edges
}

// InfraToConfigRule links infra_resource --provides--> config_key by token
// overlap. Terraform outputs, locals and variables are config_key nodes, so
// they appear here only as targets; the rule never links one config_key
// node to another.
type InfraToConfigRule struct{}

func (InfraToConfigRule) Name() string { return "infra_to_config" }

func (InfraToConfigRule) Apply(index *TokenIndex, cfg MatchConfig) []graphmodel.Edge {
	var edges []graphmodel.Edge
	infraNodes := index.NodesOfType(graphmodel.NodeInfraResource)
	configNodes := index.NodesOfType(graphmodel.NodeConfigKey)

	for _, infra := range infraNodes {
		for _, cfgNode := range configNodes {
			matched, score := SignificantTokenOverlap(infra.Tokens, cfgNode.Tokens, cfg)
			if len(matched) < cfg.MinOverlapTokens || score < cfg.MinConfidence {
				continue
			}
			edges = append(edges, graphmodel.Edge{
				SourceID:   infra.ID,
				TargetID:   cfgNode.ID,
				Type:       graphmodel.EdgeProvides,
				Confidence: score,
				Metadata: map[string]interface{}{
					"via":            "infra_to_config",
					"matched_tokens": matched,
				},
			})
		}
	}
	return edges
}

// InfraToInfraRule emits hierarchy edges between infrastructure
// resources. Direction comes from the rank table: the higher-rank node, a
// VPC over a subnet, is always the source of the depends_on edge.
type InfraToInfraRule struct{}

func (InfraToInfraRule) Name() string { return "infra_to_infra" }

func (InfraToInfraRule) Apply(index *TokenIndex, cfg MatchConfig) []graphmodel.Edge {
	var edges []graphmodel.Edge
	infraNodes := index.NodesOfType(graphmodel.NodeInfraResource)

	for _, a := range infraNodes {
		for _, b := range infraNodes {
			if a.ID >= b.ID {
				continue // avoid double-counting and self-pairs; lexicographic order below re-sorts anyway
			}
			matched, score := SignificantTokenOverlap(a.Tokens, b.Tokens, cfg)
			if len(matched) < cfg.MinOverlapTokens || score < cfg.MinConfidence {
				continue
			}
			rankA := resourceRank(a)
			rankB := resourceRank(b)
			if rankA == rankB {
				continue // no hierarchy relation between same-rank resources
			}
			src, tgt := a, b
			if rankB > rankA {
				src, tgt = b, a
			}
			edges = append(edges, graphmodel.Edge{
				SourceID:   src.ID,
				TargetID:   tgt.ID,
				Type:       graphmodel.EdgeDependsOn,
				Confidence: score,
				Metadata: map[string]interface{}{
					"via":            "infra_to_infra",
					"matched_tokens": matched,
				},
			})
		}
	}
	return edges
}

func resourceRank(n graphmodel.Node) int {
	resourceType, _ := n.Metadata["resource_type"].(string)
	if rank, ok := infraHierarchyRank[resourceType]; ok {
		return rank
	}
	return 0
}

// DataAssetAliasingRule emits equivalence depends_on edges between
// data_asset nodes sharing a normalized name across namespaces, at a
// fixed tunable confidence.
type DataAssetAliasingRule struct {
	Confidence float64
}

func (DataAssetAliasingRule) Name() string { return "data_alias" }

func (r DataAssetAliasingRule) Apply(index *TokenIndex, cfg MatchConfig) []graphmodel.Edge {
	confidence := r.Confidence
	if confidence == 0 {
		confidence = 0.6
	}

	byNormalizedName := make(map[string][]graphmodel.Node)
	for _, n := range index.NodesOfType(graphmodel.NodeDataAsset) {
		key := Normalize(n.Name)
		byNormalizedName[key] = append(byNormalizedName[key], n)
	}

	var edges []graphmodel.Edge
	for _, group := range byNormalizedName {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				edges = append(edges, graphmodel.Edge{
					SourceID:   group[i].ID,
					TargetID:   group[j].ID,
					Type:       graphmodel.EdgeDependsOn,
					Confidence: confidence,
					Metadata: map[string]interface{}{
						"via": "data_alias",
					},
				})
			}
		}
	}
	return edges
}
