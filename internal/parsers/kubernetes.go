package parsers

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// KubernetesParser reads workload manifests and records which environment
// variables the containers consume — both literal `env` entries and
// `envFrom` config map / secret references. A YAML file may hold several
// documents; each is decoded independently.
type KubernetesParser struct{}

func NewKubernetesParser() *KubernetesParser { return &KubernetesParser{} }

func (p *KubernetesParser) Name() string { return "kubernetes" }

func (p *KubernetesParser) CanParse(path string) bool {
	return hasSuffix(path, ".yaml", ".yml")
}

type k8sManifest struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name      string `yaml:"name"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metadata"`
	Spec struct {
		Template struct {
			Spec k8sPodSpec `yaml:"spec"`
		} `yaml:"template"`
		// Bare pods carry containers directly under spec.
		Containers []k8sContainer `yaml:"containers"`
	} `yaml:"spec"`
}

type k8sPodSpec struct {
	Containers     []k8sContainer `yaml:"containers"`
	InitContainers []k8sContainer `yaml:"initContainers"`
}

type k8sContainer struct {
	Name string `yaml:"name"`
	Env  []struct {
		Name string `yaml:"name"`
	} `yaml:"env"`
	EnvFrom []struct {
		ConfigMapRef struct {
			Name string `yaml:"name"`
		} `yaml:"configMapRef"`
		SecretRef struct {
			Name string `yaml:"name"`
		} `yaml:"secretRef"`
	} `yaml:"envFrom"`
}

func (p *KubernetesParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	text := ectx.Text()
	if !strings.Contains(text, "kind:") {
		return
	}

	var manifests []k8sManifest
	decoder := yaml.NewDecoder(strings.NewReader(text))
	for {
		var m k8sManifest
		if err := decoder.Decode(&m); err != nil {
			break
		}
		if m.Kind != "" {
			manifests = append(manifests, m)
		}
	}
	if len(manifests) == 0 {
		return
	}

	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	for _, m := range manifests {
		containers := m.Spec.Template.Spec.Containers
		containers = append(containers, m.Spec.Template.Spec.InitContainers...)
		containers = append(containers, m.Spec.Containers...)

		for _, c := range containers {
			for _, env := range c.Env {
				if !isValidEnvVarName(env.Name) {
					continue
				}
				envID := graphmodel.EnvVarID(env.Name)
				if ectx.MarkSeen(envID) {
					node := ectx.EnvVarNode(env.Name, 0, "kubernetes", map[string]interface{}{
						"workload":  m.Metadata.Name,
						"container": c.Name,
					})
					if !yield(pipeline.EmitNode(node)) {
						return
					}
				}
				// The manifest provides the variable into the container's
				// environment, it does not consume it.
				if !yield(pipeline.EmitEdge(graphmodel.Edge{
					SourceID:   ectx.FileID,
					TargetID:   envID,
					Type:       graphmodel.EdgeProvides,
					Confidence: 1.0,
					Metadata:   map[string]interface{}{"source": "kubernetes", "container": c.Name},
				})) {
					return
				}
			}

			for _, ref := range c.EnvFrom {
				for _, source := range []struct {
					system string
					name   string
				}{
					{"configmap", ref.ConfigMapRef.Name},
					{"secret", ref.SecretRef.Name},
				} {
					system, name := source.system, source.name
					if name == "" {
						continue
					}
					id := graphmodel.ConfigKeyID(system, name)
					if ectx.MarkSeen(id) {
						node := ectx.ConfigNode(id, name, 0, system, map[string]interface{}{
							"workload":  m.Metadata.Name,
							"container": c.Name,
						})
						if !yield(pipeline.EmitNode(node)) {
							return
						}
					}
					if !yield(pipeline.EmitEdge(ectx.ReadsEdge(id, 0, "envFrom"))) {
						return
					}
				}
			}
		}
	}
}
