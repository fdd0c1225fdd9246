package parsers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// OpenLineageParser ingests OpenLineage run events — a single JSON object
// or an array of them. Jobs become job nodes, input/output datasets become
// data assets, and the run's reads/writes become edges at full confidence:
// lineage events are observed behavior, not inference.
type OpenLineageParser struct{}

func NewOpenLineageParser() *OpenLineageParser { return &OpenLineageParser{} }

func (p *OpenLineageParser) Name() string { return "openlineage" }

func (p *OpenLineageParser) CanParse(path string) bool {
	return hasSuffix(path, ".json")
}

type olEvent struct {
	EventType string `json:"eventType"`
	EventTime string `json:"eventTime"`
	Run       struct {
		RunID string `json:"runId"`
	} `json:"run"`
	Job struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	} `json:"job"`
	Inputs  []olDataset `json:"inputs"`
	Outputs []olDataset `json:"outputs"`
}

type olDataset struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Facets    struct {
		Schema struct {
			Fields []struct {
				Name string `json:"name"`
			} `json:"fields"`
		} `json:"schema"`
	} `json:"facets"`
}

func (p *OpenLineageParser) Parse(ctx context.Context, ectx *pipeline.ExtractionContext, yield func(pipeline.Emission) bool) {
	text := ectx.Text()
	if !strings.Contains(text, `"job"`) || !strings.Contains(text, `"namespace"`) {
		return
	}

	events, ok := decodeEvents(ectx.Bytes)
	if !ok || len(events) == 0 {
		return
	}

	if !yield(pipeline.EmitNode(ectx.FileNode(nil))) {
		return
	}

	for _, event := range events {
		if event.EventType != "COMPLETE" && event.EventType != "RUNNING" {
			continue
		}
		namespace := event.Job.Namespace
		if namespace == "" {
			namespace = "default"
		}
		if event.Job.Name == "" {
			continue
		}

		jobID := graphmodel.JobID(namespace, event.Job.Name)
		if ectx.MarkSeen(jobID) {
			node := graphmodel.Node{
				ID:     jobID,
				Name:   event.Job.Name,
				Type:   graphmodel.NodeJob,
				Path:   ectx.Path,
				Tokens: graphmodel.Tokenize(event.Job.Name),
				Metadata: map[string]interface{}{
					"namespace":  namespace,
					"source":     "openlineage",
					"run_id":     event.Run.RunID,
					"event_time": event.EventTime,
				},
			}
			if !yield(pipeline.EmitNode(node)) {
				return
			}
			if !yield(pipeline.EmitEdge(ectx.ContainsEdge(jobID))) {
				return
			}
		}

		for _, ds := range event.Inputs {
			if !p.emitDataset(ectx, ds, jobID, graphmodel.EdgeReads, yield) {
				return
			}
		}
		for _, ds := range event.Outputs {
			if !p.emitDataset(ectx, ds, jobID, graphmodel.EdgeWrites, yield) {
				return
			}
		}
	}
}

func (p *OpenLineageParser) emitDataset(ectx *pipeline.ExtractionContext, ds olDataset, jobID string, edgeType graphmodel.EdgeType, yield func(pipeline.Emission) bool) bool {
	if ds.Name == "" {
		return true
	}
	namespace := ds.Namespace
	if namespace == "" {
		namespace = "default"
	}
	datasetID := graphmodel.DataAssetID(namespace, ds.Name)

	if ectx.MarkSeen(datasetID) {
		var schemaFields []string
		for _, f := range ds.Facets.Schema.Fields {
			schemaFields = append(schemaFields, f.Name)
		}
		meta := map[string]interface{}{
			"namespace": namespace,
			"source":    "openlineage",
		}
		if len(schemaFields) > 0 {
			meta["schema_fields"] = schemaFields
		}
		node := ectx.DataAssetNode(datasetID, ds.Name, 0, "dataset", meta)
		if !yield(pipeline.EmitNode(node)) {
			return false
		}
	}

	return yield(pipeline.EmitEdge(graphmodel.Edge{
		SourceID:   jobID,
		TargetID:   datasetID,
		Type:       edgeType,
		Confidence: 1.0,
		Metadata:   map[string]interface{}{"source": "openlineage"},
	}))
}

// decodeEvents accepts either one event object or an array of them.
func decodeEvents(raw []byte) ([]olEvent, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var events []olEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, false
		}
		return events, true
	}
	var event olEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, false
	}
	return []olEvent{event}, true
}
