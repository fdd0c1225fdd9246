package graphmodel

// EdgeType is the closed set of edge kinds.
type EdgeType string

const (
	EdgeImports    EdgeType = "imports"
	EdgeReads      EdgeType = "reads"
	EdgeWrites     EdgeType = "writes"
	EdgeProvides   EdgeType = "provides"
	EdgeProvisions EdgeType = "provisions"
	EdgeContains   EdgeType = "contains"
	EdgeDependsOn  EdgeType = "depends_on"
)

// Edge is a directed labeled relation between two node ids.
type Edge struct {
	SourceID   string                 `json:"source_id"`
	TargetID   string                 `json:"target_id"`
	Type       EdgeType               `json:"type"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Key returns the edge's identity tuple: (source_id, target_id, type).
func (e Edge) Key() EdgeKey {
	return EdgeKey{SourceID: e.SourceID, TargetID: e.TargetID, Type: e.Type}
}

// EdgeKey is the edge identity tuple used for merge-by-key dedup.
type EdgeKey struct {
	SourceID string
	TargetID string
	Type     EdgeType
}

// Clone returns a copy with its own metadata map.
func (e Edge) Clone() Edge {
	c := e
	if e.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// MergeEdges applies the edge merge rule: on collision the
// higher-confidence edge wins; on ties metadata is shallow-merged into the
// existing edge.
func MergeEdges(existing, incoming Edge) Edge {
	if incoming.Confidence > existing.Confidence {
		merged := incoming.Clone()
		if merged.Metadata == nil && len(existing.Metadata) > 0 {
			merged.Metadata = make(map[string]interface{})
		}
		for k, v := range existing.Metadata {
			if _, ok := merged.Metadata[k]; !ok {
				merged.Metadata[k] = v
			}
		}
		return merged
	}
	merged := existing.Clone()
	if merged.Metadata == nil && len(incoming.Metadata) > 0 {
		merged.Metadata = make(map[string]interface{}, len(incoming.Metadata))
	}
	for k, v := range incoming.Metadata {
		merged.Metadata[k] = v
	}
	return merged
}
