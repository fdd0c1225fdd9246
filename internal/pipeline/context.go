// Package pipeline drives extraction: walker -> dispatcher -> extractors
// -> merger. Parsers and extractors are plug-ins registered with a
// Dispatcher; the ExtractionContext factory methods guarantee every
// emitted node carries `path` and every emitted edge references the
// current file id.
package pipeline

import (
	"strings"
	"sync"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

// Emission is the sum type a Parser/Extractor yields: exactly one of Node
// or Edge is non-nil. Consumers switch on which arm is set instead of
// type-asserting on an interface value.
type Emission struct {
	Node *graphmodel.Node
	Edge *graphmodel.Edge
}

// EmitNode and EmitEdge wrap a value in the Emission sum type.
func EmitNode(n graphmodel.Node) Emission { return Emission{Node: &n} }
func EmitEdge(e graphmodel.Edge) Emission { return Emission{Edge: &e} }

// ExtractionContext is the shared, per-file state threaded through a
// parser's sub-extractors. Dedup (seen ids) is per-context, i.e. per file,
// never global.
type ExtractionContext struct {
	Path     string
	Bytes    []byte
	Language string
	FileHash string
	FileID   string

	textOnce sync.Once
	text     string

	mu      sync.Mutex
	seenIDs map[string]struct{}
}

// NewExtractionContext builds a context for a single file. FileID is
// always graphmodel.FileID(path) so every extractor in every parser that
// touches this file references the same file node.
func NewExtractionContext(path string, content []byte, language, fileHash string) *ExtractionContext {
	return &ExtractionContext{
		Path:     path,
		Bytes:    content,
		Language: language,
		FileHash: fileHash,
		FileID:   graphmodel.FileID(path),
		seenIDs:  make(map[string]struct{}),
	}
}

// Text lazily decodes Bytes as UTF-8 text; parsers receive bytes and this
// lazily-decoded text view.
func (c *ExtractionContext) Text() string {
	c.textOnce.Do(func() {
		c.text = string(c.Bytes)
	})
	return c.text
}

// LineNumber converts a byte offset into Text() into a 1-indexed line number.
func (c *ExtractionContext) LineNumber(offset int) int {
	text := c.Text()
	if offset > len(text) {
		offset = len(text)
	}
	return strings.Count(text[:offset], "\n") + 1
}

// MarkSeen records id as produced by this context and reports whether it
// was new — higher-priority extractors suppress duplicates in lower-
// priority ones by calling this first and bailing out on false.
func (c *ExtractionContext) MarkSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seenIDs[id]; ok {
		return false
	}
	c.seenIDs[id] = struct{}{}
	return true
}

// FileNode builds this context's code_file node. Every parser emits it
// before anything else so downstream consumers can attach to it.
func (c *ExtractionContext) FileNode(extraMetadata map[string]interface{}) graphmodel.Node {
	return graphmodel.Node{
		ID:       c.FileID,
		Name:     basename(c.Path),
		Type:     graphmodel.NodeCodeFile,
		Path:     c.Path,
		Language: c.Language,
		FileHash: c.FileHash,
		Metadata: extraMetadata,
	}
}

// ContainsEdge builds the file -> entity `contains` edge.
func (c *ExtractionContext) ContainsEdge(targetID string) graphmodel.Edge {
	return graphmodel.Edge{
		SourceID:   c.FileID,
		TargetID:   targetID,
		Type:       graphmodel.EdgeContains,
		Confidence: 1.0,
	}
}

// ReadsEdge builds a file -> resource `reads` edge, typically used for
// env-var / config-key references.
func (c *ExtractionContext) ReadsEdge(targetID string, line int, pattern string) graphmodel.Edge {
	meta := map[string]interface{}{}
	if pattern != "" {
		meta["pattern"] = pattern
	}
	if line > 0 {
		meta["line"] = line
	}
	return graphmodel.Edge{
		SourceID:   c.FileID,
		TargetID:   targetID,
		Type:       graphmodel.EdgeReads,
		Confidence: 1.0,
		Metadata:   meta,
	}
}

// ImportsEdge builds a file -> file `imports` edge.
func (c *ExtractionContext) ImportsEdge(targetID string, line int) graphmodel.Edge {
	meta := map[string]interface{}{}
	if line > 0 {
		meta["line"] = line
	}
	return graphmodel.Edge{
		SourceID:   c.FileID,
		TargetID:   targetID,
		Type:       graphmodel.EdgeImports,
		Confidence: 1.0,
		Metadata:   meta,
	}
}

// EnvVarNode builds an env_var node for name, always with Path set to the
// current file so every artifact stays openable in an editor.
func (c *ExtractionContext) EnvVarNode(name string, line int, source string, extra map[string]interface{}) graphmodel.Node {
	meta := map[string]interface{}{"source": source}
	if line > 0 {
		meta["line"] = line
	}
	for k, v := range extra {
		meta[k] = v
	}
	return graphmodel.Node{
		ID:       graphmodel.EnvVarID(name),
		Name:     name,
		Type:     graphmodel.NodeEnvVar,
		Path:     c.Path,
		Tokens:   tokenize(name),
		Metadata: meta,
	}
}

// InfraNode builds an infra_resource node.
func (c *ExtractionContext) InfraNode(id, name string, line int, infraType string, extra map[string]interface{}) graphmodel.Node {
	meta := map[string]interface{}{"resource_type": infraType}
	if line > 0 {
		meta["line"] = line
	}
	for k, v := range extra {
		meta[k] = v
	}
	return graphmodel.Node{
		ID:       id,
		Name:     name,
		Type:     graphmodel.NodeInfraResource,
		Path:     c.Path,
		Tokens:   tokenize(name),
		Metadata: meta,
	}
}

// ConfigNode builds a config_key node.
func (c *ExtractionContext) ConfigNode(id, name string, line int, system string, extra map[string]interface{}) graphmodel.Node {
	meta := map[string]interface{}{"system": system}
	if line > 0 {
		meta["line"] = line
	}
	for k, v := range extra {
		meta[k] = v
	}
	return graphmodel.Node{
		ID:       id,
		Name:     name,
		Type:     graphmodel.NodeConfigKey,
		Path:     c.Path,
		Tokens:   tokenize(name),
		Metadata: meta,
	}
}

// DataAssetNode builds a data_asset node.
func (c *ExtractionContext) DataAssetNode(id, name string, line int, assetType string, extra map[string]interface{}) graphmodel.Node {
	meta := map[string]interface{}{"asset_type": assetType}
	if line > 0 {
		meta["line"] = line
	}
	for k, v := range extra {
		meta[k] = v
	}
	return graphmodel.Node{
		ID:       id,
		Name:     name,
		Type:     graphmodel.NodeDataAsset,
		Path:     c.Path,
		Tokens:   tokenize(name),
		Metadata: meta,
	}
}

// EntityNode builds a code_entity node (function/class/method/type).
func (c *ExtractionContext) EntityNode(symbol, kind string, startLine, endLine int, extra map[string]interface{}) graphmodel.Node {
	meta := map[string]interface{}{"entity_kind": kind}
	if startLine > 0 {
		meta["line"] = startLine
	}
	if endLine > 0 {
		meta["end_line"] = endLine
	}
	for k, v := range extra {
		meta[k] = v
	}
	return graphmodel.Node{
		ID:       graphmodel.EntityID(c.Path, symbol),
		Name:     symbol,
		Type:     graphmodel.NodeCodeEntity,
		Path:     c.Path,
		Language: c.Language,
		Tokens:   tokenize(symbol),
		Metadata: meta,
	}
}

// VirtualFileNode builds the node for a file the walker never produced —
// an imported module resolved to a synthetic path. Its Path points at the
// target, not the importing file, and metadata marks it virtual.
func VirtualFileNode(path, name, language string) graphmodel.Node {
	return graphmodel.Node{
		ID:       graphmodel.FileID(path),
		Name:     name,
		Type:     graphmodel.NodeCodeFile,
		Path:     path,
		Language: language,
		Metadata: map[string]interface{}{"virtual": true},
	}
}

// FileTargetID returns the file id an import edge should target.
func FileTargetID(path string) string {
	return graphmodel.FileID(path)
}

func basename(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func tokenize(name string) []string {
	return graphmodel.Tokenize(name)
}
