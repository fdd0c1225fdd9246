package treesitter

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// getNodeText extracts a node's source text using byte offsets.
func getNodeText(node *sitter.Node, code []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if int(end) > len(code) {
		end = uint(len(code))
	}
	return string(code[start:end])
}

// enclosingName walks up to the nearest ancestor of the given kind and
// returns its name field, or "" when the node is top-level.
func enclosingName(node *sitter.Node, code []byte, ancestorKind string) string {
	for current := node.Parent(); current != nil; current = current.Parent() {
		if current.Kind() == ancestorKind {
			return getNodeText(current.ChildByFieldName("name"), code)
		}
	}
	return ""
}

// namedEntity builds an entity of the given kind from any node with a name
// field.
func namedEntity(node *sitter.Node, code []byte, kind EntityKind) (Entity, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Entity{}, false
	}
	return Entity{
		Kind:      kind,
		Name:      getNodeText(nameNode, code),
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}
