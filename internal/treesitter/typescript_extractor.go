package treesitter

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractTypeScriptEntities walks a TypeScript syntax tree. TypeScript
// shares most node kinds with JavaScript and adds interfaces, type aliases,
// and return-type annotations.
func extractTypeScriptEntities(root *sitter.Node, code []byte) []Entity {
	var entities []Entity

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		switch node.Kind() {
		case "function_declaration":
			if e, ok := tsFunction(node, code); ok {
				entities = append(entities, e)
			}
		case "arrow_function", "function_expression":
			if e, ok := jsAssignedFunction(node, code); ok {
				entities = append(entities, e)
			}
		case "class_declaration":
			if e, ok := namedEntity(node, code, EntityClass); ok {
				entities = append(entities, e)
			}
		case "method_definition", "method_signature":
			if e, ok := tsMethod(node, code); ok {
				entities = append(entities, e)
			}
		case "interface_declaration", "type_alias_declaration":
			// Interfaces and type aliases participate in the graph the
			// same way classes do.
			if e, ok := namedEntity(node, code, EntityClass); ok {
				entities = append(entities, e)
			}
		case "import_statement":
			if e, ok := jsImport(node, code); ok {
				entities = append(entities, e)
			}
		}

		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}

	walk(root)
	return entities
}

func tsFunction(node *sitter.Node, code []byte) (Entity, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Entity{}, false
	}

	funcName := getNodeText(nameNode, code)
	params := getNodeText(node.ChildByFieldName("parameters"), code)

	signature := fmt.Sprintf("function %s%s", funcName, params)
	if returnType := node.ChildByFieldName("return_type"); returnType != nil {
		signature += ": " + getNodeText(returnType, code)
	}

	return Entity{
		Kind:      EntityFunction,
		Name:      funcName,
		Signature: signature,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}

func tsMethod(node *sitter.Node, code []byte) (Entity, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Entity{}, false
	}

	methodName := getNodeText(nameNode, code)
	params := getNodeText(node.ChildByFieldName("parameters"), code)

	signature := methodName + params
	if returnType := node.ChildByFieldName("return_type"); returnType != nil {
		signature += ": " + getNodeText(returnType, code)
	}

	fullName := methodName
	if className := enclosingName(node, code, "class_declaration"); className != "" {
		fullName = fmt.Sprintf("%s.%s", className, methodName)
	}

	return Entity{
		Kind:      EntityFunction,
		Name:      fullName,
		Signature: signature,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}
