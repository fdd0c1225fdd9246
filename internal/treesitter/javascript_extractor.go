package treesitter

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractJavaScriptEntities walks a JavaScript syntax tree for functions,
// classes, methods, and imports.
func extractJavaScriptEntities(root *sitter.Node, code []byte) []Entity {
	var entities []Entity

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		switch node.Kind() {
		case "function_declaration":
			if e, ok := jsFunction(node, code); ok {
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
		case "method_definition":
			if e, ok := jsMethod(node, code); ok {
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

func jsFunction(node *sitter.Node, code []byte) (Entity, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Entity{}, false
	}

	funcName := getNodeText(nameNode, code)
	params := getNodeText(node.ChildByFieldName("parameters"), code)

	return Entity{
		Kind:      EntityFunction,
		Name:      funcName,
		Signature: fmt.Sprintf("function %s%s", funcName, params),
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}

// jsAssignedFunction names an arrow function or function expression after
// the variable or property it is assigned to. Anonymous functions (inline
// callbacks) are skipped; they would only generate entity-id noise.
func jsAssignedFunction(node *sitter.Node, code []byte) (Entity, bool) {
	parent := node.Parent()
	if parent == nil {
		return Entity{}, false
	}

	var funcName string
	switch parent.Kind() {
	case "variable_declarator":
		funcName = getNodeText(parent.ChildByFieldName("name"), code)
	case "assignment_expression":
		funcName = getNodeText(parent.ChildByFieldName("left"), code)
	}
	if funcName == "" {
		return Entity{}, false
	}

	params := getNodeText(node.ChildByFieldName("parameters"), code)

	return Entity{
		Kind:      EntityFunction,
		Name:      funcName,
		Signature: fmt.Sprintf("const %s = %s => ...", funcName, params),
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}

func jsMethod(node *sitter.Node, code []byte) (Entity, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Entity{}, false
	}

	methodName := getNodeText(nameNode, code)
	params := getNodeText(node.ChildByFieldName("parameters"), code)

	fullName := methodName
	if className := enclosingName(node, code, "class_declaration"); className != "" {
		fullName = fmt.Sprintf("%s.%s", className, methodName)
	}

	return Entity{
		Kind:      EntityFunction,
		Name:      fullName,
		Signature: methodName + params,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}

func jsImport(node *sitter.Node, code []byte) (Entity, bool) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		return Entity{}, false
	}

	importPath := strings.Trim(getNodeText(sourceNode, code), "\"'`")

	return Entity{
		Kind:       EntityImport,
		Name:       importPath,
		ImportPath: importPath,
		StartLine:  int(node.StartPosition().Row) + 1,
		EndLine:    int(node.EndPosition().Row) + 1,
	}, true
}
