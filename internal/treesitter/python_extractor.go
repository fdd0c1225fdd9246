package treesitter

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractPythonEntities walks a Python syntax tree for function/class
// definitions and import statements.
func extractPythonEntities(root *sitter.Node, code []byte) []Entity {
	var entities []Entity

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		switch node.Kind() {
		case "function_definition":
			if e, ok := pythonFunction(node, code); ok {
				entities = append(entities, e)
			}
		case "class_definition":
			if e, ok := pythonClass(node, code); ok {
				entities = append(entities, e)
			}
		case "import_statement", "import_from_statement":
			entities = append(entities, pythonImports(node, code)...)
		}

		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}

	walk(root)
	return entities
}

func pythonFunction(node *sitter.Node, code []byte) (Entity, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Entity{}, false
	}

	funcName := getNodeText(nameNode, code)
	params := getNodeText(node.ChildByFieldName("parameters"), code)

	signature := fmt.Sprintf("def %s%s", funcName, params)
	if returnType := node.ChildByFieldName("return_type"); returnType != nil {
		signature += " -> " + getNodeText(returnType, code)
	}

	// Methods get qualified with their class name so entity ids stay
	// unique within a file.
	fullName := funcName
	if className := enclosingName(node, code, "class_definition"); className != "" {
		fullName = fmt.Sprintf("%s.%s", className, funcName)
	}

	return Entity{
		Kind:      EntityFunction,
		Name:      fullName,
		Signature: signature,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}

func pythonClass(node *sitter.Node, code []byte) (Entity, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Entity{}, false
	}

	className := getNodeText(nameNode, code)
	signature := "class " + className
	if superclasses := node.ChildByFieldName("superclasses"); superclasses != nil {
		signature += getNodeText(superclasses, code)
	}

	return Entity{
		Kind:      EntityClass,
		Name:      className,
		Signature: signature,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
	}, true
}

func pythonImports(node *sitter.Node, code []byte) []Entity {
	var out []Entity

	appendImport := func(importPath string) {
		out = append(out, Entity{
			Kind:       EntityImport,
			Name:       importPath,
			ImportPath: importPath,
			StartLine:  int(node.StartPosition().Row) + 1,
			EndLine:    int(node.EndPosition().Row) + 1,
		})
	}

	if node.Kind() == "import_statement" {
		// import module / import module.submodule / import module as alias
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			appendImport(getNodeText(nameNode, code))
		}
		return out
	}

	// from module import name
	if moduleNode := node.ChildByFieldName("module_name"); moduleNode != nil {
		appendImport(getNodeText(moduleNode, code))
	}
	return out
}
