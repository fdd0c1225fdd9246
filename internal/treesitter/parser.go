// Package treesitter extracts declarations and imports from Python,
// JavaScript, and TypeScript sources using the tree-sitter grammars. It is
// deliberately small: callers get a flat entity list and decide themselves
// what becomes a graph node.
package treesitter

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// LanguageParser wraps a tree-sitter parser with a language grammar.
// Always call Close() - the parser holds CGO-allocated memory.
type LanguageParser struct {
	parser   *sitter.Parser
	langName string
}

// Supported reports whether a grammar is available for lang.
func Supported(lang string) bool {
	switch lang {
	case "javascript", "jsx", "typescript", "tsx", "python":
		return true
	}
	return false
}

// NewLanguageParser creates a parser for the given language tag.
func NewLanguageParser(lang string) (*LanguageParser, error) {
	parser := sitter.NewParser()
	if parser == nil {
		return nil, fmt.Errorf("failed to create tree-sitter parser")
	}

	var language *sitter.Language
	switch lang {
	case "javascript", "jsx":
		language = sitter.NewLanguage(tree_sitter_javascript.Language())
	case "typescript":
		language = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case "tsx":
		language = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	case "python":
		language = sitter.NewLanguage(tree_sitter_python.Language())
	default:
		parser.Close()
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	if err := parser.SetLanguage(language); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set language %s: %w", lang, err)
	}

	return &LanguageParser{parser: parser, langName: lang}, nil
}

// Close releases parser resources.
func (lp *LanguageParser) Close() {
	if lp.parser != nil {
		lp.parser.Close()
	}
}

// Extract parses code and returns its declarations and imports.
func (lp *LanguageParser) Extract(code []byte) ([]Entity, error) {
	tree := lp.parser.Parse(code, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse code")
	}
	defer tree.Close()

	root := tree.RootNode()
	switch lp.langName {
	case "javascript", "jsx":
		return extractJavaScriptEntities(root, code), nil
	case "typescript", "tsx":
		return extractTypeScriptEntities(root, code), nil
	case "python":
		return extractPythonEntities(root, code), nil
	}
	return nil, fmt.Errorf("no extractor for language: %s", lp.langName)
}

// Extract is the one-shot convenience: parse code as lang, return the
// entities, release everything.
func Extract(lang string, code []byte) ([]Entity, error) {
	lp, err := NewLanguageParser(lang)
	if err != nil {
		return nil, err
	}
	defer lp.Close()
	return lp.Extract(code)
}
