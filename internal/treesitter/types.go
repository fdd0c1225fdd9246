package treesitter

// EntityKind classifies what a source-code extractor found.
type EntityKind string

const (
	EntityFunction EntityKind = "function"
	EntityClass    EntityKind = "class"
	EntityImport   EntityKind = "import"
)

// Entity is one declaration or import found in a source file. The caller
// owns file identity (path, language, hash); an Entity carries only what
// the syntax tree knows.
type Entity struct {
	Kind       EntityKind
	Name       string
	Signature  string // for functions/methods
	ImportPath string // for imports
	StartLine  int
	EndLine    int
}
