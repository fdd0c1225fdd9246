// Package parsers holds the file-format plug-ins the extraction pipeline
// dispatches to. Every parser implements pipeline.Parser: it emits the
// file-level node first, a contains edge per extracted entity, and
// reference edges to artifacts that may not exist yet. The exceptions are
// the PySpark parser, which leaves the file node to the Python parser, and
// the OpenLineage and Kubernetes parsers, which emit nothing for a file
// whose content is not theirs. Parsers are
// best-effort heuristics; on malformed input they emit the file node and
// stop, never failing the scan.
package parsers

import (
	"regexp"
	"strings"

	"github.com/jnkn-io/jnkn/internal/pipeline"
)

// All returns every registered parser in dispatch order.
func All() []pipeline.Parser {
	return []pipeline.Parser{
		NewPythonParser(),
		NewJavaScriptParser(),
		NewGoParser(),
		NewJavaParser(),
		NewTerraformParser(),
		NewTerraformPlanParser(),
		NewDbtManifestParser(),
		NewDbtSQLParser(),
		NewOpenLineageParser(),
		NewKubernetesParser(),
		NewPySparkParser(),
	}
}

// envVarName accepts conventional environment-variable names. Rejecting
// lowercase and leading digits filters out string-literal false positives
// from the regex extractors.
var envVarName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

func isValidEnvVarName(name string) bool {
	return len(name) >= 2 && envVarName.MatchString(name)
}

func hasSuffix(path string, suffixes ...string) bool {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// matchAll applies re over text and calls fn with each match's first
// capture group and its byte offset.
func matchAll(re *regexp.Regexp, text string, fn func(value string, offset int)) {
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		if len(m) < 4 || m[2] < 0 {
			continue
		}
		fn(text[m[2]:m[3]], m[0])
	}
}
