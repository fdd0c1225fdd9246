package pipeline

import "context"

// Parser is the per-file-format plug-in contract. A single
// file may be handled by multiple parsers (e.g. both a generic JSON parser
// and a Terraform-plan-specific one); the dispatcher runs every parser
// whose CanParse reports true and merges their output.
type Parser interface {
	Name() string
	CanParse(path string) bool
	// Parse streams this file's nodes/edges into yield. It must emit the
	// file node first (rule 1), contains edges for extracted entities
	// (rule 2), and must never panic on malformed input — on decode
	// failure it should emit only the file node and return.
	Parse(ctx context.Context, ectx *ExtractionContext, yield func(Emission) bool)
}

// Extractor is a priority-ordered sub-plugin that can run inside a Parser
// over the same file. Multiple
// extractors may fire on one file; a higher-priority extractor's MarkSeen
// calls suppress duplicate emissions from a lower-priority one.
type Extractor interface {
	Name() string
	Priority() int
	CanExtract(ectx *ExtractionContext) bool
	Extract(ectx *ExtractionContext, yield func(Emission) bool)
}

// RunExtractors runs extractors in descending priority order over ectx,
// stopping early if yield returns false (consumer requested no more
// values — mirrors the Python generator's lazy-sequence contract).
func RunExtractors(extractors []Extractor, ectx *ExtractionContext, yield func(Emission) bool) {
	ordered := sortedByPriority(extractors)
	for _, ex := range ordered {
		if !ex.CanExtract(ectx) {
			continue
		}
		stop := false
		ex.Extract(ectx, func(e Emission) bool {
			if !yield(e) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}

func sortedByPriority(extractors []Extractor) []Extractor {
	out := make([]Extractor, len(extractors))
	copy(out, extractors)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority() > out[j-1].Priority(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
