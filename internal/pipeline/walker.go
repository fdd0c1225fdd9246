package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSkipDirs are the directory basenames the walker never descends
// into.
var DefaultSkipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"venv":         {},
	".venv":        {},
	"__pycache__":  {},
	"dist":         {},
	"build":        {},
	".next":        {},
	".cache":       {},
	"target":       {},
	"vendor":       {},
}

// FileTask is one file the walker has read, ready to be dispatched to
// parsers. Content is read eagerly; the text view stays lazy inside the
// ExtractionContext built from it.
type FileTask struct {
	Path    string
	Content []byte
	Hash    string
}

// Walker recursively enumerates files under a root, honoring a skip-set
// and include/exclude glob lists.
type Walker struct {
	SkipDirs map[string]struct{}
	Include  []string
	Exclude  []string
}

// NewWalker builds a Walker honoring the scan.include / scan.exclude
// globs.
func NewWalker(include, exclude []string) *Walker {
	return &Walker{SkipDirs: DefaultSkipDirs, Include: include, Exclude: exclude}
}

// Walk emits FileTask values on the returned channel as it reads files
// under root, closing the channel when the walk completes. Callers fan
// the channel out to parser worker goroutines.
func (w *Walker) Walk(root string) <-chan FileTask {
	out := make(chan FileTask)
	go func() {
		defer close(out)
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if _, skip := w.SkipDirs[d.Name()]; skip && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			if !w.included(rel) || w.excluded(rel) {
				return nil
			}
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}
			out <- FileTask{Path: rel, Content: content, Hash: HashContent(content)}
			return nil
		})
	}()
	return out
}

func (w *Walker) included(rel string) bool {
	if len(w.Include) == 0 {
		return true
	}
	for _, pattern := range w.Include {
		if globMatch(pattern, rel) {
			return true
		}
	}
	return false
}

func (w *Walker) excluded(rel string) bool {
	for _, pattern := range w.Exclude {
		if globMatch(pattern, rel) {
			return true
		}
	}
	return false
}

// globMatch supports the glob subset the config surface needs: a "**/"
// prefix (any depth) plus filepath.Match for the rest.
func globMatch(pattern, path string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	if pattern == "**/*" {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasSuffix(suffix, "/**") {
			dir := strings.TrimSuffix(suffix, "/**")
			return strings.Contains(path, "/"+dir+"/") || strings.HasPrefix(path, dir+"/")
		}
		for _, seg := range strings.Split(path, "/") {
			if ok, _ := filepath.Match(suffix, seg); ok {
				return true
			}
		}
		ok, _ := filepath.Match(suffix, filepath.Base(path))
		return ok
	}
	ok, _ := filepath.Match(pattern, path)
	return ok
}

// HashContent returns the SHA-256 hex digest of content, used as the
// stored file_hash for incremental rescanning.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DetectLanguage maps a file extension to the engine's language tag.
func DetectLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi", ".pyw":
		return "python"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx", ".mts", ".cts":
		return "typescript"
	case ".go":
		return "go"
	case ".java":
		return "java"
	case ".tf":
		return "hcl"
	case ".sql":
		return "sql"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
