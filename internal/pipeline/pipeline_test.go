package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnkn-io/jnkn/internal/graphmodel"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func TestWalkerSkipsDefaultDirsAndHonorsExcludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app.py":                  "x = 1\n",
		"node_modules/pkg/i.js":   "ignored\n",
		".git/config":             "ignored\n",
		"build/out.py":            "ignored\n",
		"generated/schema.py":     "x = 2\n",
		"src/ok.py":               "x = 3\n",
	})

	w := NewWalker(nil, []string{"generated/*"})
	var paths []string
	for task := range w.Walk(root) {
		paths = append(paths, task.Path)
		assert.NotEmpty(t, task.Hash)
	}

	assert.ElementsMatch(t, []string{"app.py", "src/ok.py"}, paths)
}

func TestWalkerIncludeGlobs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app.py":  "x\n",
		"main.tf": "y\n",
		"note.md": "z\n",
	})

	w := NewWalker([]string{"**/*.py", "**/*.tf"}, nil)
	var paths []string
	for task := range w.Walk(root) {
		paths = append(paths, task.Path)
	}
	assert.ElementsMatch(t, []string{"app.py", "main.tf"}, paths)
}

func TestRunExtractorsOrdersByPriorityAndDedups(t *testing.T) {
	ectx := NewExtractionContext("a.py", []byte("body"), "python", "hash")

	high := &fakeExtractor{name: "high", priority: 100, emitID: "env:X", source: "high"}
	low := &fakeExtractor{name: "low", priority: 10, emitID: "env:X", source: "low"}

	var sources []string
	RunExtractors([]Extractor{low, high}, ectx, func(em Emission) bool {
		if em.Node != nil {
			sources = append(sources, em.Node.Metadata["source"].(string))
		}
		return true
	})

	require.Len(t, sources, 1, "lower-priority duplicate must be suppressed")
	assert.Equal(t, "high", sources[0])
}

type fakeExtractor struct {
	name     string
	priority int
	emitID   string
	source   string
}

func (f *fakeExtractor) Name() string                        { return f.name }
func (f *fakeExtractor) Priority() int                       { return f.priority }
func (f *fakeExtractor) CanExtract(*ExtractionContext) bool  { return true }
func (f *fakeExtractor) Extract(ectx *ExtractionContext, yield func(Emission) bool) {
	if !ectx.MarkSeen(f.emitID) {
		return
	}
	yield(EmitNode(graphmodel.Node{
		ID: f.emitID, Name: f.emitID, Type: graphmodel.NodeEnvVar, Path: ectx.Path,
		Metadata: map[string]interface{}{"source": f.source},
	}))
}

// envParser is a minimal parser: the file node, then an env node per
// ENV(NAME) marker in the file body.
type envParser struct{}

func (envParser) Name() string              { return "env" }
func (envParser) CanParse(path string) bool { return strings.HasSuffix(path, ".py") }
func (envParser) Parse(_ context.Context, ectx *ExtractionContext, yield func(Emission) bool) {
	if !yield(EmitNode(ectx.FileNode(nil))) {
		return
	}
	for _, line := range strings.Split(ectx.Text(), "\n") {
		name, ok := strings.CutPrefix(line, "ENV(")
		if !ok {
			continue
		}
		name = strings.TrimSuffix(name, ")")
		node := ectx.EnvVarNode(name, 0, "marker", nil)
		if !yield(EmitNode(node)) {
			return
		}
		if !yield(EmitEdge(ectx.ReadsEdge(node.ID, 0, "marker"))) {
			return
		}
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestScannerBuildsGraphInParallel(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "ENV(ALPHA)\n",
		"b.py": "ENV(BETA)\nENV(ALPHA)\n",
		"c.py": "nothing\n",
	})

	scanner := NewScanner(NewWalker(nil, nil), NewDispatcher([]Parser{envParser{}}), nil, quietLogger(), DefaultScannerOptions())

	g := graphmodel.New()
	result, err := scanner.Scan(context.Background(), root, g)
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesScanned)
	_, ok := g.GetNode("env:ALPHA")
	assert.True(t, ok)
	_, ok = g.GetNode("env:BETA")
	assert.True(t, ok)

	// ALPHA read from both files.
	assert.Len(t, g.InEdges("env:ALPHA").Collect(), 2)
}

func TestScannerOrderIndependenceAcrossFiles(t *testing.T) {
	files := map[string]string{
		"a.py": "ENV(ONE)\n",
		"b.py": "ENV(TWO)\n",
	}

	scan := func() map[string]interface{} {
		root := writeTree(t, files)
		opts := DefaultScannerOptions()
		opts.Workers = 1
		scanner := NewScanner(NewWalker(nil, nil), NewDispatcher([]Parser{envParser{}}), nil, quietLogger(), opts)
		g := graphmodel.New()
		_, err := scanner.Scan(context.Background(), root, g)
		require.NoError(t, err)
		return map[string]interface{}{"nodes": g.NodeCount(), "edges": g.EdgeCount()}
	}

	assert.Equal(t, scan(), scan())
}

func TestScannerCancellation(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "ENV(A)\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := NewScanner(NewWalker(nil, nil), NewDispatcher([]Parser{envParser{}}), nil, quietLogger(), DefaultScannerOptions())
	_, err := scanner.Scan(ctx, root, graphmodel.New())
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestHashContentStable(t *testing.T) {
	assert.Equal(t, HashContent([]byte("abc")), HashContent([]byte("abc")))
	assert.NotEqual(t, HashContent([]byte("abc")), HashContent([]byte("abd")))
}
