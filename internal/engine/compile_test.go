package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/reference"
	"github.com/leapstack-labs/leapcode/internal/runner"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"github.com/leapstack-labs/leapcode/internal/state"
	"github.com/leapstack-labs/leapcode/internal/testutil"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// recordingBackend records requests and returns an empty result.
type recordingBackend struct {
	mu       sync.Mutex
	requests []*compiler.Request
}

func (b *recordingBackend) Compile(_ context.Context, req *compiler.Request) (*compiler.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return &compiler.Result{Project: req.Project, Module: req.Module}, nil
}

func TestCompile_CrossDocument(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("A.star", "Lib", "x = 1\n")
	require.NoError(t, err)
	_, err = e.AddDocument("B.star", "Lib", "y = x + 1\n")
	require.NoError(t, err)

	res, err := e.Compile(ctx, "Lib", "lib")
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "lib", res.Module)
	assert.Equal(t, []string{"x", "y"}, res.Exports)

	_, err = e.RemoveDocument("A.star", "Lib")
	require.NoError(t, err)

	_, err = e.Compile(ctx, "Lib", "lib")
	require.Error(t, err)
	assert.ErrorIs(t, err, compiler.ErrCompilationFailed)

	var cerr *compiler.CompilationError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Diagnostics, 1)
	assert.Equal(t, compiler.SeverityError, cerr.Diagnostics[0].Severity)
	assert.Equal(t, "B.star", cerr.Diagnostics[0].Document)
	assert.Contains(t, cerr.Diagnostics[0].Message, "x")
}

func TestCompile_DefaultModuleName(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Lib", "mylib", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)

	res, err := e.Compile(context.Background(), "Lib", "")
	require.NoError(t, err)
	assert.Equal(t, "mylib", res.Module)

	_, err = e.Compile(context.Background(), "Missing", "")
	assert.ErrorIs(t, err, workspace.ErrUnknownProject)
}

func TestCompile_DoesNotMutate(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)

	before := e.Workspace().CurrentSolution()
	_, err = e.Compile(context.Background(), "Lib", "")
	require.NoError(t, err)
	assert.Same(t, before, e.Workspace().CurrentSolution())
}

func TestCompile_ProjectReferences(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	_, err := e.AddProject("Base", "base", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Base", "unit = 10\n")
	require.NoError(t, err)
	_, err = e.AddProject("Lib", "lib", []string{"Base"})
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "def scale(v):\n    return v * base.unit\n")
	require.NoError(t, err)
	_, err = e.AddProject("App", "app", []string{"Lib"})
	require.NoError(t, err)
	_, err = e.AddDocument("main.star", "App", "result = lib.scale(4)\n")
	require.NoError(t, err)

	res, err := e.Compile(ctx, "App", "")
	require.NoError(t, err)

	img, err := res.DecodeImage()
	require.NoError(t, err)
	var projectRefs []string
	for _, ref := range img.References {
		if ref.Kind == compiler.RefProject {
			projectRefs = append(projectRefs, ref.Name)
		}
	}
	assert.Equal(t, []string{"lib"}, projectRefs, "only direct references are bound")

	// A broken dependency fails the dependent compile
	id, err := e.AddDocument("b.star", "Base", "broken = missing\n")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	_, err = e.Compile(ctx, "App", "")
	assert.ErrorIs(t, err, compiler.ErrCompilationFailed)
	assert.Contains(t, err.Error(), "referenced project Base")
}

func TestCompile_DependencyOrder(t *testing.T) {
	backend := &recordingBackend{}
	e := newTestEngine(t, Config{Backend: backend})

	_, err := e.AddProject("C", "", nil)
	require.NoError(t, err)
	_, err = e.AddProject("B", "", []string{"C"})
	require.NoError(t, err)
	_, err = e.AddProject("A", "", []string{"B", "C"})
	require.NoError(t, err)
	_, err = e.AddProject("Unrelated", "", nil)
	require.NoError(t, err)

	_, err = e.Compile(context.Background(), "A", "")
	require.NoError(t, err)

	var order []string
	for _, req := range backend.requests {
		order = append(order, req.Project)
	}
	assert.Equal(t, []string{"C", "B", "A"}, order)

	last := backend.requests[2]
	require.Len(t, last.Projects, 2)
	assert.Equal(t, "B", last.Projects[0].Project)
	assert.NotNil(t, last.Projects[0].Result)
	assert.Equal(t, "C", last.Projects[1].Project)
}

func TestCompile_IncludesByKind(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "scripts/util.star", "def greet(name):\n    return \"hi \" + name\n")
	e := newTestEngine(t, Config{WorkingDir: dir})
	require.NoError(t, e.AddSearchPaths("scripts"))
	ctx := context.Background()

	const src = "load(\"util\", \"greet\")\nmsg = greet(\"you\")\n"

	_, err := e.AddScriptProject("Console", nil, nil)
	require.NoError(t, err)
	_, err = e.AddDocument("main.star", "Console", src)
	require.NoError(t, err)
	res, err := e.Compile(ctx, "Console", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"msg"}, res.Exports, "loaded names stay file-local")

	// Code projects do not see search paths
	_, err = e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", src)
	require.NoError(t, err)
	_, err = e.Compile(ctx, "Lib", "")
	assert.ErrorIs(t, err, compiler.ErrCompilationFailed)

	// Removing the search path unresolves the script's load
	e.RemoveSearchPaths("scripts")
	_, err = e.Compile(ctx, "Console", "")
	assert.ErrorIs(t, err, compiler.ErrCompilationFailed)
}

func TestCompile_HyphenatedInclude(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "scripts/my-lib.star", "def greet(name):\n    return \"hi \" + name\n")
	e := newTestEngine(t, Config{WorkingDir: dir})
	require.NoError(t, e.AddSearchPaths("scripts"))

	d, err := e.ResolveReference("my-lib")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scripts", "my-lib.star"), d.Path)

	_, err = e.AddScriptProject("Console", nil, nil)
	require.NoError(t, err)
	_, err = e.AddDocument("main.star", "Console", "load(\"my-lib\", \"greet\")\nmsg = greet(\"you\")\n")
	require.NoError(t, err)

	ctx := context.Background()
	res, err := e.Compile(ctx, "Console", "")
	require.NoError(t, err)

	exports, err := runner.New().Run(ctx, res.Image, nil)
	require.NoError(t, err)
	assert.Equal(t, `"hi you"`, exports["msg"].String())
}

func TestCompile_ScriptHost(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddScriptProject("Console", nil, starctx.NewHostType("app", "version"))
	require.NoError(t, err)
	_, err = e.AddDocument("main.star", "Console", "v = version\n")
	require.NoError(t, err)

	_, err = e.Compile(context.Background(), "Console", "")
	require.NoError(t, err)

	_, err = e.AddScriptProject("Bare", nil, nil)
	require.NoError(t, err)
	_, err = e.AddDocument("main.star", "Bare", "v = version\n")
	require.NoError(t, err)
	_, err = e.Compile(context.Background(), "Bare", "")
	assert.ErrorIs(t, err, compiler.ErrCompilationFailed)
}

func TestCompileSubmission(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	_, err := e.AddScriptProject("Console", nil, nil)
	require.NoError(t, err)
	id, err := e.AddDocument("main.star", "Console", "a = 1\n")
	require.NoError(t, err)
	require.True(t, e.OpenDocument("main.star", "Console"))

	first, err := e.CompileSubmission(ctx, "Console", "s1", nil)
	require.NoError(t, err)

	require.NoError(t, e.ReplaceBuffer(id, "b = a + 1\n"))
	_, err = e.Compile(ctx, "Console", "s2")
	assert.ErrorIs(t, err, compiler.ErrCompilationFailed, "a is not in scope without the previous submission")

	second, err := e.CompileSubmission(ctx, "Console", "s2", first)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, second.Carried)
	assert.Equal(t, []string{"a", "b"}, second.Scope())

	_, err = e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.CompileSubmission(ctx, "Lib", "", nil)
	assert.Error(t, err)
}

func TestCompile_Canceled(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Compile(ctx, "Lib", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmit(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, Config{WorkingDir: dir})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)

	res, out, err := e.Emit(context.Background(), "Lib", "lib", "out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "lib"+reference.ImageExt), out.Image)
	assert.Equal(t, filepath.Join(dir, "out", "lib"+compiler.SymbolsExt), out.Symbols)

	data, err := OSFileSystem{}.ReadFile(out.Image)
	require.NoError(t, err)
	assert.Equal(t, res.Image, data)

	// The emitted image resolves as a reference
	d, err := reference.FromPath(out.Image, "", dir)
	require.NoError(t, err)
	assert.Equal(t, reference.KindImage, d.Kind())
}

func TestCompile_History(t *testing.T) {
	e := newTestEngine(t, Config{StatePath: ":memory:"})
	ctx := context.Background()

	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)

	_, err = e.Compile(ctx, "Lib", "")
	require.NoError(t, err)
	_, err = e.AddDocument("b.star", "Lib", "y = missing\n")
	require.NoError(t, err)
	_, err = e.Compile(ctx, "Lib", "")
	require.Error(t, err)

	recs, err := e.Store().ListCompiles(ctx, "Lib", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	statuses := []state.CompileStatus{recs[0].Status, recs[1].Status}
	assert.ElementsMatch(t, []state.CompileStatus{state.CompileStatusSucceeded, state.CompileStatusFailed}, statuses)

	for _, rec := range recs {
		full, err := e.Store().GetCompile(ctx, rec.ID)
		require.NoError(t, err)
		if full.Status == state.CompileStatusFailed {
			assert.Equal(t, 1, full.Errors)
			assert.Equal(t, 2, full.Documents)
			require.Len(t, full.Diagnostics, 1)
			assert.Equal(t, "b.star", full.Diagnostics[0].Document)
		} else {
			assert.NotEmpty(t, full.ImageHash)
			assert.Positive(t, full.ImageSize)
		}
	}
}

func TestCompile_HistoryLimit(t *testing.T) {
	e := newTestEngine(t, Config{StatePath: ":memory:", HistoryLimit: 2})
	ctx := context.Background()
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)

	for range 4 {
		_, err := e.Compile(ctx, "Lib", "")
		require.NoError(t, err)
	}
	recs, err := e.Store().ListCompiles(ctx, "Lib", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
