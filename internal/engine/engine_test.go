package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/config"
	"github.com/leapstack-labs/leapcode/internal/reference"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"github.com/leapstack-labs/leapcode/internal/state"
	"github.com/leapstack-labs/leapcode/internal/testutil"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = t.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNew_InvalidWorkingDirectory(t *testing.T) {
	_, err := New(Config{WorkingDir: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, workspace.ErrInvalidWorkingDirectory)
}

func TestProjectsAndDocuments(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddProject("App", "app", []string{"Lib"})
	require.NoError(t, err)

	_, err = e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)
	_, err = e.AddDocument("b.star", "Lib", "y = 2\n")
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "App", "z = 3\n")
	require.NoError(t, err, "document names only need to be unique within a project")

	removed, err := e.RemoveDocument("b.star", "Lib")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = e.RemoveDocument("b.star", "Lib")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []string{"Lib", "App"}, e.ProjectNames())
	docs, err := e.Documents("Lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.star"}, docs)
	assert.True(t, e.HasDocument("a.star", "App"))
	assert.False(t, e.HasDocument("b.star", "Lib"))

	ns, err := e.DefaultNamespace("Lib")
	require.NoError(t, err)
	assert.Equal(t, "Lib", ns)
	ns, err = e.DefaultNamespace("App")
	require.NoError(t, err)
	assert.Equal(t, "app", ns)

	doc, err := e.Document("a.star", "Lib")
	require.NoError(t, err)
	assert.Equal(t, "Lib/a.star", doc.Path())
	assert.Equal(t, 1, doc.Version())
}

func TestProjectErrors(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)

	_, err = e.AddProject("Lib", "", nil)
	assert.ErrorIs(t, err, workspace.ErrDuplicateProject)

	_, err = e.AddProject("App", "", []string{"Lib"})
	assert.NoError(t, err)

	_, err = e.AddProject("Other", "", []string{"Missing"})
	assert.ErrorIs(t, err, workspace.ErrUnknownReference)
	assert.NotContains(t, e.ProjectNames(), "Other")

	_, err = e.AddDocument("a.star", "Missing", "")
	assert.ErrorIs(t, err, workspace.ErrUnknownProject)

	_, err = e.AddDocument("a.star", "Lib", "")
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "")
	assert.ErrorIs(t, err, workspace.ErrApplyFailed)

	_, err = e.RemoveDocument("a.star", "Missing")
	assert.ErrorIs(t, err, workspace.ErrUnknownProject)
}

func TestRemoveProject(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddProject("App", "", []string{"Lib"})
	require.NoError(t, err)

	_, err = e.RemoveProject("Lib")
	assert.ErrorIs(t, err, workspace.ErrApplyFailed, "App still references Lib")

	removed, err := e.RemoveProject("App")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = e.RemoveProject("Lib")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = e.RemoveProject("Lib")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, e.ProjectNames())
}

func TestScriptProject_SingleDocument(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := e.AddScriptProject("Console", nil, starctx.NewHostType("app", "version"))
	require.NoError(t, err)
	_, err = e.AddDocument("main.star", "Console", "v = version\n")
	require.NoError(t, err)

	before := e.Workspace().CurrentSolution()
	_, err = e.AddDocument("second.star", "Console", "")
	assert.ErrorIs(t, err, workspace.ErrProjectAlreadyHasDocument)
	assert.Same(t, before, e.Workspace().CurrentSolution())

	docs, err := e.Documents("Console")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.star"}, docs)

	// Removing the document frees the slot
	_, err = e.RemoveDocument("main.star", "Console")
	require.NoError(t, err)
	_, err = e.AddDocument("second.star", "Console", "")
	assert.NoError(t, err)
}

func TestConcurrentAddProjectAndReferences(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Base", "", nil)
	require.NoError(t, err)

	const pairs = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*pairs)
	for i := range pairs {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.AddProject(fmt.Sprintf("P%d", i), "", nil)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("dyn%d", i)
			errs <- e.AddReferences(reference.FromModule(name, starlark.StringDict{"v": starlark.MakeInt(i)}))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, name := range e.ProjectNames() {
		p, err := e.Project(name)
		require.NoError(t, err)
		counts := make(map[string]int)
		for _, d := range p.References() {
			counts[d.Name]++
		}
		for i := range pairs {
			assert.Equal(t, 1, counts[fmt.Sprintf("dyn%d", i)], "project %s, dyn%d", name, i)
		}
	}
	assert.Len(t, e.ProjectNames(), pairs+1)
}

func TestConcurrentAddProject(t *testing.T) {
	e := newTestEngine(t, Config{})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		duplicate int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.AddProject("Shared", "", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, workspace.ErrDuplicateProject):
				duplicate++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, duplicate)
	assert.Equal(t, []string{"Shared"}, e.ProjectNames())
}

func TestConcurrentApplyFromOneBaseline(t *testing.T) {
	e := newTestEngine(t, Config{})
	ws := e.Workspace()
	base := ws.CurrentSolution()

	first := base.AddProject(workspace.NewProject(workspace.ProjectInfo{Name: "First"}))
	second := base.AddProject(workspace.NewProject(workspace.ProjectInfo{Name: "Second"}))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, next := range []*workspace.Solution{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = ws.Apply(next)
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			winner = i
			continue
		}
		assert.ErrorIs(t, err, workspace.ErrApplyFailed)
	}
	require.NotEqual(t, -1, winner)
	assert.Equal(t, []string{[]string{"First", "Second"}[winner]}, e.ProjectNames())
}

func TestBuffers(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	id, err := e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)

	// Registered but not open
	assert.False(t, e.IsDocumentOpen("a.star", "Lib"))
	_, err = e.GetBuffer("a.star", "Lib")
	assert.ErrorIs(t, err, workspace.ErrNotOpen)
	assert.ErrorIs(t, e.ReplaceBuffer(id, "x = 2\n"), workspace.ErrNotOpen)
	_, err = e.GetBuffer("missing.star", "Lib")
	assert.ErrorIs(t, err, workspace.ErrNotFound)
	assert.False(t, e.OpenDocument("missing.star", "Lib"))

	assert.True(t, e.OpenDocument("a.star", "Lib"))
	assert.True(t, e.OpenDocument("a.star", "Lib"))
	assert.True(t, e.IsDocumentOpen("a.star", "Lib"))

	require.NoError(t, e.ReplaceBuffer(id, "x = 2\n"))
	text, err := e.GetBuffer("a.star", "Lib")
	require.NoError(t, err)
	assert.Equal(t, "x = 2\n", text)
	doc, err := e.Document("a.star", "Lib")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version())

	require.NoError(t, e.ChangeBuffer(id, workspace.Range{
		Start: workspace.Position{Line: 0, Column: 4},
		End:   workspace.Position{Line: 0, Column: 5},
	}, "40 + 2"))
	text, err = e.GetBuffer("a.star", "Lib")
	require.NoError(t, err)
	assert.Equal(t, "x = 40 + 2\n", text)

	err = e.ChangeBuffer(id, workspace.Range{
		Start: workspace.Position{Line: 5, Column: 0},
		End:   workspace.Position{Line: 5, Column: 1},
	}, "")
	assert.ErrorIs(t, err, workspace.ErrInvalidRange)

	assert.ErrorIs(t, e.ReplaceBuffer("nope", ""), workspace.ErrNotFound)

	assert.True(t, e.CloseDocument("a.star", "Lib"))
	assert.False(t, e.CloseDocument("a.star", "Lib"))

	// Reopen, then removal closes the buffer
	assert.True(t, e.OpenDocument("a.star", "Lib"))
	_, err = e.RemoveDocument("a.star", "Lib")
	require.NoError(t, err)
	assert.Empty(t, e.Workspace().OpenDocuments())
}

func TestChangeBuffer_FullRangeEqualsReplace(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)

	const original = "x = 1\ny = 2\n"
	const replacement = "z = 3\n"
	a, err := e.AddDocument("a.star", "Lib", original)
	require.NoError(t, err)
	b, err := e.AddDocument("b.star", "Lib", original)
	require.NoError(t, err)
	require.True(t, e.OpenDocument("a.star", "Lib"))
	require.True(t, e.OpenDocument("b.star", "Lib"))

	docA, err := e.Document("a.star", "Lib")
	require.NoError(t, err)
	require.NoError(t, e.ChangeBuffer(a, workspace.FullRange(docA), replacement))
	require.NoError(t, e.ReplaceBuffer(b, replacement))

	textA, err := e.GetBuffer("a.star", "Lib")
	require.NoError(t, err)
	textB, err := e.GetBuffer("b.star", "Lib")
	require.NoError(t, err)
	assert.Equal(t, textB, textA)

	docA, _ = e.Document("a.star", "Lib")
	docB, _ := e.Document("b.star", "Lib")
	assert.Equal(t, docB.Version(), docA.Version())
}

func TestConcurrentChangeBuffer(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	id, err := e.AddDocument("a.star", "Lib", "")
	require.NoError(t, err)
	require.True(t, e.OpenDocument("a.star", "Lib"))

	const edits = 20
	var wg sync.WaitGroup
	for range edits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.ChangeBuffer(id, workspace.Range{}, "x"))
		}()
	}
	wg.Wait()

	doc, err := e.Document("a.star", "Lib")
	require.NoError(t, err)
	assert.Len(t, doc.Text(), edits)
	assert.Equal(t, edits+1, doc.Version())
}

func TestSaveDocument(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, Config{WorkingDir: dir})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	id, err := e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)
	require.True(t, e.OpenDocument("a.star", "Lib"))
	require.NoError(t, e.ReplaceBuffer(id, "x = 2\n"))

	require.NoError(t, e.SaveDocument("a.star", "Lib"))
	content, err := OSFileSystem{}.ReadFile(filepath.Join(dir, "Lib", "a.star"))
	require.NoError(t, err)
	assert.Equal(t, "x = 2\n", string(content))

	assert.ErrorIs(t, e.SaveDocument("b.star", "Lib"), workspace.ErrNotFound)
}

func TestAddDocumentFromFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "src/util.star", "def helper():\n    return 1\n")
	e := newTestEngine(t, Config{WorkingDir: dir})
	_, err := e.AddProject("Lib", "", nil)
	require.NoError(t, err)

	_, err = e.AddDocumentFromFile("Lib", "src/util.star")
	require.NoError(t, err)

	doc, err := e.Document("util.star", "Lib")
	require.NoError(t, err)
	assert.Equal(t, "src/util.star", doc.Path())
	assert.Contains(t, doc.Text(), "def helper")

	_, err = e.AddDocumentFromFile("Lib", "src/missing.star")
	assert.Error(t, err)
}

func TestSearchPaths(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "scripts/util.star", "def greet(name):\n    return \"hi \" + name\n")
	e := newTestEngine(t, Config{WorkingDir: dir})

	_, err := e.ResolveReference("util")
	assert.ErrorIs(t, err, reference.ErrUnresolved)

	require.NoError(t, e.AddSearchPaths("scripts"))
	assert.Equal(t, []string{filepath.Join(dir, "scripts")}, e.SearchPaths())

	d, err := e.ResolveReference("util")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scripts", "util.star"), d.Path)

	e.RemoveSearchPaths("scripts")
	_, err = e.ResolveReference("util")
	assert.ErrorIs(t, err, reference.ErrUnresolved)

	assert.Error(t, e.AddSearchPaths(""))
}

func TestResolveReference_Defaults(t *testing.T) {
	e := newTestEngine(t, Config{})
	d, err := e.ResolveReference("json")
	require.NoError(t, err)
	assert.Equal(t, reference.KindModule, d.Kind())
}

func TestAddReferences(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.AddProject("Before", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Before", "v = consts.answer\n")
	require.NoError(t, err)

	require.NoError(t, e.AddReferences(reference.FromModule("consts", starlark.StringDict{
		"answer": starlark.MakeInt(42),
	})))
	assert.Error(t, e.AddReferences(reference.FromModule("consts", nil)), "names are unique")

	_, err = e.AddProject("After", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "After", "v = consts.answer\n")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Compile(ctx, "Before", "")
	assert.NoError(t, err)
	_, err = e.Compile(ctx, "After", "")
	assert.NoError(t, err)
}

func TestAddReferencePaths(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "lib/strings.star", "def shout(s):\n    \"\"\"Upper-cases s.\"\"\"\n    return s.upper()\n")
	e := newTestEngine(t, Config{WorkingDir: dir})

	refs, err := e.AddReferencePaths("lib/strings.star")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "strings", refs[0].Name)

	_, err = e.AddProject("App", "", nil)
	require.NoError(t, err)
	desc, ok := e.Describe("App", "strings", "shout")
	require.True(t, ok)
	assert.Contains(t, desc, "shout(s)")
	assert.Contains(t, desc, "Upper-cases s.")

	_, err = e.AddReferencePaths("lib/missing.star")
	assert.ErrorIs(t, err, reference.ErrUnresolved)
}

func TestDocProviders(t *testing.T) {
	e := newTestEngine(t, Config{
		DocProviders: func(d reference.Descriptor) reference.DocProvider {
			return reference.MapDocs{"answer": "the answer of " + d.Name}
		},
	})
	require.NoError(t, e.AddReferences(reference.FromModule("consts", starlark.StringDict{
		"answer": starlark.MakeInt(42),
	})))
	_, err := e.AddProject("App", "", nil)
	require.NoError(t, err)

	desc, ok := e.Describe("App", "consts", "answer")
	require.True(t, ok)
	assert.Equal(t, "the answer of consts", desc)
}

func TestDescribe(t *testing.T) {
	e := newTestEngine(t, Config{})
	host := &starctx.HostType{Name: "app", Members: []starctx.HostMember{
		{Name: "version", Doc: "application version"},
		{Name: "debug"},
	}}
	_, err := e.AddProject("Lib", "lib", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "def area(w, h):\n    \"\"\"Area of a rectangle.\"\"\"\n    return w * h\n")
	require.NoError(t, err)
	_, err = e.AddScriptProject("Console", []string{"Lib"}, host)
	require.NoError(t, err)
	_, err = e.AddDocument("main.star", "Console", "def run():\n    return 1\n")
	require.NoError(t, err)

	tests := []struct {
		name      string
		namespace string
		symbol    string
		want      string
		found     bool
	}{
		{"host member doc", "", "version", "application version", true},
		{"host member without doc", "", "debug", "app.debug", true},
		{"own document", "", "run", "run()", true},
		{"referenced project", "lib", "area", "area(w, h)\n\nArea of a rectangle.", true},
		{"default reference", "json", "encode", "json.encode", true},
		{"unknown symbol", "", "nope", "", false},
		{"unknown namespace", "nope", "x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, ok := e.Describe("Console", tt.namespace, tt.symbol)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Contains(t, desc, tt.want)
			}
		})
	}

	_, ok := e.Describe("Missing", "", "x")
	assert.False(t, ok)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "src/lib/a.star", "x = 1\n")
	testutil.WriteFile(t, dir, "src/lib/b.star", "y = x + 1\n")
	testutil.WriteFile(t, dir, "scripts/main.star", "v = lib.y + len(version)\n")
	testutil.WriteFile(t, dir, "refs/util.star", "def helper():\n    return 1\n")

	cfg := &config.WorkspaceConfig{
		SearchPaths: []string{"scripts"},
		References:  []config.ReferenceConfig{{Path: "refs/util.star"}},
		Projects: []config.ProjectConfig{
			{Name: "Lib", Namespace: "lib", Documents: []string{"src/lib/a.star", "src/lib/b.star"}},
			{
				Name:       "Console",
				Kind:       "script",
				References: []string{"Lib"},
				Host:       &config.HostConfig{Type: "app", Members: map[string]any{"version": "1.0"}},
				Documents:  []string{"scripts/main.star"},
			},
		},
	}
	config.ApplyDefaults(cfg)

	e := newTestEngine(t, Config{WorkingDir: dir})
	require.NoError(t, e.LoadManifest(cfg))

	assert.Equal(t, []string{"Lib", "Console"}, e.ProjectNames())
	assert.Equal(t, []string{filepath.Join(dir, "scripts")}, e.SearchPaths())
	_, err := e.ResolveReference("util")
	require.NoError(t, err)

	res, err := e.Compile(context.Background(), "Console", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, res.Exports)

	bad := &config.WorkspaceConfig{Projects: []config.ProjectConfig{{Name: "Bad", References: []string{"Nope"}}}}
	assert.ErrorIs(t, e.LoadManifest(bad), workspace.ErrUnknownReference)
}

func TestClose_Idempotent(t *testing.T) {
	e, err := New(Config{WorkingDir: t.TempDir(), StatePath: ":memory:", WatchSearchPaths: true})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestCloseDocument_LeavesEngineOpen(t *testing.T) {
	e, err := New(Config{WorkingDir: t.TempDir(), StatePath: ":memory:"})
	require.NoError(t, err)
	_, err = e.AddProject("Lib", "", nil)
	require.NoError(t, err)
	_, err = e.AddDocument("a.star", "Lib", "x = 1\n")
	require.NoError(t, err)

	require.True(t, e.OpenDocument("a.star", "Lib"))
	assert.True(t, e.CloseDocument("a.star", "Lib"))
	assert.False(t, e.IsDocumentOpen("a.star", "Lib"))

	// Buffers are independent of the engine lifecycle.
	_, err = e.Compile(context.Background(), "Lib", "")
	require.NoError(t, err)
	require.NotNil(t, e.Store())
	require.NoError(t, e.Close())
}

func TestNew_StatePath(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, Config{WorkingDir: dir, StatePath: ".leapcode/state.db"})
	require.NotNil(t, e.Store())

	_, err := OSFileSystem{}.Stat(filepath.Join(dir, ".leapcode", "state.db"))
	assert.NoError(t, err)
	_, ok := e.Store().(*state.SQLiteStore)
	assert.True(t, ok)
}

var _ compiler.Backend = (*recordingBackend)(nil)
