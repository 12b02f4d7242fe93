package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapcode/internal/cli/config"
	"github.com/leapstack-labs/leapcode/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) testutil.Result {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	return testutil.Execute(t, NewRootCmd(), args...)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCmd()

	flags := []string{"config", "workspace", "state", "output-dir", "search-path", "watch", "history-limit", "verbose", "output"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"version", "init", "projects", "compile", "run", "repl", "describe", "history", "lsp", "completion"} {
		assert.True(t, names[want], "subcommand %q should be registered", want)
	}
}

func TestVersion(t *testing.T) {
	res := run(t, "version")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "leapcode v"+Version)
}

func TestCompletion(t *testing.T) {
	res := run(t, "completion", "bash")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "leapcode")

	res = run(t, "completion", "tcsh")
	assert.Error(t, res.Err)
}

func TestInitThenRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")

	res := run(t, "init", dir)
	require.NoError(t, res.Err)

	res = run(t, "--workspace", dir, "--state", ":memory:", "run", "hello")
	require.NoError(t, res.Err, res.ErrOut)
	assert.Equal(t, "Hello, world!\n", res.Out)
}

func TestWorkspace_CompileAndRun(t *testing.T) {
	dir := testutil.SetupTestWorkspace(t)

	res := run(t, "-w", dir, "compile")
	require.NoError(t, res.Err, res.ErrOut)
	assert.FileExists(t, filepath.Join(dir, "build", "arith.lcm"))
	assert.FileExists(t, filepath.Join(dir, "build", "stats.lcs"))

	res = run(t, "-w", dir, "run", "report")
	require.NoError(t, res.Err, res.ErrOut)
	assert.Equal(t, "mean=2\n", res.Out)

	res = run(t, "-w", dir, "describe", "stats", "arith.add")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "add(a, b)")
	assert.Contains(t, res.Out, "Returns a + b.")
}

func TestWorkspace_OutputDirFlag(t *testing.T) {
	dir := testutil.SetupTestWorkspace(t)
	out := filepath.Join(t.TempDir(), "modules")

	res := run(t, "-w", dir, "--output-dir", out, "compile", "arith")
	require.NoError(t, res.Err, res.ErrOut)
	assert.FileExists(t, filepath.Join(out, "arith.lcm"))
	assert.NoFileExists(t, filepath.Join(dir, "build", "arith.lcm"))
}

func TestWorkspace_JSONOutput(t *testing.T) {
	dir := testutil.SetupTestWorkspace(t)

	res := run(t, "-w", dir, "-o", "json", "projects")
	require.NoError(t, res.Err, res.ErrOut)
	testutil.AssertNoANSI(t, res.Out)

	var projects []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Out), &projects))
	require.Len(t, projects, 3)
	assert.Equal(t, "arith", projects[0]["name"])
}

func TestWorkspace_InvalidOutputFormat(t *testing.T) {
	dir := testutil.SetupTestWorkspace(t)

	res := run(t, "-w", dir, "-o", "yaml", "projects")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid configuration")
}

func TestWorkspace_History(t *testing.T) {
	dir := testutil.SetupTestWorkspace(t)

	res := run(t, "-w", dir, "compile", "stats")
	require.NoError(t, res.Err, res.ErrOut)

	res = run(t, "-w", dir, "-o", "json", "history")
	require.NoError(t, res.Err, res.ErrOut)

	var recs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "stats", recs[0]["Project"])
	assert.Equal(t, "succeeded", recs[0]["Status"])
}
