// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/cobra"
)

// SetupTestWorkspace creates a temporary workspace with one code project
// (arith), one project referencing it (stats) and one script project
// (report) bound to a console host.
func SetupTestWorkspace(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	files := map[string]string{
		"leapcode.yaml": `output_dir: build
state_path: .leapcode/state.db
projects:
  - name: arith
    documents: [arith/add.star, arith/mul.star]
  - name: stats
    references: [arith]
    documents: [stats/mean.star]
  - name: report
    kind: script
    references: [stats]
    host:
      type: console
      members:
        values: [1, 2, 3]
    documents: [report.star]
`,
		"arith/add.star": `def add(a, b):
    """Returns a + b."""
    return a + b
`,
		"arith/mul.star": `def mul(a, b):
    return a * b

def square(x):
    return mul(x, x)
`,
		"stats/mean.star": `def mean(xs):
    """Returns the arithmetic mean of xs."""
    total = 0
    for x in xs:
        total = arith.add(total, x)
    return total // len(xs)
`,
		"report.star": `print("mean=%d" % stats.mean(values))
`,
	}

	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // test fixture
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	return tmpDir
}

// Result is the captured outcome of a command execution.
type Result struct {
	Out    string
	ErrOut string
	Err    error
}

// Execute runs cmd with args and captures its output.
func Execute(t *testing.T, cmd *cobra.Command, args ...string) Result {
	t.Helper()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return Result{Out: out.String(), ErrOut: errOut.String(), Err: err}
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
