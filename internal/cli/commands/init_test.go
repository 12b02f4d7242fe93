package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	sharedcfg "github.com/leapstack-labs/leapcode/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string)
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name:    "init empty directory",
			wantErr: false,
			wantFiles: []string{
				"leapcode.yaml",
				".gitignore",
				"core/greet.star",
				"core/names.star",
				"app/main.star",
				"scripts/hello.star",
				"lib/strings.star",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapcode.yaml"), []byte("existing"), 0o600)
			},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapcode.yaml"), []byte("existing"), 0o600)
			},
			args:      []string{"--force"},
			wantErr:   false,
			wantFiles: []string{"leapcode.yaml", "core/greet.star"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(append([]string{tmpDir}, tt.args...))

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "workspace initialized")

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, f))
				assert.False(t, os.IsNotExist(err), "expected file %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
}

func TestInitCreatesValidConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	cfg, err := sharedcfg.LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Len(t, cfg.Projects, 3)
	assert.Equal(t, []string{"lib"}, cfg.SearchPaths)
	hello, ok := cfg.Project("hello")
	require.True(t, ok)
	assert.True(t, hello.IsScript())
	assert.Equal(t, "console", hello.Host.Type)
}
