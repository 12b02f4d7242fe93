package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `
search_paths: [scripts]
references:
  - name: util
    path: lib/util.star
projects:
  - name: Lib
    namespace: lib
    documents: [src/lib/a.star, src/lib/b.star]
  - name: Console
    kind: script
    references: [Lib]
    host:
      type: app
      members:
        version: "1.0"
        debug: true
      docs:
        version: application version
    documents: [scripts/main.star]
`

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, ConfigFileName, manifest)

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, DefaultStatePath, cfg.StatePath)
	assert.Equal(t, []string{"scripts"}, cfg.SearchPaths)
	require.Len(t, cfg.References, 1)
	assert.Equal(t, "lib/util.star", cfg.References[0].Path)

	require.Len(t, cfg.Projects, 2)
	lib := cfg.Projects[0]
	assert.Equal(t, "code", lib.Kind)
	assert.Equal(t, "lib", lib.Namespace)
	assert.Len(t, lib.Documents, 2)

	console, ok := cfg.Project("Console")
	require.True(t, ok)
	assert.True(t, console.IsScript())
	assert.Equal(t, "Console", console.Namespace)
	assert.Equal(t, []string{"Lib"}, console.References)

	host := console.Host.HostType()
	assert.Equal(t, "app", host.Name)
	assert.Equal(t, []string{"debug", "version"}, host.MemberNames())
	doc, ok := host.Doc("version")
	assert.True(t, ok)
	assert.Equal(t, "application version", doc)
	assert.Equal(t, "1.0", console.Host.HostObject().Values["version"])
}

func TestLoadFromDir_NoManifest(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromDir_AltName(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, ConfigFileNameAlt, "output_dir: build\n")

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "build", cfg.OutputDir)
}

func TestWorkspaceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WorkspaceConfig
		wantErr string
	}{
		{
			name: "valid",
			cfg: WorkspaceConfig{Projects: []ProjectConfig{
				{Name: "Lib"},
				{Name: "App", References: []string{"Lib"}},
			}},
		},
		{
			name:    "missing name",
			cfg:     WorkspaceConfig{Projects: []ProjectConfig{{}}},
			wantErr: "project name is required",
		},
		{
			name: "forward reference",
			cfg: WorkspaceConfig{Projects: []ProjectConfig{
				{Name: "App", References: []string{"Lib"}},
				{Name: "Lib"},
			}},
			wantErr: "not declared before it",
		},
		{
			name:    "duplicate",
			cfg:     WorkspaceConfig{Projects: []ProjectConfig{{Name: "A"}, {Name: "A"}}},
			wantErr: "declared twice",
		},
		{
			name:    "script with two documents",
			cfg:     WorkspaceConfig{Projects: []ProjectConfig{{Name: "S", Kind: "script", Documents: []string{"a", "b"}}}},
			wantErr: "at most one document",
		},
		{
			name:    "host on code project",
			cfg:     WorkspaceConfig{Projects: []ProjectConfig{{Name: "C", Host: &HostConfig{Type: "x"}}}},
			wantErr: "only script projects",
		},
		{
			name:    "unknown kind",
			cfg:     WorkspaceConfig{Projects: []ProjectConfig{{Name: "C", Kind: "library"}}},
			wantErr: "unknown kind",
		},
		{
			name:    "reference without path",
			cfg:     WorkspaceConfig{References: []ReferenceConfig{{Name: "util"}}},
			wantErr: "has no path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, ConfigFileName, "projects:\n  - kind: code\n")

	_, err := LoadFile(filepath.Join(dir, ConfigFileName))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid manifest")
}

func TestFindWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, ConfigFileName, "")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, FindWorkspaceRoot(nested))
	assert.Equal(t, "", FindWorkspaceRoot(t.TempDir()))
}
