package engine

import (
	"os"

	"github.com/leapstack-labs/leapcode/internal/compiler"
)

// FileSystem is the filesystem capability the engine reads documents from
// and writes saved buffers and emitted modules to.
type FileSystem interface {
	compiler.FileWriter
	ReadFile(name string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
}

// OSFileSystem implements FileSystem on the local disk.
type OSFileSystem struct{}

// ReadFile reads a file.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name) //nolint:gosec // G304: paths are resolved against the working directory
}

// WriteFile writes a file.
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// MkdirAll creates a directory and its parents.
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Stat returns file info.
func (OSFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

var _ FileSystem = OSFileSystem{}
