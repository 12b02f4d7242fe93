package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapcode/internal/reference"
)

// SymbolsExt is the file extension of emitted debug symbols.
const SymbolsExt = ".lcs"

// FileWriter is the part of a filesystem needed to emit modules.
type FileWriter interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// Emitted holds the paths written by WriteResult.
type Emitted struct {
	Image   string
	Symbols string
}

// WriteResult writes <module>.lcm and <module>.lcs into dir.
func WriteResult(fs FileWriter, dir string, res *Result) (Emitted, error) {
	if res.Module == "" {
		return Emitted{}, fmt.Errorf("module name is required")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return Emitted{}, fmt.Errorf("create output directory: %w", err)
	}

	out := Emitted{
		Image:   filepath.Join(dir, res.Module+reference.ImageExt),
		Symbols: filepath.Join(dir, res.Module+SymbolsExt),
	}
	if err := fs.WriteFile(out.Image, res.Image, 0o644); err != nil {
		return Emitted{}, fmt.Errorf("write image: %w", err)
	}
	if err := fs.WriteFile(out.Symbols, res.Symbols, 0o644); err != nil {
		return Emitted{}, fmt.Errorf("write symbols: %w", err)
	}
	return out, nil
}
